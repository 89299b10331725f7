// This file imports record files from the data directory into datasets.
// A record file is a JSON array of news records; the file name (without
// extension) becomes the dataset name, and files whose dataset already
// exists are skipped.

package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jaehyun-ko/newsight/internal/models"
	"github.com/jaehyun-ko/newsight/internal/store"
)

const maxScrapedContentLen = 2000

// Importer loads record files into the dataset store.
type Importer struct {
	st         *store.Store
	dataPath   string
	httpClient *http.Client

	// EnrichContent controls whether records with a URL but no content get
	// their body text scraped from the article page.
	EnrichContent bool
}

// New creates an importer for the given data directory.
func New(st *store.Store, dataPath string) *Importer {
	return &Importer{
		st:            st,
		dataPath:      dataPath,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		EnrichContent: false,
	}
}

// ImportDir imports every not-yet-imported .json file in the data
// directory and returns the number of datasets created.
func (im *Importer) ImportDir() (int, error) {
	entries, err := os.ReadDir(im.dataPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read data directory: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		exists, err := im.st.DatasetExistsByName(name)
		if err != nil {
			return imported, err
		}
		if exists {
			continue
		}
		if err := im.importFile(filepath.Join(im.dataPath, entry.Name()), name); err != nil {
			log.Printf("Failed to import %s: %v", entry.Name(), err)
			continue
		}
		imported++
	}
	return imported, nil
}

func (im *Importer) importFile(path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("invalid record file: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("record file is empty")
	}

	if im.EnrichContent {
		for i := range records {
			if records[i].Content != "" || records[i].URL == "" {
				continue
			}
			text, err := im.FetchArticleText(records[i].URL)
			if err != nil {
				log.Printf("Could not fetch article text for %s: %v", records[i].URL, err)
				continue
			}
			records[i].Content = text
		}
	}

	id, err := im.st.CreateDataset(name, "file:"+filepath.Base(path), records)
	if err != nil {
		return err
	}
	log.Printf("Imported dataset %q (%s) with %d records", name, id, len(records))
	return nil
}

// FetchArticleText downloads an article page and extracts its paragraph
// text, bounded in size. Used to backfill records imported without content.
func (im *Importer) FetchArticleText(url string) (string, error) {
	resp, err := im.httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("article fetch returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find("article p, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
		return len(strings.Join(parts, " ")) < maxScrapedContentLen
	})

	text := strings.Join(parts, " ")
	if text == "" {
		return "", fmt.Errorf("no paragraph text found")
	}
	if len(text) > maxScrapedContentLen {
		text = text[:maxScrapedContentLen]
	}
	return text, nil
}
