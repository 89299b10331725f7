// This file implements a file system watcher for the data directory. It
// uses OS-level file system events to pick up newly dropped record files
// without waiting for the periodic sweep.

package ingest

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the data directory and triggers an import when record
// files are added or rewritten.
type Watcher struct {
	importer *Importer
	watcher  *fsnotify.Watcher

	mu            sync.Mutex
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
}

// NewWatcher creates a watcher for the importer's data directory.
func NewWatcher(importer *Importer) *Watcher {
	return &Watcher{
		importer:      importer,
		debounceDelay: 2 * time.Second, // Wait for writes to settle before importing
		stopChan:      make(chan struct{}),
	}
}

// Start begins watching. It returns once the watch is established; event
// processing runs in a background goroutine.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.importer.dataPath); err != nil {
		watcher.Close()
		return err
	}

	log.Printf("File watcher started for data directory: %s", w.importer.dataPath)
	go w.processEvents()
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.stopChan)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.scheduleImport()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("File watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

// scheduleImport debounces rapid event bursts (a file being written in
// chunks) into a single import pass.
func (w *Watcher) scheduleImport() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		if n, err := w.importer.ImportDir(); err != nil {
			log.Printf("Import after file change failed: %v", err)
		} else if n > 0 {
			log.Printf("Imported %d new datasets from data directory", n)
		}
	})
}
