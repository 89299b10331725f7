// The two pipeline variants share the runner and differ only in what they
// do with a score and in the shape of their terminal stats.

package pipeline

import (
	"context"
	"log"
	"math"
	"strings"

	"github.com/jaehyun-ko/newsight/internal/models"
	"github.com/jaehyun-ko/newsight/internal/store"
)

// Aggregator is the per-session strategy that turns score results into
// tallies, persisted results and terminal stats. A fresh aggregator is
// created per session; the runner is its only caller, so no locking.
type Aggregator interface {
	// Stage is the advisory label shown to observers.
	Stage() string
	// Observe handles one scored record and returns the display summary and
	// whether the record counts as relevant.
	Observe(rec models.Record, res models.ScoreResult) (models.RecordSummary, bool)
	// ObserveFailure handles a record whose scoring failed for good.
	ObserveFailure(rec models.Record)
	// Finalize computes the terminal stats from the final session snapshot.
	Finalize(snap models.SessionSnapshot) interface{}
}

// ClassifyStats is the terminal stat shape of the classification pipeline.
type ClassifyStats struct {
	TotalItems       int            `json:"total_items"`
	Processed        int            `json:"processed"`
	RelevantItems    int            `json:"relevant_items"`
	RelevantPercent  float64        `json:"relevant_percent"`
	Categories       map[string]int `json:"categories"`
	ProcessingErrors int            `json:"processing_errors"`
}

// ClassifyAggregator persists classification results onto the dataset's
// records and tallies relevance.
type ClassifyAggregator struct {
	st *store.Store
}

// NewClassifyAggregator creates the classification strategy. A nil store
// skips persistence, which the tests use.
func NewClassifyAggregator(st *store.Store) *ClassifyAggregator {
	return &ClassifyAggregator{st: st}
}

func (a *ClassifyAggregator) Stage() string { return "classifying records" }

func (a *ClassifyAggregator) Observe(rec models.Record, res models.ScoreResult) (models.RecordSummary, bool) {
	if a.st != nil {
		if err := a.st.SaveClassification(rec.ID, res.Category, res.Confidence, res.Relevant); err != nil {
			log.Printf("Failed to persist classification for record %d: %v", rec.ID, err)
		}
	}
	return models.RecordSummary{
		Title:      rec.Title,
		Category:   res.Category,
		Confidence: res.Confidence,
	}, res.Relevant
}

func (a *ClassifyAggregator) ObserveFailure(rec models.Record) {}

func (a *ClassifyAggregator) Finalize(snap models.SessionSnapshot) interface{} {
	stats := ClassifyStats{
		TotalItems:       snap.Total,
		Processed:        snap.Current,
		RelevantItems:    snap.Stats.Relevant,
		Categories:       snap.Stats.Categories,
		ProcessingErrors: snap.Stats.Failed,
	}
	// Percentages are over processed records, so partial results after a
	// stop are still meaningful.
	if snap.Current > 0 {
		stats.RelevantPercent = round1(float64(snap.Stats.Relevant) / float64(snap.Current) * 100)
	}
	return stats
}

// DedupStats is the terminal stat shape of the deduplication pipeline.
type DedupStats struct {
	OriginalCount       int     `json:"original_count"`
	Processed           int     `json:"processed"`
	DeduplicatedCount   int     `json:"deduplicated_count"`
	RemovedCount        int     `json:"removed_count"`
	ReductionPercentage float64 `json:"reduction_percentage"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	ProcessingErrors    int     `json:"processing_errors"`
}

type keptRecord struct {
	id        int64
	embedding []float64
}

// DedupAggregator detects near-duplicate records by greedy cosine
// similarity against the embeddings of records kept so far. Duplicates are
// marked in the store with a reference to the record they duplicate.
type DedupAggregator struct {
	st        *store.Store
	threshold float64
	kept      []keptRecord
	removed   int
}

// NewDedupAggregator creates the deduplication strategy.
func NewDedupAggregator(st *store.Store, threshold float64) *DedupAggregator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	return &DedupAggregator{st: st, threshold: threshold}
}

func (a *DedupAggregator) Stage() string { return "detecting duplicates" }

func (a *DedupAggregator) Observe(rec models.Record, res models.ScoreResult) (models.RecordSummary, bool) {
	bestSim := 0.0
	var bestID int64 = -1
	for _, kept := range a.kept {
		if sim := cosineSimilarity(res.Embedding, kept.embedding); sim > bestSim {
			bestSim = sim
			bestID = kept.id
		}
	}

	if bestID >= 0 && bestSim >= a.threshold {
		a.removed++
		if a.st != nil {
			if err := a.st.MarkDuplicate(rec.ID, bestID); err != nil {
				log.Printf("Failed to mark record %d as duplicate: %v", rec.ID, err)
			}
		}
		return models.RecordSummary{Title: rec.Title, Category: "duplicate", Confidence: round3(bestSim)}, false
	}

	a.kept = append(a.kept, keptRecord{id: rec.ID, embedding: res.Embedding})
	return models.RecordSummary{Title: rec.Title, Category: "unique", Confidence: round3(bestSim)}, false
}

func (a *DedupAggregator) ObserveFailure(rec models.Record) {}

func (a *DedupAggregator) Finalize(snap models.SessionSnapshot) interface{} {
	stats := DedupStats{
		OriginalCount:       snap.Total,
		Processed:           snap.Current,
		DeduplicatedCount:   snap.Current - a.removed,
		RemovedCount:        a.removed,
		SimilarityThreshold: a.threshold,
		ProcessingErrors:    snap.Stats.Failed,
	}
	if snap.Current > 0 {
		stats.ReductionPercentage = round1(float64(a.removed) / float64(snap.Current) * 100)
	}
	return stats
}

// EmbeddingScorer adapts an Embedder to the Scorer interface so the runner
// stays generic across both pipeline variants.
type EmbeddingScorer struct {
	Embedder Embedder
}

func (e EmbeddingScorer) Score(ctx context.Context, rec models.Record) (models.ScoreResult, error) {
	text := strings.TrimSpace(rec.Title + " " + rec.Content)
	emb, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return models.ScoreResult{}, err
	}
	return models.ScoreResult{Embedding: emb}, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
