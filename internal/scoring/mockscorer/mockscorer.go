// A mock scorer for development and testing purposes. It simulates the
// external scoring API without making network calls, and can be scripted
// to fail for specific records.

package mockscorer

import (
	"context"
	"sync"

	"github.com/jaehyun-ko/newsight/internal/models"
)

// Scorer returns canned classification results. FailAt positions (0-based)
// return the configured error; ErrSequence, when non-empty, overrides the
// error returned on each consecutive call until exhausted.
type Scorer struct {
	mu sync.Mutex

	Result      models.ScoreResult
	FailAt      map[int]error
	ErrSequence []error

	calls int
}

// New creates a mock scorer returning a fixed relevant result.
func New() *Scorer {
	return &Scorer{
		Result: models.ScoreResult{
			Relevant:   true,
			Category:   "industry trend",
			Reason:     "mock result",
			Confidence: 0.9,
		},
		FailAt: make(map[int]error),
	}
}

func (m *Scorer) Score(ctx context.Context, rec models.Record) (models.ScoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if len(m.ErrSequence) > 0 {
		err := m.ErrSequence[0]
		m.ErrSequence = m.ErrSequence[1:]
		if err != nil {
			return models.ScoreResult{}, err
		}
		return m.Result, nil
	}

	if err, ok := m.FailAt[rec.Position]; ok {
		return models.ScoreResult{}, err
	}
	return m.Result, nil
}

// Calls reports how many times Score has been invoked.
func (m *Scorer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embedder returns scripted embedding vectors keyed by the exact text passed
// to Embed, with a fallback default for unknown inputs.
type Embedder struct {
	mu       sync.Mutex
	Vectors  map[string][]float64
	Default  []float64
	FailWith error
}

// NewEmbedder creates a mock embedder with a unit default vector.
func NewEmbedder() *Embedder {
	return &Embedder{
		Vectors: make(map[string][]float64),
		Default: []float64{1, 0, 0},
	}
}

func (m *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if v, ok := m.Vectors[text]; ok {
		return v, nil
	}
	return m.Default, nil
}
