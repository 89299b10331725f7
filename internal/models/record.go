package models

import "time"

// Dataset is a named collection of news records to be processed together.
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is a single news item inside a dataset. Classification and
// deduplication results are written back onto the record after a run.
type Record struct {
	ID          int64   `json:"id"`
	DatasetID   string  `json:"dataset_id"`
	Position    int     `json:"position"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	PublishedAt string  `json:"published_at"`
	Category    *string `json:"category,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Relevant    *bool   `json:"relevant,omitempty"`
	DuplicateOf *int64  `json:"duplicate_of,omitempty"`
}

// ScoreResult is what the scoring client returns for one record.
// Classification fills Category/Confidence/Relevant; the embedding
// variant fills Embedding and leaves the rest zero.
type ScoreResult struct {
	Relevant   bool      `json:"is_relevant"`
	Category   string    `json:"category"`
	Reason     string    `json:"relevance_reason"`
	Confidence float64   `json:"confidence"`
	Keywords   []string  `json:"keywords"`
	Embedding  []float64 `json:"-"`
}

// Prompt is a stored analysis prompt template. Exactly one prompt may be
// active at a time; the active prompt is used when a run does not pin one.
type Prompt struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Template  string    `json:"template"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
