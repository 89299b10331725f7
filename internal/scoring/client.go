// A thin client for the external scoring API (OpenAI-compatible). It covers
// the two calls the pipelines need: relevance classification via chat
// completions and text embeddings for deduplication.

package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jaehyun-ko/newsight/internal/models"
)

// ErrRateLimited is returned when the API answers 429. The runner treats it
// as retryable, not fatal.
var ErrRateLimited = errors.New("scoring API rate limited")

const (
	maxTitleLen   = 500
	maxContentLen = 2000
)

// DefaultPrompt is used when no stored prompt template is active. The
// placeholders {title} and {content} are substituted per record.
const DefaultPrompt = `You are a news industry analyst. Evaluate whether the
following news article contains useful business insight.

Respond ONLY with a JSON object of this exact shape:
{
  "is_relevant": true or false,
  "category": "company mention" | "industry trend" | "adjacent business" | "other",
  "relevance_reason": "short reason",
  "confidence": float between 0 and 1,
  "keywords": ["keyword1", "keyword2"]
}

Article:
Title: {title}
Content: {content}
`

// Client calls the scoring API over HTTP with a bounded per-call timeout.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	model          string
	embeddingModel string
	prompt         string
}

// NewClient creates a scoring client. An empty prompt falls back to
// DefaultPrompt.
func NewClient(baseURL, apiKey, model, embeddingModel string, timeout time.Duration) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		model:          model,
		embeddingModel: embeddingModel,
		prompt:         DefaultPrompt,
	}
}

// SetPrompt overrides the analysis prompt template for this client.
func (c *Client) SetPrompt(prompt string) {
	if strings.TrimSpace(prompt) != "" {
		c.prompt = prompt
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Score classifies a single record. The model's reply is expected to be the
// JSON object described in the prompt; replies wrapped in code fences or
// surrounded by prose are cleaned up first, and a keyword-based backup parse
// kicks in when JSON parsing fails entirely.
func (c *Client) Score(ctx context.Context, rec models.Record) (models.ScoreResult, error) {
	title := truncate(rec.Title, maxTitleLen)
	content := truncate(rec.Content, maxContentLen)
	prompt := strings.NewReplacer("{title}", title, "{content}", content).Replace(c.prompt)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a news industry analyst. Respond only with valid JSON."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   500,
	}

	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", reqBody, &resp); err != nil {
		return models.ScoreResult{}, err
	}
	if len(resp.Choices) == 0 {
		return models.ScoreResult{}, fmt.Errorf("scoring API returned no choices")
	}

	return ParseScoreResponse(resp.Choices[0].Message.Content), nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := embeddingRequest{
		Model: c.embeddingModel,
		Input: []string{truncate(text, maxContentLen)},
	}

	var resp embeddingResponse
	if err := c.post(ctx, "/v1/embeddings", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scoring API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scoring API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// truncate cuts s to at most max bytes without splitting a multi-byte
// rune; Korean titles would otherwise end in a mangled sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
