// Response hygiene for model replies. Models regularly wrap the requested
// JSON in markdown fences or prose, and occasionally return values outside
// the documented ranges.

package scoring

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/jaehyun-ko/newsight/internal/models"
)

// ParseScoreResponse turns a raw model reply into a ScoreResult. It never
// fails: when JSON parsing is impossible a keyword-based backup parse
// produces a low-confidence result instead.
func ParseScoreResponse(raw string) models.ScoreResult {
	cleaned := CleanJSONResponse(raw)

	var result models.ScoreResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return backupParse(raw)
	}

	if result.Category == "" {
		result.Category = "other"
	}
	result.Confidence = clampConfidence(result.Confidence)
	return result
}

// CleanJSONResponse extracts the outermost JSON object from a model reply,
// stripping code fences and surrounding prose.
func CleanJSONResponse(text string) string {
	if idx := strings.Index(text, "```json"); idx != -1 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
	} else if strings.Contains(text, "```") {
		for _, part := range strings.Split(text, "```") {
			if strings.Contains(part, "{") && strings.Contains(part, "}") {
				text = part
				break
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		text = text[start : end+1]
	}

	// Collapse lines so stray newlines inside string values don't trip the parser.
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}

// backupParse scans the reply for recognizable markers when it is not valid
// JSON at all.
func backupParse(text string) models.ScoreResult {
	result := models.ScoreResult{
		Category:   "other",
		Reason:     "backup parsing used",
		Confidence: 0.3,
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "true") {
		result.Relevant = true
	}

	for _, cat := range []string{"company mention", "industry trend", "adjacent business"} {
		if strings.Contains(lower, cat) {
			result.Category = cat
			break
		}
	}
	return result
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0.5
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
