package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseResultJSON parses a model's JSON response into a Result. Amount and
// confidence are required and bounds-checked; vendor, currency and date
// degrade to nil when missing or malformed.
func parseResultJSON(text, modelName string) (*Result, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var raw struct {
		Vendor     *string  `json:"vendor"`
		Amount     *float64 `json:"amount"`
		Currency   *string  `json:"currency"`
		DateISO    *string  `json:"date_iso"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if raw.Amount == nil {
		return nil, fmt.Errorf("response missing amount")
	}
	if *raw.Amount < 0 {
		return nil, fmt.Errorf("negative amount %v", *raw.Amount)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("response missing confidence")
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", *raw.Confidence)
	}

	result := &Result{
		Amount:     *raw.Amount,
		Confidence: *raw.Confidence,
		Model:      modelName,
	}

	if raw.Vendor != nil {
		if vendor := strings.TrimSpace(*raw.Vendor); vendor != "" {
			result.Vendor = &vendor
		}
	}
	result.Currency = normalizeCurrency(raw.Currency)
	result.DateISO = normalizeDate(raw.DateISO)

	return result, nil
}

// normalizeDate converts a model-reported date to YYYY-MM-DD, or nil when it
// cannot be parsed. Guessing a date is worse than admitting there isn't one.
func normalizeDate(date *string) *string {
	if date == nil {
		return nil
	}
	raw := strings.TrimSpace(*date)
	if raw == "" {
		return nil
	}

	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, raw); err == nil {
			normalized := d.Format("2006-01-02")
			return &normalized
		}
	}
	return nil
}

// normalizeCurrency uppercases a 3-letter ISO code, or nil for anything else
func normalizeCurrency(currency *string) *string {
	if currency == nil {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(*currency))
	if len(code) != 3 {
		return nil
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return nil
		}
	}
	return &code
}
