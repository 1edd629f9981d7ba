// Package vision extracts structured receipt fields from images using
// multimodal language models.
package vision

import (
	"context"
	"errors"
	"fmt"
)

// ErrParseFailed means no model produced a valid result for the image.
var ErrParseFailed = errors.New("receipt parsing failed")

// Request carries a receipt image and optional locale context for the model.
type Request struct {
	ImageB64     string `json:"image_b64"`
	LocaleHint   string `json:"locale_hint,omitempty"`
	CurrencyHint string `json:"currency_hint,omitempty"`
}

// Result contains the fields extracted from a receipt. Pointer fields are nil
// when the model could not determine them.
type Result struct {
	Vendor     *string `json:"vendor"`
	Amount     float64 `json:"amount"`
	Currency   *string `json:"currency"`
	DateISO    *string `json:"date_iso"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
}

// Model defines the interface for receipt parsing backends
type Model interface {
	// Parse analyzes a receipt image and extracts structured fields
	Parse(ctx context.Context, req Request) (*Result, error)
	// Name identifies the backing model for result attribution
	Name() string
	// Close closes the model and releases resources
	Close() error
}

// systemPrompt instructs the model to extract the final total, not a subtotal.
const systemPrompt = `You are a receipt parser. Extract the FINAL TOTAL (not subtotal) from receipt images. Respond ONLY with a JSON object containing: amount (number), currency (3-letter ISO code or null), vendor (merchant name or null), date_iso (YYYY-MM-DD or null), confidence (0-1). If the image is not a receipt or the total cannot be determined, set amount to 0 and confidence to 0.`

// userPrompt builds the per-request instruction including locale context.
func userPrompt(localeHint, currencyHint string) string {
	prompt := "Parse this receipt. Prefer the line labeled TOTAL, Amount Due, or Grand Total over any subtotal."
	if localeHint != "" {
		prompt += fmt.Sprintf(" The receipt locale is likely %s; interpret ambiguous dates accordingly.", localeHint)
	}
	if currencyHint != "" {
		prompt += fmt.Sprintf(" If no currency is shown, assume %s.", currencyHint)
	}
	return prompt
}
