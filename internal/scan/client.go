// Package scan is the client side of the receipt parsing service: it submits
// a normalized receipt image and turns the parsed fields into an expense
// draft for review.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ledgerlens/internal/capture"
	"ledgerlens/internal/expense"
	"ledgerlens/internal/vision"
)

var (
	// ErrInvalidImage means the service rejected the image payload.
	ErrInvalidImage = errors.New("invalid receipt image")

	// ErrImageTooLarge means the image exceeds the service's size cap.
	ErrImageTooLarge = errors.New("receipt image too large")

	// ErrParseFailed means the service could not extract fields from the image.
	ErrParseFailed = errors.New("receipt parsing failed")
)

// RateLimitError means the service throttled the request. RetryAfter is how
// long to wait before trying again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Client submits receipt images to the parse service
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the given service URL. token is the bearer
// credential, empty for anonymous access.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Parse submits the image handle and returns the extracted fields. The handle
// is released when the request completes, success or failure.
func (c *Client) Parse(ctx context.Context, handle *capture.MediaHandle, localeHint, currencyHint string) (*vision.Result, error) {
	defer func() {
		if err := handle.Release(); err != nil {
			slog.Warn("releasing receipt image handle", "error", err)
		}
	}()

	dataURL := handle.DataURL()
	if dataURL == "" {
		return nil, ErrInvalidImage
	}

	body, err := json.Marshal(vision.Request{
		ImageB64:     dataURL,
		LocaleHint:   localeHint,
		CurrencyHint: currencyHint,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling parse service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapError(resp)
	}

	var result vision.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding parse response: %w", err)
	}
	return &result, nil
}

// mapError converts a non-200 service response to a sentinel the caller can
// branch on.
func (c *Client) mapError(resp *http.Response) error {
	detail, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	_ = json.Unmarshal(detail, &payload)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if strings.Contains(payload.Error, "too large") {
			return ErrImageTooLarge
		}
		return ErrInvalidImage
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(payload.RetryAfter) * time.Second
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	default:
		slog.Error("parse service error", "status", resp.StatusCode, "body", string(detail))
		return fmt.Errorf("%w: status %d", ErrParseFailed, resp.StatusCode)
	}
}

// DraftFromResult converts parsed receipt fields to an expense draft. Missing
// fields degrade to placeholders rather than failing: the draft always goes
// through review before anything is stored.
func DraftFromResult(result *vision.Result, currencyHint string, now time.Time) *expense.Draft {
	description := "Receipt scan"
	if result.Vendor != nil {
		description = *result.Vendor
	}

	date := now.Format("2006-01-02")
	if result.DateISO != nil {
		date = *result.DateISO
	}

	currency := currencyHint
	if result.Currency != nil {
		currency = *result.Currency
	}
	if currency == "" {
		currency = "USD"
	}

	return &expense.Draft{
		Amount:      result.Amount,
		Currency:    currency,
		Description: description,
		Category:    expense.CategoryMisc,
		Date:        date,
		Confidence:  result.Confidence,
	}
}
