package vision

import (
	"context"
	"errors"
	"log/slog"
)

// Tiered runs the cheap mini model first and escalates to the full model only
// when the mini attempt fails or returns an invalid result.
type Tiered struct {
	mini Model
	full Model
}

// NewTiered creates a Tiered model over a mini and a full backend
func NewTiered(mini, full Model) *Tiered {
	return &Tiered{mini: mini, full: full}
}

// Parse tries the mini model, then the full model. Both failing is
// ErrParseFailed; the caller gets no partial result.
func (t *Tiered) Parse(ctx context.Context, req Request) (*Result, error) {
	result, miniErr := t.mini.Parse(ctx, req)
	if miniErr == nil {
		return result, nil
	}
	slog.Warn("mini model parse failed, escalating", "model", t.mini.Name(), "error", miniErr)

	result, fullErr := t.full.Parse(ctx, req)
	if fullErr == nil {
		return result, nil
	}
	slog.Error("full model parse failed", "model", t.full.Name(), "error", fullErr)

	return nil, ErrParseFailed
}

// Name identifies the tier pair
func (t *Tiered) Name() string {
	return t.mini.Name() + "+" + t.full.Name()
}

// Close closes both backends
func (t *Tiered) Close() error {
	return errors.Join(t.mini.Close(), t.full.Close())
}
