// Package review is the confirm-before-save step: every extracted draft
// passes through a Flow where the user can correct fields before anything is
// persisted.
package review

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledgerlens/internal/capture"
	"ledgerlens/internal/expense"
)

// lowConfidenceThreshold marks drafts that deserve a warning before saving.
const lowConfidenceThreshold = 0.7

// ErrAlreadyCommitted means Confirm or Discard was already called on the flow.
var ErrAlreadyCommitted = errors.New("review flow already finished")

// Flow holds one draft under review. The original draft is kept untouched so
// edits can be compared against what extraction produced; only the working
// copy changes, and nothing reaches the store until Confirm.
type Flow struct {
	original expense.Draft
	working  expense.Draft
	media    *capture.MediaHandle
	store    expense.Store
	identity expense.IdentityProvider
	finished bool
}

// NewFlow starts a review over the given draft. media may be nil for drafts
// that did not come from a capture (text entry).
func NewFlow(draft *expense.Draft, media *capture.MediaHandle, store expense.Store, identity expense.IdentityProvider) *Flow {
	return &Flow{
		original: *draft,
		working:  *draft,
		media:    media,
		store:    store,
		identity: identity,
	}
}

// Original returns a copy of the draft as extraction produced it
func (f *Flow) Original() expense.Draft {
	return f.original
}

// Working returns a copy of the draft with edits applied
func (f *Flow) Working() expense.Draft {
	return f.working
}

// LowConfidence reports whether the draft deserves a verification warning
func (f *Flow) LowConfidence() bool {
	return f.working.Confidence < lowConfidenceThreshold
}

// Apply merges the given field edits into the working draft. Invalid values
// reject the whole update; the working draft is untouched on error.
func (f *Flow) Apply(update expense.Update) error {
	if f.finished {
		return ErrAlreadyCommitted
	}

	edited := f.working

	if update.Amount != nil {
		if *update.Amount < 0 {
			return fmt.Errorf("amount must not be negative, got %v", *update.Amount)
		}
		edited.Amount = *update.Amount
	}
	if update.Currency != nil {
		edited.Currency = *update.Currency
	}
	if update.Description != nil {
		edited.Description = *update.Description
	}
	if update.Category != nil {
		edited.Category = expense.ParseCategory(string(*update.Category))
	}
	if update.Date != nil {
		if _, err := time.Parse("2006-01-02", *update.Date); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD, got %q", *update.Date)
		}
		edited.Date = *update.Date
	}

	f.working = edited
	return nil
}

// Confirm persists the working draft as an expense owned by the current user
// and releases the source media. The flow cannot be reused afterwards.
func (f *Flow) Confirm() (*expense.Expense, error) {
	if f.finished {
		return nil, ErrAlreadyCommitted
	}

	ownerID, err := f.identity.CurrentUser()
	if err != nil {
		return nil, fmt.Errorf("resolving current user: %w", err)
	}

	saved, err := f.store.Create(ownerID, f.working)
	if err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}

	f.finished = true
	f.releaseMedia()
	return saved, nil
}

// Discard abandons the draft without saving and releases the source media
func (f *Flow) Discard() error {
	if f.finished {
		return ErrAlreadyCommitted
	}
	f.finished = true
	f.releaseMedia()
	return nil
}

func (f *Flow) releaseMedia() {
	if f.media == nil {
		return
	}
	if err := f.media.Release(); err != nil {
		slog.Warn("releasing reviewed media", "error", err)
	}
}
