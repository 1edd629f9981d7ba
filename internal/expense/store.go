package expense

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const expenseBucket = "expenses"

// IDGenerator generates unique IDs for expense records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Store defines the interface for expense record persistence. Every call is
// scoped to an owner; records are never visible across owners.
type Store interface {
	// Create persists a reviewed draft as a new record owned by ownerID
	Create(ownerID string, draft Draft) (*Expense, error)

	// Get retrieves a record by ID for the given owner
	Get(ownerID, id string) (*Expense, error)

	// Update applies partial field changes to an existing record
	Update(ownerID, id string, fields Update) (*Expense, error)

	// Delete removes a record
	Delete(ownerID, id string) error

	// ListByOwner returns all records owned by ownerID
	ListByOwner(ownerID string) ([]*Expense, error)

	// SummaryByCategory totals amounts per category for records dated
	// within [from, to] (inclusive, YYYY-MM-DD)
	SummaryByCategory(ownerID, from, to string) (map[Category]float64, error)

	// Close closes the store
	Close() error
}

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db          *bbolt.DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewBoltStore creates a new BoltStore with default ID generator and time source
func NewBoltStore(path string) (*BoltStore, error) {
	return NewBoltStoreWithDeps(path, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewBoltStoreWithDeps creates a new BoltStore with custom dependencies for testing
func NewBoltStoreWithDeps(path string, idGen IDGenerator, timeSrc TimeSource) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(expenseBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db, idGenerator: idGen, timeSource: timeSrc}, nil
}

// Create persists a reviewed draft as a new expense record
func (b *BoltStore) Create(ownerID string, draft Draft) (*Expense, error) {
	now := b.timeSource.Now()
	record := &Expense{
		ID:          b.idGenerator.Generate(),
		OwnerID:     ownerID,
		Amount:      draft.Amount,
		Currency:    draft.Currency,
		Description: draft.Description,
		Category:    ParseCategory(string(draft.Category)),
		Date:        draft.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := b.put(record); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return record, nil
}

// Get retrieves a record by ID, scoped to the owner
func (b *BoltStore) Get(ownerID, id string) (*Expense, error) {
	var record *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("expense not found: %s", id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID {
		return nil, fmt.Errorf("expense not found: %s", id)
	}
	return record, nil
}

// Update applies partial field changes to an existing record
func (b *BoltStore) Update(ownerID, id string, fields Update) (*Expense, error) {
	record, err := b.Get(ownerID, id)
	if err != nil {
		return nil, err
	}

	if fields.Amount != nil {
		if *fields.Amount < 0 {
			return nil, fmt.Errorf("amount must be non-negative")
		}
		record.Amount = *fields.Amount
	}
	if fields.Currency != nil {
		record.Currency = *fields.Currency
	}
	if fields.Description != nil {
		record.Description = *fields.Description
	}
	if fields.Category != nil {
		record.Category = ParseCategory(string(*fields.Category))
	}
	if fields.Date != nil {
		record.Date = *fields.Date
	}
	record.UpdatedAt = b.timeSource.Now()

	if err := b.put(record); err != nil {
		return nil, fmt.Errorf("updating expense: %w", err)
	}
	return record, nil
}

// Delete removes a record, scoped to the owner
func (b *BoltStore) Delete(ownerID, id string) error {
	if _, err := b.Get(ownerID, id); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		return bucket.Delete([]byte(id))
	})
}

// ListByOwner returns all records owned by ownerID
func (b *BoltStore) ListByOwner(ownerID string) ([]*Expense, error) {
	records := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var record Expense
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if record.OwnerID == ownerID {
				records = append(records, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SummaryByCategory totals amounts per category for records dated within
// [from, to]. Dates are compared lexically, which is valid for YYYY-MM-DD.
func (b *BoltStore) SummaryByCategory(ownerID, from, to string) (map[Category]float64, error) {
	records, err := b.ListByOwner(ownerID)
	if err != nil {
		return nil, err
	}

	summary := make(map[Category]float64)
	for _, record := range records {
		if record.Date < from || record.Date > to {
			continue
		}
		summary[record.Category] += record.Amount
	}
	return summary, nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) put(record *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucket))
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put([]byte(record.ID), data)
	})
}
