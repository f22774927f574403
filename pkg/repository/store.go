package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound is returned when a document id has no document.
var ErrNotFound = errors.New("document not found")

// Document is the field map exchanged with a DocumentStore.
type Document = bson.M

type Op string

const (
	OpEq  Op = "=="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

func Where(field string, op Op, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int64
}

// Snapshot is a document read back from a store.
type Snapshot struct {
	ID   string
	Data Document
}

// Decode copies the snapshot fields into v using its bson tags.
func (s Snapshot) Decode(v interface{}) error {
	raw, err := bson.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", s.ID, err)
	}
	if err := bson.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", s.ID, err)
	}
	return nil
}

type serverTimestamp struct{}

// ServerTimestamp used as a top-level field value is replaced by the store's
// write time.
var ServerTimestamp = serverTimestamp{}

// DocumentStore is the persistence capability consumed by the bot. Writes are
// unconditional; the last write wins.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (Snapshot, error)
	// SetDocument replaces the document, or with merge keeps fields that are
	// not present in fields. The document is created when missing.
	SetDocument(ctx context.Context, collection, id string, fields Document, merge bool) error
	// UpdateDocument merges fields into an existing document and returns
	// ErrNotFound when there is none.
	UpdateDocument(ctx context.Context, collection, id string, fields Document) error
	QueryDocuments(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	CountDocuments(ctx context.Context, collection string, filters ...Filter) (int64, error)
}

// ToDocument converts a bson-tagged value into a Document.
func ToDocument(v interface{}) (Document, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// splitTimestamps separates ServerTimestamp fields from regular ones.
func splitTimestamps(fields Document) (Document, []string) {
	plain := make(Document, len(fields))
	var stamped []string
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			stamped = append(stamped, k)
			continue
		}
		plain[k] = v
	}
	return plain, stamped
}
