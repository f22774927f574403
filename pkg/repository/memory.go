package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepository is a process-local DocumentStore. Documents are stored as
// bson round-tripped copies so callers never share maps with the store.
type MemoryRepository struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		collections: make(map[string]map[string]Document),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the source of server timestamps.
func (m *MemoryRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

func (m *MemoryRepository) GetDocument(_ context.Context, collection, id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	data, err := clone(doc)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: id, Data: data}, nil
}

func (m *MemoryRepository) SetDocument(_ context.Context, collection, id string, fields Document, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	incoming, err := m.stamp(fields)
	if err != nil {
		return err
	}

	coll := m.collection(collection)
	existing, ok := coll[id]
	if !merge || !ok {
		coll[id] = incoming
		return nil
	}
	for k, v := range incoming {
		existing[k] = v
	}
	return nil
}

func (m *MemoryRepository) UpdateDocument(_ context.Context, collection, id string, fields Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	incoming, err := m.stamp(fields)
	if err != nil {
		return err
	}
	for k, v := range incoming {
		existing[k] = v
	}
	return nil
}

func (m *MemoryRepository) QueryDocuments(_ context.Context, collection string, q Query) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Snapshot
	for id, doc := range m.collections[collection] {
		matched, err := matches(doc, q.Filters)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		data, err := clone(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{ID: id, Data: data})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c, _ := compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryRepository) CountDocuments(ctx context.Context, collection string, filters ...Filter) (int64, error) {
	docs, err := m.QueryDocuments(ctx, collection, Query{Filters: filters})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (m *MemoryRepository) collection(name string) map[string]Document {
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[string]Document)
		m.collections[name] = coll
	}
	return coll
}

func (m *MemoryRepository) stamp(fields Document) (Document, error) {
	plain, stamped := splitTimestamps(fields)
	now := m.now()
	for _, k := range stamped {
		plain[k] = now
	}
	return clone(plain)
}

func clone(doc Document) (Document, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out Document
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

func matches(doc Document, filters []Filter) (bool, error) {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok {
			return false, nil
		}
		c, comparable := compare(v, f.Value)
		if !comparable {
			return false, nil
		}
		switch f.Op {
		case OpEq:
			if c != 0 {
				return false, nil
			}
		case OpGt:
			if c <= 0 {
				return false, nil
			}
		case OpGte:
			if c < 0 {
				return false, nil
			}
		case OpLt:
			if c >= 0 {
				return false, nil
			}
		case OpLte:
			if c > 0 {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return true, nil
}

// compare orders two scalar values of the same kind. Values of different
// kinds are not comparable; a missing value sorts first.
func compare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, false
		default:
			return 1, false
		}
	}

	if at, ok := asTime(a); ok {
		bt, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
