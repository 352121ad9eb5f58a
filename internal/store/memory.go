package store

import (
	"context"
	"sort"
	"sync"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

// MemoryStore is a concurrency-safe in-memory implementation of aqi.RecordStore.
type MemoryStore struct {
	mu sync.RWMutex

	// key: collection, value: documents ordered by timestamp ascending
	data map[aqi.Collection][]aqi.Document

	// max number of documents kept per collection (0 = unlimited)
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[aqi.Collection][]aqi.Document),
		maxHistory: maxHistory,
	}
}

// InsertMany appends documents to a collection and enforces retention.
func (s *MemoryStore) InsertMany(ctx context.Context, coll aqi.Collection, docs []aqi.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLocked(coll, docs)
	return nil
}

// DeleteAll removes every document of a collection matching f.
func (s *MemoryStore) DeleteAll(ctx context.Context, coll aqi.Collection, f aqi.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(coll, f), nil
}

// Replace deletes the documents matching f and inserts docs under one lock,
// so readers never observe the intermediate empty state.
func (s *MemoryStore) Replace(ctx context.Context, coll aqi.Collection, f aqi.Filter, docs []aqi.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(coll, f)
	s.insertLocked(coll, docs)
	return nil
}

// Find returns the documents matching q, sorted and limited.
func (s *MemoryStore) Find(ctx context.Context, coll aqi.Collection, q aqi.Query) ([]aqi.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []aqi.Document
	for _, doc := range s.data[coll] {
		if q.Matches(doc) {
			result = append(result, cloneDoc(doc))
		}
	}

	if q.Order == aqi.Descending {
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) insertLocked(coll aqi.Collection, docs []aqi.Document) {
	history := s.data[coll]
	for _, d := range docs {
		history = append(history, cloneDoc(d))
	}

	// Stable so that documents sharing a timestamp keep insertion order.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		over := len(history) - s.maxHistory
		history = history[over:]
	}
	s.data[coll] = history
}

func (s *MemoryStore) deleteLocked(coll aqi.Collection, f aqi.Filter) int64 {
	history := s.data[coll]
	kept := history[:0]
	var removed int64
	for _, doc := range history {
		if f.Matches(doc) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	s.data[coll] = kept
	return removed
}

func cloneDoc(d aqi.Document) aqi.Document {
	d.Body = append([]byte(nil), d.Body...)
	d.Timestamp = d.Timestamp.UTC()
	return d
}
