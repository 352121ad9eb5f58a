package aqi

import (
	"context"
	"time"
)

// Collection names a logical group of documents in the record store.
type Collection string

const (
	RawCollection     Collection = "aqi_raw"
	FeatureCollection Collection = "model_features"
)

// Document is the store's unit of storage: a JSON body keyed by timestamp
// and tagged with a location.
type Document struct {
	Timestamp time.Time
	Location  string
	Body      []byte
}

// Order controls the timestamp ordering of Find results.
type Order int

const (
	Ascending Order = iota
	Descending
)

// Filter selects documents by location. An empty filter matches everything.
type Filter struct {
	Location string
}

// Matches reports whether doc passes the filter.
func (f Filter) Matches(doc Document) bool {
	return f.Location == "" || f.Location == doc.Location
}

// Query describes a sorted, optionally limited read.
// Zero From/To leave that side of the range open; both bounds are inclusive.
type Query struct {
	Filter
	From  time.Time
	To    time.Time
	Order Order
	Limit int // 0 = no limit
}

// Matches reports whether doc falls inside the query's filter and range.
func (q Query) Matches(doc Document) bool {
	if !q.Filter.Matches(doc) {
		return false
	}
	if !q.From.IsZero() && doc.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && doc.Timestamp.After(q.To) {
		return false
	}
	return true
}

// RecordStore is the contract every backend (memory, Postgres, Redis) satisfies.
type RecordStore interface {
	InsertMany(ctx context.Context, coll Collection, docs []Document) error
	DeleteAll(ctx context.Context, coll Collection, f Filter) (int64, error)
	Find(ctx context.Context, coll Collection, q Query) ([]Document, error)
	Close() error
}

// Replacer is implemented by stores that can swap a collection's contents in
// a single transaction.
type Replacer interface {
	Replace(ctx context.Context, coll Collection, f Filter, docs []Document) error
}
