package aqi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoRecords is returned when a read finds nothing to return.
var ErrNoRecords = errors.New("no records found")

// Repository gives typed access to the raw and feature collections on top of
// any RecordStore.
type Repository struct {
	store RecordStore
}

// NewRepository wraps a record store.
func NewRepository(store RecordStore) *Repository {
	return &Repository{store: store}
}

// AppendObservations inserts observations without touching existing ones.
func (r *Repository) AppendObservations(ctx context.Context, obs []Observation) error {
	docs, err := observationDocs(obs)
	if err != nil {
		return err
	}
	return r.store.InsertMany(ctx, RawCollection, docs)
}

// ReplaceObservations swaps the whole raw collection for obs.
func (r *Repository) ReplaceObservations(ctx context.Context, obs []Observation) error {
	docs, err := observationDocs(obs)
	if err != nil {
		return err
	}
	return r.replace(ctx, RawCollection, docs)
}

// Observations returns every raw observation for location in ascending
// timestamp order. An empty location returns all of them.
func (r *Repository) Observations(ctx context.Context, location string) ([]Observation, error) {
	docs, err := r.store.Find(ctx, RawCollection, Query{Filter: Filter{Location: location}})
	if err != nil {
		return nil, fmt.Errorf("find raw observations: %w", err)
	}
	out := make([]Observation, 0, len(docs))
	for _, d := range docs {
		var o Observation
		if err := json.Unmarshal(d.Body, &o); err != nil {
			return nil, fmt.Errorf("decode observation at %s: %w", d.Timestamp, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// ReplaceFeatures swaps the whole feature collection for recs.
func (r *Repository) ReplaceFeatures(ctx context.Context, recs []FeatureRecord) error {
	docs := make([]Document, 0, len(recs))
	for _, rec := range recs {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode feature record: %w", err)
		}
		docs = append(docs, Document{Timestamp: rec.Timestamp.UTC(), Location: rec.Location, Body: body})
	}
	return r.replace(ctx, FeatureCollection, docs)
}

// Features returns the feature records matching q.
func (r *Repository) Features(ctx context.Context, q Query) ([]FeatureRecord, error) {
	docs, err := r.store.Find(ctx, FeatureCollection, q)
	if err != nil {
		return nil, fmt.Errorf("find feature records: %w", err)
	}
	out := make([]FeatureRecord, 0, len(docs))
	for _, d := range docs {
		var rec FeatureRecord
		if err := json.Unmarshal(d.Body, &rec); err != nil {
			return nil, fmt.Errorf("decode feature record at %s: %w", d.Timestamp, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// LatestFeature returns the most recent feature record for location.
func (r *Repository) LatestFeature(ctx context.Context, location string) (FeatureRecord, error) {
	recs, err := r.Features(ctx, Query{
		Filter: Filter{Location: location},
		Order:  Descending,
		Limit:  1,
	})
	if err != nil {
		return FeatureRecord{}, err
	}
	if len(recs) == 0 {
		return FeatureRecord{}, ErrNoRecords
	}
	return recs[0], nil
}

func (r *Repository) replace(ctx context.Context, coll Collection, docs []Document) error {
	if rp, ok := r.store.(Replacer); ok {
		if err := rp.Replace(ctx, coll, Filter{}, docs); err != nil {
			return fmt.Errorf("replace %s: %w", coll, err)
		}
		return nil
	}

	if _, err := r.store.DeleteAll(ctx, coll, Filter{}); err != nil {
		return fmt.Errorf("clear %s: %w", coll, err)
	}
	if err := r.store.InsertMany(ctx, coll, docs); err != nil {
		return fmt.Errorf("insert %s: %w", coll, err)
	}
	return nil
}

func observationDocs(obs []Observation) ([]Document, error) {
	docs := make([]Document, 0, len(obs))
	for _, o := range obs {
		body, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("encode observation: %w", err)
		}
		docs = append(docs, Document{Timestamp: o.Timestamp.UTC(), Location: o.Location, Body: body})
	}
	return docs, nil
}
