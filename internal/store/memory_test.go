package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

func doc(hour int, loc string) aqi.Document {
	ts := time.Date(2025, 1, 1, hour, 0, 0, 0, time.UTC)
	return aqi.Document{Timestamp: ts, Location: loc, Body: []byte(`{}`)}
}

func TestMemoryStoreFindSortedLimited(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	if err := s.InsertMany(ctx, aqi.RawCollection, []aqi.Document{doc(3, "a"), doc(1, "a"), doc(2, "b")}); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	asc, err := s.Find(ctx, aqi.RawCollection, aqi.Query{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(asc) != 3 || asc[0].Timestamp.Hour() != 1 || asc[2].Timestamp.Hour() != 3 {
		t.Fatalf("unexpected ascending order: %+v", asc)
	}

	latest, err := s.Find(ctx, aqi.RawCollection, aqi.Query{Order: aqi.Descending, Limit: 1})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(latest) != 1 || latest[0].Timestamp.Hour() != 3 {
		t.Fatalf("expected latest hour 3, got %+v", latest)
	}

	onlyB, _ := s.Find(ctx, aqi.RawCollection, aqi.Query{Filter: aqi.Filter{Location: "b"}})
	if len(onlyB) != 1 || onlyB[0].Location != "b" {
		t.Fatalf("location filter failed: %+v", onlyB)
	}

	ranged, _ := s.Find(ctx, aqi.RawCollection, aqi.Query{
		From: time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC),
	})
	if len(ranged) != 2 {
		t.Fatalf("expected 2 documents in inclusive range, got %d", len(ranged))
	}
}

func TestMemoryStoreDeleteAndReplace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	_ = s.InsertMany(ctx, aqi.FeatureCollection, []aqi.Document{doc(1, "a"), doc(2, "b")})

	n, err := s.DeleteAll(ctx, aqi.FeatureCollection, aqi.Filter{Location: "a"})
	if err != nil || n != 1 {
		t.Fatalf("DeleteAll = %d, %v; want 1, nil", n, err)
	}

	if err := s.Replace(ctx, aqi.FeatureCollection, aqi.Filter{}, []aqi.Document{doc(5, "c")}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	all, _ := s.Find(ctx, aqi.FeatureCollection, aqi.Query{})
	if len(all) != 1 || all[0].Location != "c" {
		t.Fatalf("replace left %+v", all)
	}

	// Collections are independent.
	raw, _ := s.Find(ctx, aqi.RawCollection, aqi.Query{})
	if len(raw) != 0 {
		t.Fatalf("raw collection should be empty, got %d", len(raw))
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	_ = s.InsertMany(ctx, aqi.RawCollection, []aqi.Document{doc(1, "a"), doc(2, "a"), doc(3, "a")})

	all, _ := s.Find(ctx, aqi.RawCollection, aqi.Query{})
	if len(all) != 2 || all[0].Timestamp.Hour() != 2 {
		t.Fatalf("retention should keep the newest 2, got %+v", all)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	_ = s.InsertMany(ctx, aqi.RawCollection, []aqi.Document{doc(1, "a")})

	got, _ := s.Find(ctx, aqi.RawCollection, aqi.Query{})
	got[0].Body[0] = 'x'

	again, _ := s.Find(ctx, aqi.RawCollection, aqi.Query{})
	if string(again[0].Body) != `{}` {
		t.Fatalf("store body mutated through Find result: %s", again[0].Body)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory://?max_history=10")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", s)
	}

	if _, err := Open(ctx, "mongodb://localhost:27017"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := Open(ctx, "memory://?max_history=abc"); err == nil {
		t.Fatal("expected error for invalid max_history")
	}
}
