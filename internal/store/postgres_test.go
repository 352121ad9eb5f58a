package store

import (
	"testing"
	"time"
)

func TestOptionalLimit(t *testing.T) {
	if optionalLimit(0) != nil || optionalLimit(-3) != nil {
		t.Fatal("non-positive limits must map to NULL")
	}
	if got := optionalLimit(5); got == nil || *got != 5 {
		t.Fatalf("optionalLimit(5) = %v", got)
	}
}

func TestOptionalTime(t *testing.T) {
	if optionalTime(time.Time{}) != nil {
		t.Fatal("zero time must map to NULL")
	}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := optionalTime(ts); got == nil || !got.Equal(ts) {
		t.Fatalf("optionalTime = %v", got)
	}
}
