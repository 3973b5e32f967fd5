package state_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/holdgrid/bookingwatch/internal/state"
)

func openStore(t *testing.T, path string) *state.Store {
	t.Helper()
	s, err := state.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMarkAndContains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "state.db"))

	ok, err := s.Contains(ctx, "m1")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if ok {
		t.Fatalf("fresh store must not contain m1")
	}

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Mark(ctx, "m1", at); err != nil {
		t.Fatalf("mark: %v", err)
	}

	ok, err = s.Contains(ctx, "m1")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !ok {
		t.Fatalf("expected m1 marked")
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "state.db"))

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Mark(ctx, "m1", at); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := s.Mark(ctx, "m1", at.Add(time.Hour)); err != nil {
		t.Fatalf("re-mark must be a no-op, not an error: %v", err)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	wm := at.Add(2 * time.Second)

	s1 := openStore(t, path)
	if err := s1.Mark(ctx, "m1", at); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s1.SetWatermark(ctx, wm); err != nil {
		t.Fatalf("set watermark: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := openStore(t, path)
	ok, err := s2.Contains(ctx, "m1")
	if err != nil {
		t.Fatalf("contains after reopen: %v", err)
	}
	if !ok {
		t.Fatalf("mark must survive reopen")
	}
	got, err := s2.Watermark(ctx)
	if err != nil {
		t.Fatalf("watermark after reopen: %v", err)
	}
	if !got.Equal(wm) {
		t.Fatalf("watermark = %v, want %v", got, wm)
	}
}

func TestWatermarkNeverRegresses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "state.db"))

	got, err := s.Watermark(ctx)
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("fresh store watermark must be zero, got %v", got)
	}

	later := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if err := s.SetWatermark(ctx, later); err != nil {
		t.Fatalf("set watermark: %v", err)
	}
	if err := s.SetWatermark(ctx, earlier); err != nil {
		t.Fatalf("earlier set must be a no-op: %v", err)
	}

	got, err = s.Watermark(ctx)
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if !got.Equal(later) {
		t.Fatalf("watermark regressed: got %v, want %v", got, later)
	}
}
