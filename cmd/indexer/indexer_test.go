package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/care-coordination/internal/models"
)

// fakeIndex implements search.Upserter for tests
type fakeIndex struct {
	fail  int // number of times to fail before succeeding
	calls int
}

func (f *fakeIndex) Upsert(ctx context.Context, p models.ProviderProfile) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("index fail")
	}
	return nil
}

func TestUpdateIndexWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeIndex{fail: 2}
	p := models.ProviderProfile{ID: "org-1", Kind: models.KindOrganisation, Active: true, Reliability: 0.8}
	start := time.Now()
	if err := updateIndexWithRetry(context.Background(), f, p, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected retries, got calls=%d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateIndexWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeIndex{fail: 5}
	p := models.ProviderProfile{ID: "org-1", Kind: models.KindOrganisation}
	if err := updateIndexWithRetry(context.Background(), f, p, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
