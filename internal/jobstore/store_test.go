package jobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// newTestStore connects to a local Redis, skipping when none is reachable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{KeyPrefix: "test:jobs:" + uuid.NewString() + ":"})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStore_CreateGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	handle := uuid.NewString()
	if err := s.Create(ctx, &Job{Handle: handle, SQLText: "SELECT 1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := s.Get(ctx, handle)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.SQLText != "SELECT 1" {
		t.Fatalf("sql_text roundtrip: %q", job.SQLText)
	}
	if job.Status != StatusPending {
		t.Fatalf("want PENDING, got %s", job.Status)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("timestamps not persisted")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}

func TestStore_SetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	handle := uuid.NewString()
	if err := s.Create(ctx, &Job{Handle: handle, SQLText: "SELECT 1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetStatus(ctx, handle, StatusFailed, "engine unreachable"); err != nil {
		t.Fatalf("set status: %v", err)
	}

	job, err := s.Get(ctx, handle)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusFailed || job.Error != "engine unreachable" {
		t.Fatalf("transition not persisted: %s %q", job.Status, job.Error)
	}
	if !job.UpdatedAt.After(job.CreatedAt) && !job.UpdatedAt.Equal(job.CreatedAt) {
		t.Fatalf("updated_at went backwards: %v < %v", job.UpdatedAt, job.CreatedAt)
	}
}
