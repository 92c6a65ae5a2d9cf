package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	record := &JobRecord{JobID: "job-1", Filename: "photo.heic", Status: StatusPending}
	if err := store.PutJob(ctx, record); err != nil {
		t.Fatalf("PutJob returned error: %v", err)
	}
	if record.CreatedAt.IsZero() || record.ExpiresAt.IsZero() {
		t.Fatal("PutJob should stamp CreatedAt and ExpiresAt")
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if got.Filename != "photo.heic" || got.Status != StatusPending {
		t.Fatalf("unexpected record: %#v", got)
	}

	// 返されたレコードへの変更がストアに波及しないこと
	got.Status = StatusSuccess
	again, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if again.Status != StatusPending {
		t.Fatal("GetJob must return an isolated copy")
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	if _, err := store.GetJob(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetBatch(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore(50 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	if err := store.PutJob(ctx, &JobRecord{JobID: "job-1", Status: StatusPending}); err != nil {
		t.Fatalf("PutJob returned error: %v", err)
	}
	if err := store.PutBatch(ctx, &BatchRecord{BatchID: "batch-1", JobIDs: []string{"job-1"}, TotalFiles: 1}); err != nil {
		t.Fatalf("PutBatch returned error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := store.GetJob(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
	if _, err := store.GetBatch(ctx, "batch-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
	if _, err := store.UpdateJob(ctx, "job-1", func(r *JobRecord) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired update, got %v", err)
	}
}

func TestMemoryStoreUpdateMutatorError(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	if err := store.PutJob(ctx, &JobRecord{JobID: "job-1", Status: StatusPending}); err != nil {
		t.Fatalf("PutJob returned error: %v", err)
	}

	wantErr := errors.New("boom")
	if _, err := store.UpdateJob(ctx, "job-1", func(r *JobRecord) error {
		r.Status = StatusProcessing
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatal("failed mutation must not be committed")
	}
}

func TestMemoryStoreClaimRace(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	if err := store.PutJob(ctx, &JobRecord{JobID: "job-1", Status: StatusPending}); err != nil {
		t.Fatalf("PutJob returned error: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateJob(ctx, "job-1", func(r *JobRecord) error {
				if r.Status != StatusPending {
					return errAlreadyClaimed
				}
				r.Status = StatusProcessing
				return nil
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, errAlreadyClaimed) {
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly 1 claim winner, got %d", winners)
	}
}
