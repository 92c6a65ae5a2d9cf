package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

// MemoryStore はプロセス内のTTL付きレコードストアです。
// 期限切れはアクセス時の遅延判定と、バックグラウンドの定期掃引の両方で行われます。
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*JobRecord
	batches map[string]*BatchRecord
	ttl     time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore は MemoryStore を作成し、掃引goroutineを起動します。
// ttl が 0 以下の場合は期限切れ処理を行いません。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		jobs:    make(map[string]*JobRecord),
		batches: make(map[string]*BatchRecord),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweepLoop()
	}
	return s
}

// Close は掃引goroutineを停止します。
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// PutJob はジョブレコードを保存します。
func (s *MemoryStore) PutJob(ctx context.Context, record *JobRecord) error {
	if record == nil || record.JobID == "" {
		return fmt.Errorf("jobs: record and JobID are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	clone := record.Clone()
	s.stampTimes(&clone.CreatedAt, &clone.UpdatedAt, &clone.ExpiresAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[clone.JobID] = clone

	record.CreatedAt = clone.CreatedAt
	record.UpdatedAt = clone.UpdatedAt
	record.ExpiresAt = clone.ExpiresAt
	return nil
}

// GetJob はジョブレコードを取得します。
func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.liveJob(jobID)
	if record == nil {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// UpdateJob はジョブレコードを原子的に更新します。
func (s *MemoryStore) UpdateJob(ctx context.Context, jobID string, mutate JobMutator) (*JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.liveJob(jobID)
	if record == nil {
		return nil, ErrNotFound
	}

	clone := record.Clone()
	if err := mutate(clone); err != nil {
		return nil, err
	}
	clone.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = clone
	return clone.Clone(), nil
}

// DeleteJob はジョブレコードを削除します。
func (s *MemoryStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

// PutBatch はバッチレコードを保存します。
func (s *MemoryStore) PutBatch(ctx context.Context, record *BatchRecord) error {
	if record == nil || record.BatchID == "" {
		return fmt.Errorf("jobs: record and BatchID are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	clone := record.Clone()
	var updatedAt time.Time
	s.stampTimes(&clone.CreatedAt, &updatedAt, &clone.ExpiresAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[clone.BatchID] = clone

	record.CreatedAt = clone.CreatedAt
	record.ExpiresAt = clone.ExpiresAt
	return nil
}

// GetBatch はバッチレコードを取得します。
func (s *MemoryStore) GetBatch(ctx context.Context, batchID string) (*BatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(record.ExpiresAt) {
		delete(s.batches, batchID)
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// DeleteBatch はバッチレコードを削除します。
func (s *MemoryStore) DeleteBatch(ctx context.Context, batchID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, batchID)
	return nil
}

// liveJob は期限切れでないジョブを返します。期限切れはその場で破棄します。
// 呼び出し側が s.mu を保持していること。
func (s *MemoryStore) liveJob(jobID string) *JobRecord {
	record, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	if s.expired(record.ExpiresAt) {
		delete(s.jobs, jobID)
		return nil
	}
	return record
}

func (s *MemoryStore) expired(expiresAt time.Time) bool {
	return s.ttl > 0 && !expiresAt.IsZero() && time.Now().UTC().After(expiresAt)
}

func (s *MemoryStore) stampTimes(createdAt, updatedAt, expiresAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
	if expiresAt.IsZero() && s.ttl > 0 {
		*expiresAt = createdAt.Add(s.ttl)
	}
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.jobs {
		if s.expired(record.ExpiresAt) {
			delete(s.jobs, id)
		}
	}
	for id, record := range s.batches {
		if s.expired(record.ExpiresAt) {
			delete(s.batches, id)
		}
	}
}
