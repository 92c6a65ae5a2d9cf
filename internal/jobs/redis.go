package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix   = "job:"
	batchKeyPrefix = "batch:"

	casMaxAttempts = 5
)

// RedisStore はジョブ/バッチレコードを Redis に保存します。
// レコードはJSONで保持し、TTLはキー単位で設定します。
// UpdateJob は WATCH による楽観ロックで原子性を保証します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// PutJob はジョブレコードを保存します。
func (s *RedisStore) PutJob(ctx context.Context, record *JobRecord) error {
	if record == nil || record.JobID == "" {
		return fmt.Errorf("jobs: record and JobID are required")
	}
	s.stampTimes(&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt)
	return s.put(ctx, jobKey(record.JobID), record)
}

// GetJob はジョブレコードを取得します。
func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	var record JobRecord
	if err := s.get(ctx, jobKey(jobID), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateJob はジョブレコードを原子的に更新します。
// 競合時は再試行し、規定回数を超えた場合は *StoreError を返します。
func (s *RedisStore) UpdateJob(ctx context.Context, jobID string, mutate JobMutator) (*JobRecord, error) {
	key := jobKey(jobID)

	var updated *JobRecord
	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrNotFound
				}
				return &StoreError{Op: "get", Err: err}
			}

			var record JobRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return &StoreError{Op: "decode", Err: err}
			}
			if err := mutate(&record); err != nil {
				return err
			}
			record.UpdatedAt = time.Now().UTC()

			payload, err := json.Marshal(&record)
			if err != nil {
				return &StoreError{Op: "encode", Err: err}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			updated = &record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, &StoreError{Op: "update", Err: fmt.Errorf("too many concurrent updates for job %s", jobID)}
}

// DeleteJob はジョブレコードを削除します。
func (s *RedisStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.rdb.Del(ctx, jobKey(jobID)).Err(); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

// PutBatch はバッチレコードを保存します。
func (s *RedisStore) PutBatch(ctx context.Context, record *BatchRecord) error {
	if record == nil || record.BatchID == "" {
		return fmt.Errorf("jobs: record and BatchID are required")
	}
	var updatedAt time.Time
	s.stampTimes(&record.CreatedAt, &updatedAt, &record.ExpiresAt)
	return s.put(ctx, batchKey(record.BatchID), record)
}

// GetBatch はバッチレコードを取得します。
func (s *RedisStore) GetBatch(ctx context.Context, batchID string) (*BatchRecord, error) {
	var record BatchRecord
	if err := s.get(ctx, batchKey(batchID), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteBatch はバッチレコードを削除します。
func (s *RedisStore) DeleteBatch(ctx context.Context, batchID string) error {
	if err := s.rdb.Del(ctx, batchKey(batchID)).Err(); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

func (s *RedisStore) put(ctx context.Context, key string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return &StoreError{Op: "encode", Err: err}
	}
	if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return &StoreError{Op: "set", Err: err}
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string, record any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return &StoreError{Op: "get", Err: err}
	}
	if err := json.Unmarshal(data, record); err != nil {
		return &StoreError{Op: "decode", Err: err}
	}
	return nil
}

func (s *RedisStore) stampTimes(createdAt, updatedAt, expiresAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
	if expiresAt.IsZero() && s.ttl > 0 {
		*expiresAt = createdAt.Add(s.ttl)
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func batchKey(id string) string {
	return batchKeyPrefix + id
}
