package jobs

import "context"

// JobMutator はジョブレコードの更新処理です。エラーを返すと更新は行われません。
type JobMutator func(*JobRecord) error

// Store はジョブ/バッチレコードのストアです。
// UpdateJob は並行するクレームに対して原子的であることが要求されます:
// 同一ジョブに対する PENDING→PROCESSING の遷移は必ず1回しか成功しません。
// 存在しないレコードへのアクセスは ErrNotFound、一時的な障害は *StoreError を返します。
type Store interface {
	PutJob(ctx context.Context, record *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
	UpdateJob(ctx context.Context, jobID string, mutate JobMutator) (*JobRecord, error)
	DeleteJob(ctx context.Context, jobID string) error

	PutBatch(ctx context.Context, record *BatchRecord) error
	GetBatch(ctx context.Context, batchID string) (*BatchRecord, error)
	DeleteBatch(ctx context.Context, batchID string) error
}
