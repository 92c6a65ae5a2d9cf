package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yourusername/photo-forge/internal/imaging"
	"github.com/yourusername/photo-forge/internal/storage"
)

// Enqueuer はジョブ実行の配送経路です。Pool と AsynqDispatcher が実装します。
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// UploadFile は投入された1ファイル分の内容です。
type UploadFile struct {
	Filename string
	Data     []byte
}

// SubmitResult はバッチ受付の結果です。
type SubmitResult struct {
	BatchID    string
	TotalFiles int
	Jobs       []*JobRecord
}

// Coordinator はジョブ/バッチのライフサイクル全体を調整します。
// 受付、レコード作成、実行キューへの投入、照会、結果の取り出しを担当します。
type Coordinator struct {
	store         Store
	storage       storage.Storage
	svc           *imaging.Service
	enqueuer      Enqueuer
	maxBatchFiles int
	logger        *slog.Logger
}

// NewCoordinator は Coordinator を作成します。
func NewCoordinator(store Store, blobs storage.Storage, svc *imaging.Service, enqueuer Enqueuer, maxBatchFiles int, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:         store,
		storage:       blobs,
		svc:           svc,
		enqueuer:      enqueuer,
		maxBatchFiles: maxBatchFiles,
		logger:        logger,
	}
}

// SubmitJob は単一ファイルの変換ジョブを受け付けます。
// 検証に失敗した場合はレコードを作成せずエラーを返します。
// キューが満杯の場合は作成済みのレコードと入力ファイルを破棄して ErrQueueFull を返します。
func (c *Coordinator) SubmitJob(ctx context.Context, file UploadFile, opts imaging.Options) (*JobRecord, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := imaging.ValidateFile(file.Data, file.Filename, c.svc.MaxFileSize()); err != nil {
		return nil, err
	}

	record, err := c.createPendingJob(ctx, "", file, opts)
	if err != nil {
		return nil, err
	}

	if err := c.enqueuer.Enqueue(ctx, record.JobID); err != nil {
		c.rollbackJob(ctx, record)
		if errors.Is(err, ErrQueueFull) {
			return nil, ErrQueueFull
		}
		return nil, fmt.Errorf("jobs: failed to enqueue job %s: %w", record.JobID, err)
	}

	c.logger.Info("job accepted", "jobId", record.JobID, "filename", record.Filename, "size", record.Size)
	return record, nil
}

// SubmitBatch は一括変換を受け付けます。
// 検証に失敗したファイルは即座に FAILURE のジョブとしてバッチに含めます。
// キューが満杯になった場合は受付全体を取り消し、ErrQueueFull を返します。
func (c *Coordinator) SubmitBatch(ctx context.Context, files []UploadFile, opts imaging.Options) (*SubmitResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, imaging.NewError("INVALID_INPUT", "ファイルが指定されていません。", nil)
	}
	if len(files) > c.maxBatchFiles {
		return nil, imaging.NewError("LIMIT_EXCEEDED",
			fmt.Sprintf("一括変換は最大%dファイルまでです。", c.maxBatchFiles), nil)
	}

	batchID := uuid.NewString()
	jobs := make([]*JobRecord, 0, len(files))
	jobIDs := make([]string, 0, len(files))

	// まず全ファイルを検証してレコードを組み立てる。
	// バッチレコードの保存前には終端状態のジョブも書き込まない。
	for _, file := range files {
		record := &JobRecord{
			JobID:    uuid.NewString(),
			BatchID:  batchID,
			Filename: file.Filename,
			Size:     int64(len(file.Data)),
			Options:  opts,
		}
		if verr := imaging.ValidateFile(file.Data, file.Filename, c.svc.MaxFileSize()); verr != nil {
			record.Status = StatusFailure
			record.Error = classifyError(verr)
		} else {
			handle, err := c.storage.Save(ctx, file.Data)
			if err != nil {
				c.releaseHandles(ctx, jobs)
				return nil, fmt.Errorf("jobs: failed to save input file: %w", err)
			}
			record.Status = StatusPending
			record.InputHandle = handle
		}
		jobs = append(jobs, record)
		jobIDs = append(jobIDs, record.JobID)
	}

	rollback := func() {
		for _, job := range jobs {
			c.rollbackJob(ctx, job)
		}
		if err := c.store.DeleteBatch(ctx, batchID); err != nil {
			c.logger.Warn("failed to delete batch during rollback", "batchId", batchID, "error", err)
		}
	}

	batch := &BatchRecord{
		BatchID:    batchID,
		JobIDs:     jobIDs,
		TotalFiles: len(files),
	}
	if err := withRetry(func() error { return c.store.PutBatch(ctx, batch) }); err != nil {
		c.releaseHandles(ctx, jobs)
		return nil, err
	}

	for _, job := range jobs {
		if err := withRetry(func() error { return c.store.PutJob(ctx, job) }); err != nil {
			rollback()
			return nil, err
		}
	}

	for _, job := range jobs {
		if job.Status != StatusPending {
			continue
		}
		if err := c.enqueuer.Enqueue(ctx, job.JobID); err != nil {
			c.logger.Warn("batch submission rejected", "batchId", batchID, "error", err)
			rollback()
			if errors.Is(err, ErrQueueFull) {
				return nil, ErrQueueFull
			}
			return nil, fmt.Errorf("jobs: failed to enqueue job %s: %w", job.JobID, err)
		}
	}

	c.logger.Info("batch accepted", "batchId", batchID, "totalFiles", len(files))
	return &SubmitResult{BatchID: batchID, TotalFiles: len(files), Jobs: jobs}, nil
}

// Job はジョブレコードを照会します。
func (c *Coordinator) Job(ctx context.Context, jobID string) (*JobRecord, error) {
	var record *JobRecord
	err := withRetry(func() error {
		r, err := c.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// BatchStatus はバッチの集計状態を照会します。
// 集計はレコードに保存せず、照会のたびに構成ジョブから導出します。
func (c *Coordinator) BatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	batch, err := c.batch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*JobRecord, len(batch.JobIDs))
	for _, jobID := range batch.JobIDs {
		record, err := c.Job(ctx, jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		records[jobID] = record
	}

	return Aggregate(batch, records), nil
}

// OpenResult は成功したジョブの変換結果を開きます。
// ジョブが終端に達していない、または失敗している場合は ErrResultNotReady を返します。
func (c *Coordinator) OpenResult(ctx context.Context, jobID string) (io.ReadCloser, *JobRecord, error) {
	record, err := c.Job(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if record.Status != StatusSuccess {
		return nil, record, ErrResultNotReady
	}

	rc, _, err := c.storage.Open(ctx, record.ResultHandle)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, record, ErrNotFound
		}
		return nil, record, err
	}
	return rc, record, nil
}

func (c *Coordinator) batch(ctx context.Context, batchID string) (*BatchRecord, error) {
	var batch *BatchRecord
	err := withRetry(func() error {
		b, err := c.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (c *Coordinator) createPendingJob(ctx context.Context, batchID string, file UploadFile, opts imaging.Options) (*JobRecord, error) {
	handle, err := c.storage.Save(ctx, file.Data)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to save input file: %w", err)
	}

	record := &JobRecord{
		JobID:       uuid.NewString(),
		BatchID:     batchID,
		Filename:    file.Filename,
		Size:        int64(len(file.Data)),
		Options:     opts,
		Status:      StatusPending,
		InputHandle: handle,
	}
	if err := withRetry(func() error { return c.store.PutJob(ctx, record) }); err != nil {
		c.releaseHandle(ctx, handle)
		return nil, err
	}
	return record, nil
}

// releaseHandles は保存済みの入力ファイルだけを破棄します（レコード未作成時用）。
func (c *Coordinator) releaseHandles(ctx context.Context, jobs []*JobRecord) {
	for _, job := range jobs {
		c.releaseHandle(ctx, job.InputHandle)
	}
}

// rollbackJob は受付取り消し時にレコードと入力ファイルを破棄します。失敗してもTTLで消えます。
func (c *Coordinator) rollbackJob(ctx context.Context, record *JobRecord) {
	if err := c.store.DeleteJob(ctx, record.JobID); err != nil {
		c.logger.Warn("failed to delete job during rollback", "jobId", record.JobID, "error", err)
	}
	c.releaseHandle(ctx, record.InputHandle)
}

func (c *Coordinator) releaseHandle(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := c.storage.Delete(ctx, handle); err != nil {
		c.logger.Warn("failed to delete input file", "handle", handle, "error", err)
	}
}
