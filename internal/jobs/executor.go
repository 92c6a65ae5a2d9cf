package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/yourusername/photo-forge/internal/imaging"
	"github.com/yourusername/photo-forge/internal/storage"
)

// Executor は1件のジョブをクレームして変換を実行し、結果を記録します。
// プールとasynqのどちらの配送経路からも同じ手順で呼び出されます。
type Executor struct {
	store   Store
	storage storage.Storage
	svc     *imaging.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor は Executor を作成します。
func NewExecutor(store Store, blobs storage.Storage, svc *imaging.Service, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		storage: blobs,
		svc:     svc,
		timeout: timeout,
		logger:  logger,
	}
}

// Execute はジョブIDで指定されたジョブを処理します。
// クレームに敗れた場合や、レコードが期限切れで消えている場合は何もせず正常終了します。
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	record, err := e.claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, errAlreadyClaimed) || errors.Is(err, ErrNotFound) {
			e.logger.Debug("skipping job", "jobId", jobID, "reason", err)
			return nil
		}
		return err
	}

	e.logger.Info("job started", "jobId", jobID, "filename", record.Filename)
	started := time.Now()

	output, outputName, convErr := e.runConvert(ctx, record)

	// 中断された場合でも終端状態の記録と入力の破棄は完了させる
	finishCtx := context.WithoutCancel(ctx)

	if convErr != nil {
		e.logger.Warn("job failed",
			"jobId", jobID,
			"filename", record.Filename,
			"durationMs", time.Since(started).Milliseconds(),
			"error", convErr,
		)
		e.finish(finishCtx, jobID, func(r *JobRecord) error {
			r.Status = StatusFailure
			r.Error = classifyError(convErr)
			return nil
		})
	} else {
		handle, saveErr := e.saveResult(ctx, output)
		if saveErr != nil {
			e.logger.Error("failed to save result", "jobId", jobID, "error", saveErr)
			e.finish(finishCtx, jobID, func(r *JobRecord) error {
				r.Status = StatusFailure
				r.Error = &ErrorInfo{Code: "INTERNAL_ERROR", Message: "変換結果の保存に失敗しました。"}
				return nil
			})
		} else {
			size := int64(len(output))
			e.logger.Info("job succeeded",
				"jobId", jobID,
				"filename", record.Filename,
				"outputSize", size,
				"durationMs", time.Since(started).Milliseconds(),
			)
			e.finish(finishCtx, jobID, func(r *JobRecord) error {
				r.Status = StatusSuccess
				r.ResultHandle = handle
				r.OutputFilename = outputName
				r.OutputSize = size
				return nil
			})
		}
	}

	e.releaseInput(finishCtx, record.InputHandle)
	return nil
}

// claim は PENDING→PROCESSING の遷移を原子的に行います。
// 別のワーカーが先にクレーム済みの場合は errAlreadyClaimed を返します。
func (e *Executor) claim(ctx context.Context, jobID string) (*JobRecord, error) {
	var claimed *JobRecord
	err := withRetry(func() error {
		record, err := e.store.UpdateJob(ctx, jobID, func(r *JobRecord) error {
			if r.Status != StatusPending {
				return errAlreadyClaimed
			}
			r.Status = StatusProcessing
			return nil
		})
		if err != nil {
			return err
		}
		claimed = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

type convertResult struct {
	output []byte
	name   string
	err    error
}

// runConvert は変換を実行します。制限時間を超えた場合は変換goroutineを
// 放棄してタイムアウトエラーを返します。放棄されたgoroutineの結果は破棄されます。
func (e *Executor) runConvert(ctx context.Context, record *JobRecord) ([]byte, string, error) {
	input, err := e.loadInput(ctx, record.InputHandle)
	if err != nil {
		return nil, "", imaging.NewConversionError(imaging.KindInternal, "入力ファイルの読み込みに失敗しました。", err)
	}

	done := make(chan convertResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- convertResult{err: imaging.NewConversionError(
					imaging.KindInternal,
					"変換処理で内部エラーが発生しました。",
					fmt.Errorf("panic: %v", p),
				)}
			}
		}()
		output, name, err := e.svc.ConvertBytes(input, record.Filename, record.Options)
		done <- convertResult{output: output, name: name, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.output, res.name, res.err
	case <-timer.C:
		return nil, "", imaging.NewConversionError(
			imaging.KindTimeout,
			fmt.Sprintf("変換が制限時間（%d秒）内に完了しませんでした。", int(e.timeout.Seconds())),
			nil,
		)
	case <-ctx.Done():
		// シャットダウン等による中断。制限時間超過とは区別する。
		return nil, "", imaging.NewConversionError(imaging.KindInternal, "変換が中断されました。", ctx.Err())
	}
}

func (e *Executor) loadInput(ctx context.Context, handle string) ([]byte, error) {
	rc, _, err := e.storage.Open(ctx, handle)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (e *Executor) saveResult(ctx context.Context, output []byte) (string, error) {
	var handle string
	err := withRetry(func() error {
		h, err := e.storage.Save(ctx, output)
		if err != nil {
			return &StoreError{Op: "save-result", Err: err}
		}
		handle = h
		return nil
	})
	return handle, err
}

// finish は終端状態への遷移を記録します。レコードが既に期限切れの場合は
// 結果を残す先がないため、ログを出して諦めます。
func (e *Executor) finish(ctx context.Context, jobID string, mutate JobMutator) {
	err := withRetry(func() error {
		_, err := e.store.UpdateJob(ctx, jobID, mutate)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		e.logger.Error("failed to record job result", "jobId", jobID, "error", err)
	}
}

func (e *Executor) releaseInput(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := e.storage.Delete(ctx, handle); err != nil {
		e.logger.Warn("failed to delete input file", "handle", handle, "error", err)
	}
}

// classifyError は変換エラーをレコード用のエラー情報に変換します。
func classifyError(err error) *ErrorInfo {
	var convErr *imaging.ConversionError
	if errors.As(err, &convErr) {
		code := strings.ToUpper(strings.ReplaceAll(string(convErr.Kind), "-", "_"))
		return &ErrorInfo{Code: code, Message: convErr.Message}
	}
	var imgErr *imaging.Error
	if errors.As(err, &imgErr) {
		return &ErrorInfo{Code: imgErr.Code, Message: imgErr.Message}
	}
	return &ErrorInfo{Code: "INTERNAL_ERROR", Message: "変換処理で内部エラーが発生しました。"}
}
