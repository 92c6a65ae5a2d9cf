package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourusername/photo-forge/internal/imaging"
)

// seedPendingJob は入力ファイルを保存し、PENDING のジョブレコードを作成します。
func seedPendingJob(t *testing.T, env *testEnv, jobID string, data []byte) {
	t.Helper()
	ctx := context.Background()
	handle, err := env.blobs.Save(ctx, data)
	if err != nil {
		t.Fatalf("failed to save input: %v", err)
	}
	record := &JobRecord{
		JobID:       jobID,
		Filename:    "input.jpg",
		Size:        int64(len(data)),
		Options:     imaging.Options{OutputFormat: imaging.FormatJPEG, Quality: 85},
		Status:      StatusPending,
		InputHandle: handle,
	}
	if err := env.store.PutJob(ctx, record); err != nil {
		t.Fatalf("failed to put job: %v", err)
	}
}

func waitForTerminal(t *testing.T, env *testEnv, jobID string, deadline time.Duration) *JobRecord {
	t.Helper()
	timeout := time.After(deadline)
	for {
		select {
		case <-timeout:
			t.Fatalf("job %s did not reach a terminal state within %v", jobID, deadline)
		case <-time.After(10 * time.Millisecond):
			record, err := env.store.GetJob(context.Background(), jobID)
			if err != nil {
				t.Fatalf("GetJob returned error: %v", err)
			}
			if record.Status.Terminal() {
				return record
			}
		}
	}
}

func TestPoolEnqueueFullFailsFast(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)
	pool := NewPool(env.executor, 1, 1, testLogger())
	// 未起動のプールはキューを消費しないため容量で詰まる

	if err := pool.Enqueue(context.Background(), "job-1"); err != nil {
		t.Fatalf("first enqueue should succeed: %v", err)
	}

	start := time.Now()
	err := pool.Enqueue(context.Background(), "job-2")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("full queue must reject immediately, took %v", elapsed)
	}
}

func TestPoolProcessesJob(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)
	pool := NewPool(env.executor, 2, 10, testLogger())
	pool.Start()
	defer pool.Stop()

	seedPendingJob(t, env, "job-1", tinyJPEG(t))
	if err := pool.Enqueue(context.Background(), "job-1"); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	record := waitForTerminal(t, env, "job-1", 2*time.Second)
	if record.Status != StatusSuccess {
		t.Fatalf("status = %s (error: %+v), want SUCCESS", record.Status, record.Error)
	}
	if record.OutputFilename != "input_converted.jpg" {
		t.Fatalf("outputFilename = %q", record.OutputFilename)
	}
	if record.ResultHandle == "" || record.OutputSize == 0 {
		t.Fatalf("result not recorded: %#v", record)
	}
}

func TestPoolConvertTimeout(t *testing.T) {
	slow := func(input []byte, filename string, opts imaging.Options) ([]byte, error) {
		time.Sleep(500 * time.Millisecond)
		return input, nil
	}
	env := newTestEnv(t, slow, 50*time.Millisecond)
	pool := NewPool(env.executor, 1, 10, testLogger())
	pool.Start()
	defer pool.Stop()

	seedPendingJob(t, env, "job-slow", tinyJPEG(t))
	if err := pool.Enqueue(context.Background(), "job-slow"); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	record := waitForTerminal(t, env, "job-slow", time.Second)
	if record.Status != StatusFailure {
		t.Fatalf("status = %s, want FAILURE", record.Status)
	}
	if record.Error == nil || record.Error.Code != "TIMEOUT" {
		t.Fatalf("unexpected error info: %+v", record.Error)
	}

	// タイムアウト後もワーカーは次のジョブを処理できること
	fast := "job-after"
	seedPendingJob(t, env, fast, tinyJPEG(t))
	if err := pool.Enqueue(context.Background(), fast); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	after := waitForTerminal(t, env, fast, 2*time.Second)
	if !after.Status.Terminal() {
		t.Fatalf("pool worker stalled after timeout: %s", after.Status)
	}
}

func TestPoolSurvivesUnknownJob(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)
	pool := NewPool(env.executor, 1, 10, testLogger())
	pool.Start()
	defer pool.Stop()

	if err := pool.Enqueue(context.Background(), "no-such-job"); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	seedPendingJob(t, env, "job-real", tinyJPEG(t))
	if err := pool.Enqueue(context.Background(), "job-real"); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	record := waitForTerminal(t, env, "job-real", 2*time.Second)
	if record.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", record.Status)
	}
}

func TestExecutorInterruptedRecordsInternalFailure(t *testing.T) {
	slow := func(input []byte, filename string, opts imaging.Options) ([]byte, error) {
		time.Sleep(500 * time.Millisecond)
		return input, nil
	}
	env := newTestEnv(t, slow, 10*time.Second)

	seedPendingJob(t, env, "job-int", tinyJPEG(t))

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()
	defer cancel()

	if err := env.executor.Execute(ctx, "job-int"); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	record, err := env.store.GetJob(context.Background(), "job-int")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if record.Status != StatusFailure {
		t.Fatalf("status = %s, want FAILURE", record.Status)
	}
	// 中断は制限時間超過ではない
	if record.Error == nil || record.Error.Code != "INTERNAL" {
		t.Fatalf("unexpected error info: %+v", record.Error)
	}
}

func TestExecutorSkipsClaimedJob(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)
	ctx := context.Background()

	seedPendingJob(t, env, "job-1", tinyJPEG(t))
	if _, err := env.store.UpdateJob(ctx, "job-1", func(r *JobRecord) error {
		r.Status = StatusProcessing
		return nil
	}); err != nil {
		t.Fatalf("UpdateJob returned error: %v", err)
	}

	if err := env.executor.Execute(ctx, "job-1"); err != nil {
		t.Fatalf("Execute should skip a claimed job silently: %v", err)
	}

	record, err := env.store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if record.Status != StatusProcessing {
		t.Fatalf("status = %s, want PROCESSING (untouched)", record.Status)
	}
}
