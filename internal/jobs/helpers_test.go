package jobs

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/yourusername/photo-forge/internal/imaging"
	"github.com/yourusername/photo-forge/internal/storage"
)

// tinyJPEG は検証を通過する最小限のJPEG画像を生成します。
func tinyJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store    *MemoryStore
	blobs    *storage.Local
	svc      *imaging.Service
	executor *Executor
}

// newTestEnv はテスト用の一式を組み立てます。convert が nil の場合は既定実装を使います。
func newTestEnv(t *testing.T, convert imaging.ConvertFunc, timeout time.Duration) *testEnv {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	t.Cleanup(store.Close)

	blobs, err := storage.NewLocal(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	svc := imaging.NewService(convert, 10*1024*1024)
	executor := NewExecutor(store, blobs, svc, timeout, testLogger())
	return &testEnv{store: store, blobs: blobs, svc: svc, executor: executor}
}

// syncEnqueuer は投入と同時にその場で実行するテスト用の配送経路です。
type syncEnqueuer struct {
	executor *Executor
}

func (e *syncEnqueuer) Enqueue(ctx context.Context, jobID string) error {
	return e.executor.Execute(ctx, jobID)
}

// rejectEnqueuer は常に満杯を返すテスト用の配送経路です。
type rejectEnqueuer struct{}

func (e *rejectEnqueuer) Enqueue(ctx context.Context, jobID string) error {
	return ErrQueueFull
}

// noopEnqueuer は投入を受け付けるだけで実行しません。ジョブは PENDING のままです。
type noopEnqueuer struct{}

func (e *noopEnqueuer) Enqueue(ctx context.Context, jobID string) error {
	return nil
}
