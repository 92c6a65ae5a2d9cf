package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const taskTypeConvert = "image:convert"

type convertTaskPayload struct {
	JobID string `json:"jobId"`
}

// AsynqDispatcher はRedisを介した分散実行の配送経路です。
// 投入側はタスクをキューに積むだけで、処理は別プロセスのワーカーでも構いません。
// クレームがストア側で原子的なため、プール実行と併用しても二重処理は起きません。
type AsynqDispatcher struct {
	client   *asynq.Client
	server   *asynq.Server
	executor *Executor
	logger   *slog.Logger
}

// NewAsynqDispatcher は AsynqDispatcher を作成します。
func NewAsynqDispatcher(redisOpt asynq.RedisConnOpt, executor *Executor, concurrency int, logger *slog.Logger) *AsynqDispatcher {
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"convert": 1,
		},
	})
	return &AsynqDispatcher{
		client:   asynq.NewClient(redisOpt),
		server:   server,
		executor: executor,
		logger:   logger,
	}
}

// Enqueue は変換タスクをキューに投入します。
// 失敗ジョブの再試行はレコードの終端性と矛盾するため行いません。
func (d *AsynqDispatcher) Enqueue(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(convertTaskPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("jobs: failed to encode task payload: %w", err)
	}
	task := asynq.NewTask(taskTypeConvert, payload)
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue("convert"), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("jobs: failed to enqueue task: %w", err)
	}
	return nil
}

// StartWorkers はタスク処理サーバーを起動します。
func (d *AsynqDispatcher) StartWorkers() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeConvert, d.handleConvertTask)
	if err := d.server.Start(mux); err != nil {
		return fmt.Errorf("jobs: failed to start task server: %w", err)
	}
	d.logger.Info("task server started", "queue", "convert")
	return nil
}

// Shutdown はタスク処理サーバーを停止します。
func (d *AsynqDispatcher) Shutdown() {
	d.server.Shutdown()
	if err := d.client.Close(); err != nil {
		d.logger.Warn("failed to close task client", "error", err)
	}
}

func (d *AsynqDispatcher) handleConvertTask(ctx context.Context, task *asynq.Task) error {
	var payload convertTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: invalid task payload: %w", err)
	}
	return d.executor.Execute(ctx, payload.JobID)
}
