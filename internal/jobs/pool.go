package jobs

import (
	"context"
	"log/slog"
	"sync"
)

// Pool はプロセス内の固定ワーカー数の実行プールです。
// キューは有界で、満杯時の投入は待機せず ErrQueueFull で即座に失敗します。
type Pool struct {
	executor *Executor
	queue    chan string
	workers  int
	logger   *slog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPool は Pool を作成します。Start を呼ぶまでワーカーは起動しません。
func NewPool(executor *Executor, workers, capacity int, logger *slog.Logger) *Pool {
	return &Pool{
		executor: executor,
		queue:    make(chan string, capacity),
		workers:  workers,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start はワーカーgoroutineを起動します。
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "queueCapacity", cap(p.queue))
}

// Stop はワーカーを停止し、実行中のジョブの完了を待ちます。
// キューに残ったジョブは処理されず、PENDING のままTTLで消滅します。
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Enqueue はジョブを実行キューに投入します。満杯の場合は ErrQueueFull を返します。
func (p *Pool) Enqueue(ctx context.Context, jobID string) error {
	select {
	case p.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case jobID := <-p.queue:
			if err := p.executor.Execute(context.Background(), jobID); err != nil {
				p.logger.Error("job execution failed", "worker", id, "jobId", jobID, "error", err)
			}
		}
	}
}
