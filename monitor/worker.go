package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/vibeguard/sentinel/entity"
	"github.com/vibeguard/sentinel/logging"
)

// WorkerPool runs the fixed classification worker sets over the two queues.
// Workers exit when their queue is closed and drained, or when the drain
// context expires, whichever comes first.
type WorkerPool struct {
	logger     logging.Logger
	classifier *Classifier
	wg         sync.WaitGroup
}

func NewWorkerPool(logger logging.Logger, classifier *Classifier) *WorkerPool {
	return &WorkerPool{
		logger:     logger,
		classifier: classifier,
	}
}

func (p *WorkerPool) StartNative(ctx context.Context, workers int, queue <-chan *entity.RawTx) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.runNative(ctx, queue)
			p.logger.WithField("worker", id).Debug("native worker stopped")
		}(i)
	}
}

func (p *WorkerPool) StartToken(ctx context.Context, workers int, queue <-chan *entity.RawTransferLog) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.runToken(ctx, queue)
			p.logger.WithField("worker", id).Debug("token worker stopped")
		}(i)
	}
}

func (p *WorkerPool) runNative(ctx context.Context, queue <-chan *entity.RawTx) {
	for {
		select {
		case tx, ok := <-queue:
			if !ok {
				return
			}
			p.classifier.ProcessNativeTx(ctx, tx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) runToken(ctx context.Context, queue <-chan *entity.RawTransferLog) {
	for {
		select {
		case log, ok := <-queue:
			if !ok {
				return
			}
			p.classifier.ProcessTransferLog(ctx, log)
		case <-ctx.Done():
			return
		}
	}
}

// WaitTimeout blocks until every worker has exited or the timeout passes.
// Returns false when workers were still running at the deadline.
func (p *WorkerPool) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
