package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/kline/internal/adapters/mq/queue"
	"github.com/okian/kline/pkg/logger"
	"github.com/okian/kline/pkg/metrics"
)

const defaultWorkerMultiplier = 2

// Job is what workers read off the queue.
type Job = queue.Job

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, j Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, j Job) error { return f(ctx, j) }

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	name    string
	count   int
	queue   Queue
	handler Handler
	logger  logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool creates a pool of workerCount workers. A count below one selects
// twice the number of CPUs.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		name:    "annotation",
		count:   workerCount,
		queue:   q,
		handler: h,
		logger:  logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.count }

// Start launches the workers. They stop when ctx is cancelled, when the
// queue channel closes, or on Shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	jobs := p.queue.Dequeue(ctx)
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, p.logger.Named(p.name+"-"+strconv.Itoa(i)), jobs)
	}
	metrics.UpdateWorkerCount(p.count)
}

func (p *Pool) run(ctx context.Context, log logger.Logger, jobs <-chan Job) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			p.process(ctx, log, j)
		}
	}
}

func (p *Pool) process(ctx context.Context, log logger.Logger, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			log.Error(ctx, "job panicked", logger.String("job", j.ID), logger.Any("panic", r))
		}
	}()
	if err := p.handler.Handle(ctx, j); err != nil {
		metrics.RecordWorkerError()
		log.Warn(ctx, "job failed",
			logger.String("job", j.ID),
			logger.String("timeline", j.TimelineID),
			logger.Int("index", j.Index),
			logger.Error(err),
		)
		return
	}
	metrics.RecordAnnotationLatency(float64(time.Since(start).Milliseconds()))
}

// Shutdown closes the queue when it can be closed and waits for the
// workers to drain it. When ctx ends first, in-flight jobs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out")
			err = fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		metrics.UpdateWorkerCount(0)
	})
	return err
}
