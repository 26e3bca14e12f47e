package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lucasmonteiro/triageflow/internal/config"
	"github.com/lucasmonteiro/triageflow/internal/queue"
	"github.com/lucasmonteiro/triageflow/internal/triage"
)

// queueErrorBackoff is how long a consumer sleeps after a queue store error
// before polling again.
const queueErrorBackoff = 5 * time.Second

// Processor handles one envelope delivery. Satisfied by *triage.Service.
type Processor interface {
	Process(ctx context.Context, env *queue.Envelope) triage.ProcessResult
}

// Pool runs a fixed set of consumer goroutines draining the triage queues.
// Each cycle fills a batch priority-first, then the retry lane, then the main
// queue, so urgent and already-delayed envelopes are always served before
// fresh intake. Every envelope in a batch is dispatched on its own goroutine
// and the cycle joins before polling again.
type Pool struct {
	queue     queue.Queue
	processor Processor
	logger    *slog.Logger
	cfg       config.QueueConfig
}

func NewPool(q queue.Queue, p Processor, logger *slog.Logger, cfg config.QueueConfig) *Pool {
	return &Pool{queue: q, processor: p, logger: logger, cfg: cfg}
}

// Run blocks until ctx is cancelled, then waits for in-flight envelopes to
// finish.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.ConsumerThreads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.consume(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) consume(ctx context.Context, id int) {
	logger := p.logger.With("consumer", id)
	logger.Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("consumer stopped")
			return
		default:
		}

		batch, err := p.nextBatch(ctx)
		if err != nil {
			logger.Error("fetching batch failed", "error", err)
			sleepCtx(ctx, queueErrorBackoff)
			continue
		}
		if len(batch) == 0 {
			p.idle(ctx, logger)
			continue
		}

		var wg sync.WaitGroup
		for _, env := range batch {
			wg.Add(1)
			go func(env *queue.Envelope) {
				defer wg.Done()
				p.handle(ctx, logger, env)
			}(env)
		}
		wg.Wait()
	}
}

// idle waits for fresh intake by blocking on the main queue for up to
// PollTimeout; the priority and retry lanes are re-checked on the next cycle.
func (p *Pool) idle(ctx context.Context, logger *slog.Logger) {
	if p.cfg.PollTimeout <= 0 {
		sleepCtx(ctx, p.cfg.ProcessingInterval)
		return
	}

	env, err := p.queue.ReceiveBlocking(ctx, queue.MainQueue, p.cfg.PollTimeout)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("blocking receive failed", "error", err)
			sleepCtx(ctx, queueErrorBackoff)
		}
		return
	}
	if env != nil {
		p.handle(ctx, logger, env)
	}
}

// nextBatch fills up to BatchSize envelopes: half the budget is reserved for
// the priority queue, the rest drains retries before fresh intake.
func (p *Pool) nextBatch(ctx context.Context) ([]*queue.Envelope, error) {
	batch := make([]*queue.Envelope, 0, p.cfg.BatchSize)

	priorityBudget := p.cfg.BatchSize / 2
	if priorityBudget < 1 {
		priorityBudget = 1
	}
	urgent, err := p.queue.ReceivePriorityBatch(ctx, priorityBudget)
	if err != nil {
		return nil, err
	}
	batch = append(batch, urgent...)

	if remaining := p.cfg.BatchSize - len(batch); remaining > 0 {
		retries, err := p.queue.ReceiveBatch(ctx, queue.RetryQueue, remaining)
		if err != nil {
			return nil, err
		}
		batch = append(batch, retries...)
	}

	if remaining := p.cfg.BatchSize - len(batch); remaining > 0 {
		fresh, err := p.queue.ReceiveBatch(ctx, queue.MainQueue, remaining)
		if err != nil {
			return nil, err
		}
		batch = append(batch, fresh...)
	}

	return batch, nil
}

// handle runs one delivery through the processor and settles it with the
// queue. Queue bookkeeping failures are logged and dropped; the cleanup
// scheduler reclaims any marker left behind.
func (p *Pool) handle(ctx context.Context, logger *slog.Logger, env *queue.Envelope) {
	if err := p.queue.MarkProcessing(ctx, env); err != nil {
		logger.Error("marking processing failed", "triage_id", env.TriageID, "error", err)
	}

	result := p.processor.Process(ctx, env)

	switch {
	case result.Outcome == triage.OutcomeSuccess:
		if err := p.queue.MarkCompleted(ctx, env); err != nil {
			logger.Error("marking completed failed", "triage_id", env.TriageID, "error", err)
		}

	case result.Outcome == triage.OutcomeSkipped:
		logger.Info("delivery skipped", "triage_id", env.TriageID, "reason", result.Reason)
		if err := p.queue.Ack(ctx, env); err != nil {
			logger.Error("ack failed", "triage_id", env.TriageID, "error", err)
		}

	case result.Retryable:
		if err := p.queue.MarkFailed(ctx, env, result.Reason); err != nil {
			logger.Error("marking failed failed", "triage_id", env.TriageID, "error", err)
		}
		if err := p.queue.Nack(ctx, env); err != nil {
			logger.Error("nack failed", "triage_id", env.TriageID, "error", err)
		}

	default:
		if err := p.queue.MarkFailed(ctx, env, result.Reason); err != nil {
			logger.Error("marking failed failed", "triage_id", env.TriageID, "error", err)
		}
		if err := p.queue.EnqueueDeadLetter(ctx, env, result.Reason); err != nil {
			logger.Error("dead-lettering failed", "triage_id", env.TriageID, "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
