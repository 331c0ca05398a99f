package exportjob

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-gridexport/export"
	job "github.com/goliatone/go-job"
)

// Executor runs one execution message. *GenerateTask implements it.
type Executor interface {
	Execute(ctx context.Context, msg *job.ExecutionMessage) error
}

// Queue is an in-process Enqueuer drained by a fixed set of workers.
// Messages still queued when Run returns are dropped.
type Queue struct {
	executor Executor
	messages chan *job.ExecutionMessage
	workers  int
	logger   export.Logger
}

func NewQueue(executor Executor, size, workers int, logger export.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = export.NopLogger{}
	}
	return &Queue{
		executor: executor,
		messages: make(chan *job.ExecutionMessage, size),
		workers:  workers,
		logger:   logger,
	}
}

// Enqueue adds msg without blocking. A full queue is an error.
func (q *Queue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return export.NewError(export.KindValidation, "execution message is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.messages <- msg:
		return nil
	default:
		return export.NewError(export.KindInternal, "job queue is full", nil)
	}
}

// Run executes queued messages until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	if q.executor == nil {
		return export.NewError(export.KindNotImpl, "job executor not configured", nil)
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case msg := <-q.messages:
					if err := q.executor.Execute(gctx, msg); err != nil {
						q.logger.Errorf("job %s failed: %v", msg.JobID, err)
					}
				}
			}
		})
	}
	return g.Wait()
}

// Pending reports how many messages wait for a worker.
func (q *Queue) Pending() int {
	return len(q.messages)
}
