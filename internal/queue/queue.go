// Package queue decouples import-job creation from execution. The inline
// dispatcher runs a job in-process; the AMQP dispatcher hands it to
// cmd/worker through RabbitMQ.
package queue

import (
	"context"
	"log/slog"
)

// Runner executes one import job to its terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Dispatcher hands a created job off for execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
	Close() error
}

// InlineDispatcher runs each job in its own goroutine. Jobs inherit the
// process-lifetime context, so shutdown cancels in-flight imports
// cooperatively at a conversation boundary.
type InlineDispatcher struct {
	base   context.Context
	runner Runner
	log    *slog.Logger
}

func NewInlineDispatcher(base context.Context, runner Runner, log *slog.Logger) *InlineDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &InlineDispatcher{base: base, runner: runner, log: log}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, jobID string) error {
	go func() {
		if err := d.runner.Run(d.base, jobID); err != nil {
			d.log.Error("import job run failed", "job_id", jobID, "err", err)
		}
	}()
	return nil
}

func (d *InlineDispatcher) Close() error { return nil }
