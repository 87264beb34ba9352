// Package scheduler drives all eligible items through the state machine
// while respecting a bounded concurrency limit.
//
// Items fan out over an errgroup with a concurrency cap
// (errgroup.Group.SetLimit) and a results channel per invocation. A durable
// checkpoint flush follows every single state transition, serialized
// through one mutex, so the concurrency bound and the durability guarantee
// hold simultaneously: no two goroutines mutate the checkpoint at once, and
// no transition is ever left unflushed before the next item is dispatched.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/checkpoint"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/telemetry"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/worker"
)

// InfraError distinguishes fatal infrastructure failures (checkpoint I/O)
// from ordinary per-item failures. cmd/batchengine maps this to a non-zero
// exit code; per-item failures never do.
type InfraError struct {
	Err error
}

func (e *InfraError) Error() string { return fmt.Sprintf("infrastructure error: %v", e.Err) }
func (e *InfraError) Unwrap() error { return e.Err }

// Scheduler drives one run of a Checkpoint's eligible items to completion.
type Scheduler struct {
	Store      *checkpoint.Store
	Invoker    *worker.Invoker
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
	MaxRetries int
}

// New creates a Scheduler.
func New(store *checkpoint.Store, invoker *worker.Invoker, maxRetries int, logger *slog.Logger, metrics *telemetry.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{Store: store, Invoker: invoker, Logger: logger, Metrics: metrics, MaxRetries: maxRetries}
}

// Result summarizes one run for the job-level log line.
type Result struct {
	Completed int
	Failed    int
	Awaiting  int
}

// eligible computes the set of items needing further work this run, once
// at run start, in original input order.
func eligible(cp *checkpoint.Checkpoint, maxRetries int) []*checkpoint.Item {
	var out []*checkpoint.Item
	for _, it := range cp.Items {
		if !it.TerminalForRun(maxRetries) {
			out = append(out, it)
		}
	}
	return out
}

// Run dispatches every eligible item in cp through fn, with at most
// concurrency invocations in flight at once, flushing the checkpoint after
// every transition.
func (s *Scheduler) Run(ctx context.Context, cp *checkpoint.Checkpoint, concurrency int, fn worker.Func) (*Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	flush := func() error {
		start := time.Now()
		_, span := telemetry.StartFlushSpan(ctx)
		defer span.End()
		err := s.Store.Save(cp)
		if s.Metrics != nil {
			s.Metrics.FlushLatency.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return &InfraError{Err: fmt.Errorf("saving checkpoint: %w", err)}
		}
		return nil
	}

	items := eligible(cp, s.MaxRetries)
	s.Logger.Info("run starting", "eligible_items", len(items), "concurrency", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, it := range items {
		it := it
		g.Go(func() error {
			mu.Lock()
			it.EnterProcessing()
			if s.Metrics != nil {
				s.Metrics.InFlight.Inc()
			}
			attempt := it.Attempts
			flushErr := flush()
			mu.Unlock()
			if flushErr != nil {
				return flushErr
			}

			invocationID := checkpoint.NewInvocationID()
			spanCtx, span := telemetry.StartItemSpan(gctx, it.ID, invocationID, attempt)
			wctx := worker.NewContext(it.ID, s.Logger, func(line string) {
				mu.Lock()
				defer mu.Unlock()
				it.AppendLog(line)
			})
			outcome := s.Invoker.Invoke(spanCtx, fn, wctx, it.Data)
			span.End()

			mu.Lock()
			defer mu.Unlock()
			if s.Metrics != nil {
				s.Metrics.InFlight.Dec()
			}
			s.applyOutcome(it, outcome)
			cp.RecomputeCounters(s.MaxRetries)
			return flush()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Completed: cp.CompletedCount,
		Failed:    cp.FailedCount,
		Awaiting:  cp.AwaitingCount(),
	}
	s.Logger.Info("run summary", "completed", res.Completed, "failed", res.Failed, "awaiting", res.Awaiting)
	if res.Awaiting > 0 {
		s.Logger.Info("items awaiting external brain", "count", res.Awaiting)
	}
	return res, nil
}

// applyOutcome runs the state-machine entry action for a single worker
// outcome. Must be called with the driver's mutex held.
func (s *Scheduler) applyOutcome(it *checkpoint.Item, outcome worker.Outcome) {
	switch outcome.Kind {
	case worker.KindSuccess:
		it.EnterCompleted(outcome.Value)
		if s.Metrics != nil {
			s.Metrics.ItemsCompleted.Inc()
		}
	case worker.KindSuspend:
		it.EnterAwaitingAgent(outcome.Prompt)
		if s.Metrics != nil {
			s.Metrics.ItemsSuspended.Inc()
		}
		s.Logger.Info("item awaiting external brain", "item", it.ID)
	case worker.KindFail:
		exhausted := it.EnterFailed(outcome.Message, s.MaxRetries)
		if exhausted && s.Metrics != nil {
			s.Metrics.ItemsFailed.Inc()
		}
		s.Logger.Error("item failed", "item", it.ID, "error", outcome.Message, "attempts", it.Attempts, "exhausted", exhausted)
	}
}
