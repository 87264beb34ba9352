// Package engine is the top-level façade that wires the Logger, Checkpoint
// Store, Worker Invoker, and Scheduler into a single Run call. It is the
// library entry point cmd/batchengine and any embedding Go program uses.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/checkpoint"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/scheduler"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/telemetry"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/worker"
)

// Engine runs a single job to completion-for-this-run: load checkpoint,
// compute eligible items, invoke workers, apply outcomes, flush after every
// transition.
type Engine struct {
	Config  checkpoint.Config
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// New builds an Engine from a validated Config.
func New(cfg checkpoint.Config, logger *slog.Logger, metrics *telemetry.Metrics) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Config: cfg, Logger: logger, Metrics: metrics}, nil
}

// loadOrInit loads the existing checkpoint, or parses the configured input
// and creates a fresh one. Items are created exactly once, at the point a
// fresh checkpoint is initialized from input.
func (e *Engine) loadOrInit() (*checkpoint.Checkpoint, *checkpoint.Store, error) {
	store := checkpoint.NewStore(e.Config.CheckpointPath)
	cp, err := store.Load()
	if err != nil {
		return nil, nil, &scheduler.InfraError{Err: fmt.Errorf("loading checkpoint: %w", err)}
	}
	if cp != nil {
		return cp, store, nil
	}

	raw, err := e.readInput()
	if err != nil {
		return nil, nil, &scheduler.InfraError{Err: err}
	}
	var inputs []json.RawMessage
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, nil, &scheduler.InfraError{Err: fmt.Errorf("parsing input JSON array: %w", err)}
	}

	cp = checkpoint.NewCheckpoint(inputs)
	e.Logger.Info("initialized new job", "job_id", cp.JobID, "items", len(cp.Items))
	if err := store.Save(cp); err != nil {
		return nil, nil, &scheduler.InfraError{Err: fmt.Errorf("saving initial checkpoint: %w", err)}
	}
	return cp, store, nil
}

func (e *Engine) readInput() ([]byte, error) {
	if e.Config.InputData != "" {
		return []byte(e.Config.InputData), nil
	}
	data, err := os.ReadFile(e.Config.InputPath)
	if err != nil {
		return nil, fmt.Errorf("reading input file %s: %w", e.Config.InputPath, err)
	}
	return data, nil
}

// Run executes one pass of the engine: resume-or-initialize, dispatch
// every eligible item through fn with bounded concurrency, and return the
// run summary. Returning a *scheduler.InfraError means the run aborted
// before or during a checkpoint write; any other outcome, including
// per-item failures, is a normal completion.
func (e *Engine) Run(ctx context.Context, fn worker.Func) (*scheduler.Result, error) {
	cp, store, err := e.loadOrInit()
	if err != nil {
		return nil, err
	}

	inv := worker.NewInvoker(e.Config.ItemTimeoutMs)
	sched := scheduler.New(store, inv, e.Config.GetMaxRetries(), e.Logger, e.Metrics)

	return sched.Run(ctx, cp, e.Config.Concurrency, fn)
}

// FlushOnShutdown saves whatever checkpoint state is currently on disk one
// more time; it is a no-op beyond re-writing the same bytes, offered to
// embedders as a belt-and-suspenders durability strengthening (cmd/batchengine
// does not call it). Since every transition already flushes synchronously,
// this only matters if a future change batches flushes.
func (e *Engine) FlushOnShutdown() error {
	store := checkpoint.NewStore(e.Config.CheckpointPath)
	cp, err := store.Load()
	if err != nil || cp == nil {
		return err
	}
	return store.Save(cp)
}
