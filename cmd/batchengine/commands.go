package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/config"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/engine"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/scheduler"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/supervisor"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/telemetry"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/worker"
	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/examples/workers"
)

// RunCmd executes a job to completion-for-this-run.
type RunCmd struct {
	Worker string `help:"Named worker to run (see 'examples/workers' registry)." default:"echo"`
}

func (c *RunCmd) Run(rc *runContext, ctx context.Context) error {
	cfg, err := config.Load(rc.CLI.Config)
	if err != nil {
		return err
	}

	fn, ok := workers.Lookup(c.Worker)
	if !ok {
		return fmt.Errorf("unknown worker %q (available: %v)", c.Worker, workers.Names())
	}

	metrics := telemetry.NewMetrics()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			_ = srv.ListenAndServe()
		}()
		defer srv.Close()
	}

	eng, err := engine.New(cfg.Job, rc.Logger, metrics)
	if err != nil {
		return err
	}

	result, err := eng.Run(ctx, worker.Func(fn))
	if err != nil {
		var infra *scheduler.InfraError
		if errors.As(err, &infra) {
			return infra
		}
		return err
	}

	fmt.Printf("completed=%d failed=%d awaiting=%d\n", result.Completed, result.Failed, result.Awaiting)
	return nil
}

// AwaitingCmd lists items parked in awaiting_agent.
type AwaitingCmd struct{}

func (c *AwaitingCmd) Run(rc *runContext, ctx context.Context) error {
	cfg, err := config.Load(rc.CLI.Config)
	if err != nil {
		return err
	}
	items, err := supervisor.Awaiting(cfg.Job.CheckpointPath)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no items awaiting an external brain")
		return nil
	}
	for _, it := range items {
		fmt.Printf("%s\tprompt=%s\n", it.ID, string(it.PendingPrompt))
	}
	return nil
}

// FulfillCmd completes a suspended item.
type FulfillCmd struct {
	Item   string `required:"" help:"Item ID, e.g. item-3."`
	Output string `required:"" help:"JSON-encoded output value."`
}

func (c *FulfillCmd) Run(rc *runContext, ctx context.Context) error {
	cfg, err := config.Load(rc.CLI.Config)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(c.Output)) {
		return fmt.Errorf("--output is not valid JSON: %s", c.Output)
	}
	return supervisor.Fulfill(cfg.Job.CheckpointPath, c.Item, json.RawMessage(c.Output))
}

// ResetCmd rewrites a suspended item's data and returns it to pending.
type ResetCmd struct {
	Item string `required:"" help:"Item ID, e.g. item-3."`
	Data string `required:"" help:"JSON-encoded replacement data."`
}

func (c *ResetCmd) Run(rc *runContext, ctx context.Context) error {
	cfg, err := config.Load(rc.CLI.Config)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(c.Data)) {
		return fmt.Errorf("--data is not valid JSON: %s", c.Data)
	}
	return supervisor.Reset(cfg.Job.CheckpointPath, c.Item, json.RawMessage(c.Data))
}

// ValidateCmd validates a job configuration file without running it.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(rc *runContext, ctx context.Context) error {
	cfg, err := config.Load(rc.CLI.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Println("configuration valid")
	return nil
}
