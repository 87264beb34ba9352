// Command batchengine is the CLI for the batch execution engine.
//
// Usage:
//
//	batchengine run --config job.yaml
//	batchengine awaiting --config job.yaml
//	batchengine fulfill --config job.yaml --item item-3 --output '"answer"'
//	batchengine validate --config job.yaml
//
// A single kong CLI struct holds one field per subcommand, global log
// flags, and a trapped interrupt signal that gives the current run a
// chance to flush before exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Execute a job to completion-for-this-run."`
	Awaiting AwaitingCmd `cmd:"" help:"List items awaiting an external brain."`
	Fulfill  FulfillCmd  `cmd:"" help:"Complete a suspended item with a supervisor-supplied output."`
	Reset    ResetCmd    `cmd:"" help:"Rewrite a suspended item's data and return it to pending."`
	Validate ValidateCmd `cmd:"" help:"Validate a job configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to the job YAML config file." type:"path" default:"job.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
	LogFile   string `help:"Per-job log file path (empty = no job log file is written)."`
	EnvFile   string `help:"Optional .env file with worker credentials." default:".env"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("batchengine version %s\n", version)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("batchengine"),
		kong.Description("Fault-tolerant batch orchestrator for long-running agent tasks."),
		kong.UsageOnError(),
	)

	if err := godotenv.Load(cli.EnvFile); err != nil && cli.EnvFile != ".env" {
		// A non-default, explicitly requested env file that's missing is
		// worth a warning; the default ".env" silently missing is normal.
		fmt.Fprintf(os.Stderr, "warning: could not load env file %s: %v\n", cli.EnvFile, err)
	}

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, defaulting to info\n", err)
	}
	cleanup := logger.Init(logger.Options{Level: level, JobLogPath: cli.LogFile})
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx := &runContext{CLI: &cli, Logger: logger.Get()}
	err = kctx.Run(runCtx, ctx)
	kctx.FatalIfErrorf(err)
}

// runContext is threaded through kong as the bound struct for each
// command's Run method, carrying shared flags and the process logger.
type runContext struct {
	CLI    *CLI
	Logger *slog.Logger
}
