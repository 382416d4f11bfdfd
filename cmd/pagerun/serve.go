package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagerun/pagerun/internal/browser"
	"github.com/pagerun/pagerun/internal/dispatch"
	"github.com/pagerun/pagerun/internal/engine"
	"github.com/pagerun/pagerun/internal/loader"
	"github.com/pagerun/pagerun/internal/scheduler"
	"github.com/pagerun/pagerun/internal/validation"
	"github.com/pagerun/pagerun/pkg/mcp"
	"github.com/pagerun/pagerun/pkg/schema"
)

// serveCommand wires the full engine behind an MCP stdio server and starts
// the cron scheduler for stored jobs.
func serveCommand(cfg Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	headless := fs.Bool("headless", cfg.Headless, "run the browser without a visible window")
	sessionPath := fs.String("session", cfg.SessionPath, "browser storage state file ('' disables persistence)")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	logger := buildLogger(*logLevel)

	session := browser.NewSession(browser.Options{
		Headless:         *headless,
		StorageStatePath: *sessionPath,
	})
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close browser session", "error", err)
		}
	}()

	registry := dispatch.NewRegistry()
	for _, h := range browser.Handlers(session) {
		if err := registry.Register(h); err != nil {
			fatal("register action", err)
		}
	}

	validator, err := validation.NewWorkflowValidator(registry)
	if err != nil {
		fatal("build validator", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		fatal("open store", err)
	}
	defer st.Close()

	eng := engine.New(registry,
		engine.WithLogger(logger),
		engine.WithRecorder(st),
	)

	sched := scheduler.New(st, &fileRunner{engine: eng, validator: validator}, logger)
	if err := sched.Start(ctx); err != nil {
		fatal("start scheduler", err)
	}
	defer sched.Stop()

	srv := mcp.NewServer(version, mcp.ServerDeps{
		Engine:    eng,
		Registry:  registry,
		Validator: validator,
		Store:     st,
		Logger:    logger,
	})

	logger.Info("mcp server listening on stdio")
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		fatal("mcp server", err)
	}
}

// fileRunner lets the scheduler execute workflow files through the engine.
type fileRunner struct {
	engine    *engine.Engine
	validator *validation.WorkflowValidator
}

func (f *fileRunner) RunFile(ctx context.Context, path string, vars map[string]schema.Value) error {
	wf, err := loader.Load(path)
	if err != nil {
		return err
	}
	if err := f.validator.ValidateWorkflow(wf); err != nil {
		return err
	}

	run := f.engine.NewRun(wf)
	if len(vars) > 0 {
		run.Variables().BulkSet(vars)
	}

	result := run.Execute(ctx)
	if result.Error != nil {
		return result.Error
	}
	return nil
}
