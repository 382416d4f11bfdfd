package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pagerun/pagerun/internal/browser"
	"github.com/pagerun/pagerun/internal/dispatch"
	"github.com/pagerun/pagerun/internal/engine"
	"github.com/pagerun/pagerun/internal/loader"
	"github.com/pagerun/pagerun/internal/store"
	"github.com/pagerun/pagerun/internal/validation"
	"github.com/pagerun/pagerun/pkg/schema"
)

// varFlags collects repeated -var name=value flags.
type varFlags []string

func (v *varFlags) String() string { return strings.Join(*v, ",") }

func (v *varFlags) Set(s string) error {
	if !strings.Contains(s, "=") {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	*v = append(*v, s)
	return nil
}

// parseVarFlags turns -var pairs into typed values. Values that parse as
// JSON keep their type (numbers, booleans, arrays); everything else is a
// plain string.
func parseVarFlags(pairs []string) map[string]schema.Value {
	vars := make(map[string]schema.Value, len(pairs))
	for _, pair := range pairs {
		name, raw, _ := strings.Cut(pair, "=")
		var val schema.Value
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = schema.StringValue(raw)
		}
		vars[name] = val
	}
	return vars
}

func runCommand(cfg Config, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var vars varFlags
	fs.Var(&vars, "var", "variable override as name=value (repeatable)")
	varsFile := fs.String("vars-file", "", "JSON or YAML file of variable overrides")
	headless := fs.Bool("headless", cfg.Headless, "run the browser without a visible window")
	sessionPath := fs.String("session", cfg.SessionPath, "browser storage state file ('' disables persistence)")
	noHistory := fs.Bool("no-history", !cfg.History, "do not record the run in history")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pagerun run <workflow-file> [flags]")
		os.Exit(2)
	}

	logger := buildLogger(*logLevel)

	wf, err := loader.Load(fs.Arg(0))
	if err != nil {
		fatal("load workflow", err)
	}
	logger.Debug("workflow loaded",
		"file", fs.Arg(0), "format", loader.Ext(fs.Arg(0)), "steps", len(wf.Steps))

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
	if result := validator.Validate(wf); !result.Valid() {
		printJSON(map[string]any{"valid": false, "issues": result.Errors})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []engine.Option{engine.WithLogger(logger)}
	if !*noHistory {
		st, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			fatal("open run history store", err)
		}
		defer st.Close()
		opts = append(opts, engine.WithRecorder(st))
	}

	eng := engine.New(registry, opts...)
	run := eng.NewRun(wf)

	overrides := parseVarFlags(vars)
	if *varsFile != "" {
		fileVars, err := loader.LoadVarsFile(*varsFile)
		if err != nil {
			fatal("load vars file", err)
		}
		// Explicit -var flags win over the file.
		for k, v := range overrides {
			fileVars[k] = v
		}
		overrides = fileVars
	}
	if len(overrides) > 0 {
		run.Variables().BulkSet(overrides)
	}

	result := run.Execute(ctx)
	printJSON(result)
	if result.Status != schema.RunStatusCompleted {
		os.Exit(1)
	}
}

func validateCommand(cfg Config, args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pagerun validate <workflow-file>")
		os.Exit(2)
	}

	wf, err := loader.Load(fs.Arg(0))
	if err != nil {
		fatal("load workflow", err)
	}

	// Action existence is checked against the browser action set; the
	// session is never started.
	registry := dispatch.NewRegistry()
	for _, h := range browser.Handlers(browser.NewSession(browser.Options{})) {
		_ = registry.Register(h)
	}

	validator, err := validation.NewWorkflowValidator(registry)
	if err != nil {
		fatal("build validator", err)
	}

	result := validator.Validate(wf)
	printJSON(map[string]any{
		"valid":    result.Valid(),
		"issues":   result.Errors,
		"warnings": result.Warnings,
	})
	if !result.Valid() {
		os.Exit(1)
	}
}

func actionsCommand(Config) {
	registry := dispatch.NewRegistry()
	for _, h := range browser.Handlers(browser.NewSession(browser.Options{})) {
		_ = registry.Register(h)
	}
	for _, info := range registry.List() {
		fmt.Printf("%-14s %s\n", info.Name, info.Description)
	}
}

func historyCommand(cfg Config, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	workflow := fs.String("workflow", "", "filter by workflow name")
	status := fs.String("status", "", "filter by run status")
	limit := fs.Int("limit", 20, "maximum runs to list")
	runID := fs.String("id", "", "show a single run with its full trace")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		fatal("open run history store", err)
	}
	defer st.Close()

	if *runID != "" {
		run, err := st.GetRun(ctx, *runID)
		if err != nil {
			fatal("get run", err)
		}
		printJSON(run)
		return
	}

	runs, err := st.ListRuns(ctx, store.RunFilter{
		Workflow: *workflow,
		Status:   schema.RunStatus(*status),
		Limit:    *limit,
	})
	if err != nil {
		fatal("list runs", err)
	}
	printJSON(runs)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
