// Command pagerun runs browser automation workflows.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pagerun/pagerun/internal/logging"
)

const usage = `pagerun - browser workflow automation engine

Usage:
  pagerun run <workflow-file> [flags]    Validate and execute a workflow
  pagerun validate <workflow-file>       Validate a workflow without running it
  pagerun actions                        List available browser actions
  pagerun history [flags]                List past workflow runs
  pagerun schedule <subcommand>          Manage cron-scheduled workflow jobs
  pagerun serve                          Serve the engine over MCP stdio
  pagerun version                        Print the version

Run "pagerun <command> -h" for command flags.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()

	switch os.Args[1] {
	case "run":
		runCommand(cfg, os.Args[2:])
	case "validate":
		validateCommand(cfg, os.Args[2:])
	case "actions":
		actionsCommand(cfg)
	case "history":
		historyCommand(cfg, os.Args[2:])
	case "schedule":
		scheduleCommand(cfg, os.Args[2:])
	case "serve":
		serveCommand(cfg, os.Args[2:])
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
}

// buildLogger creates the process logger. Run/workflow/step IDs carried in
// the context are attached to every record by the correlation handler.
func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
