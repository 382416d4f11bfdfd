package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pagerun/pagerun/internal/scheduler"
	"github.com/pagerun/pagerun/internal/store"
)

const scheduleUsage = `usage: pagerun schedule <subcommand> [flags]

Subcommands:
  add <workflow-file>   Schedule a workflow on a cron expression
  list                  List scheduled jobs
  enable <job-id>       Enable a job
  disable <job-id>      Disable a job
  remove <job-id>       Delete a job`

// scheduleCommand manages the scheduled jobs the serve loop executes.
func scheduleCommand(cfg Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, scheduleUsage)
		os.Exit(2)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		fatal("open store", err)
	}
	defer st.Close()

	switch args[0] {
	case "add":
		scheduleAdd(ctx, st, args[1:])
	case "list":
		scheduleList(ctx, st)
	case "enable":
		scheduleSetEnabled(ctx, st, args[1:], true)
	case "disable":
		scheduleSetEnabled(ctx, st, args[1:], false)
	case "remove":
		scheduleRemove(ctx, st, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown schedule subcommand %q\n\n%s\n", args[0], scheduleUsage)
		os.Exit(2)
	}
}

func scheduleAdd(ctx context.Context, st store.Store, args []string) {
	fs := flag.NewFlagSet("schedule add", flag.ExitOnError)
	name := fs.String("name", "", "job name (defaults to the workflow file name)")
	cronExpr := fs.String("cron", "", "5-field cron expression, e.g. '0 9 * * 1'")
	var vars varFlags
	fs.Var(&vars, "var", "variable override as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 || *cronExpr == "" {
		fmt.Fprintln(os.Stderr, "usage: pagerun schedule add <workflow-file> -cron <expr> [flags]")
		os.Exit(2)
	}

	now := time.Now().UTC()
	next, err := scheduler.NextRun(*cronExpr, now)
	if err != nil {
		fatal("invalid cron expression", err)
	}

	jobName := *name
	if jobName == "" {
		jobName = fs.Arg(0)
	}
	job := &store.ScheduledJob{
		ID:        uuid.New().String(),
		Name:      jobName,
		CronExpr:  *cronExpr,
		Workflow:  fs.Arg(0),
		Variables: parseVarFlags(vars),
		Enabled:   true,
		CreatedAt: now,
		NextRunAt: &next,
	}
	if err := st.CreateScheduledJob(ctx, job); err != nil {
		fatal("create scheduled job", err)
	}
	printJSON(job)
}

func scheduleList(ctx context.Context, st store.Store) {
	jobs, err := st.ListScheduledJobs(ctx, false)
	if err != nil {
		fatal("list scheduled jobs", err)
	}
	printJSON(jobs)
}

func scheduleSetEnabled(ctx context.Context, st store.Store, args []string, enabled bool) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: pagerun schedule enable|disable <job-id>")
		os.Exit(2)
	}
	if err := st.UpdateScheduledJob(ctx, args[0], store.ScheduledJobUpdate{Enabled: &enabled}); err != nil {
		fatal("update scheduled job", err)
	}
	job, err := st.GetScheduledJob(ctx, args[0])
	if err != nil {
		fatal("get scheduled job", err)
	}
	printJSON(job)
}

func scheduleRemove(ctx context.Context, st store.Store, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: pagerun schedule remove <job-id>")
		os.Exit(2)
	}
	if err := st.DeleteScheduledJob(ctx, args[0]); err != nil {
		fatal("delete scheduled job", err)
	}
}
