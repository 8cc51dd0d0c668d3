package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/canvascast/canvascast-go/config"
	"github.com/canvascast/canvascast-go/internal/bootstrap"
	"github.com/canvascast/canvascast-go/internal/data"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultCommandTimeout   = 2 * time.Minute
	defaultMigrationTimeout = 5 * time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"dlq-list": {
			name:        "dlq-list",
			description: "List jobs parked in the dead letter queue",
			run:         runDLQList,
		},
		"dlq-retry": {
			name:        "dlq-retry",
			description: "Return a dead lettered job to the queue",
			run:         runDLQRetry,
		},
		"job-show": {
			name:        "job-show",
			description: "Show a job's state and event log",
			run:         runJobShow,
		},
		"drafts-cleanup": {
			name:        "drafts-cleanup",
			description: "Delete expired unclaimed draft prompts",
			run:         runDraftsCleanup,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: canvascast-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-18s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func runMigrate(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runDLQList(cmdCtx *commandContext, _ []string) error {
	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		svc, err := newDeadLetterService(db, cmdCtx.Logger)
		if err != nil {
			return err
		}

		jobs, err := svc.List(ctx)
		if err != nil {
			return fmt.Errorf("list dead letter queue: %w", err)
		}
		return printDeadLetterTable(os.Stdout, jobs)
	})
}

func runDLQRetry(cmdCtx *commandContext, args []string) error {
	if len(args) < 1 || args[0] == "" {
		return errors.New("usage: canvascast-admin dlq-retry <job-id>")
	}
	jobID := args[0]

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		svc, err := newDeadLetterService(db, cmdCtx.Logger)
		if err != nil {
			return err
		}

		job, err := svc.Retry(ctx, jobID)
		if err != nil {
			return fmt.Errorf("retry dead lettered job: %w", err)
		}

		cmdCtx.Logger.Info("job returned to queue", "job_id", job.ID, "status", job.Status)
		return nil
	})
}

func runJobShow(cmdCtx *commandContext, args []string) error {
	if len(args) < 1 || args[0] == "" {
		return errors.New("usage: canvascast-admin job-show <job-id>")
	}
	jobID := args[0]

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repoCfg := data.RepoConfig{Logger: cmdCtx.Logger}
		jobs := data.NewJobRepo(db, repoCfg)
		events := data.NewJobEventRepo(db, repoCfg)

		job, err := jobs.GetByID(ctx, jobID)
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		log, err := events.ListByJob(ctx, jobID, 0)
		if err != nil {
			return fmt.Errorf("list job events: %w", err)
		}
		return printJobDetail(os.Stdout, job, log)
	})
}

func runDraftsCleanup(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("drafts-cleanup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	batchSize := fs.Int("batch-size", 100, "Rows deleted per pass")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batchSize < 1 {
		return errors.New("--batch-size must be at least 1")
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		drafts := data.NewDraftRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})

		var total int64
		for {
			deleted, err := drafts.CleanupExpired(ctx, *batchSize)
			if err != nil {
				return fmt.Errorf("cleanup expired drafts: %w", err)
			}
			total += deleted
			if deleted < int64(*batchSize) {
				break
			}
		}

		cmdCtx.Logger.Info("drafts cleanup complete", "rows_deleted", total)
		return nil
	})
}

func newDeadLetterService(db *sql.DB, logger *slog.Logger) (*service.DeadLetterService, error) {
	return service.NewDeadLetterService(service.DeadLetterServiceOptions{
		Jobs:   data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		Logger: logger,
	})
}

func printDeadLetterTable(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writeln(w, "(dead letter queue is empty)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "JOB\tPROJECT\tUSER\tRETRIES\tPARKED AT\tREASON"); err != nil {
		return fmt.Errorf("write dlq header row: %w", err)
	}
	for _, job := range jobs {
		parkedAt := "-"
		if job.DLQAt != nil {
			parkedAt = job.DLQAt.UTC().Format(time.RFC3339)
		}
		reason := "-"
		if job.DLQReason != nil && *job.DLQReason != "" {
			reason = *job.DLQReason
		}
		if err := writef(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			job.ID, job.ProjectID, job.UserID, job.RetryCount, parkedAt, reason); err != nil {
			return fmt.Errorf("write dlq row: %w", err)
		}
	}
	return tw.Flush()
}

func printJobDetail(w io.Writer, job *model.Job, events []*model.JobEvent) error {
	if err := writef(w, "Job:      %s\n", job.ID); err != nil {
		return err
	}
	if err := writef(w, "Project:  %s\n", job.ProjectID); err != nil {
		return err
	}
	if err := writef(w, "User:     %s\n", job.UserID); err != nil {
		return err
	}
	if err := writef(w, "Status:   %s (progress %d%%)\n", job.Status, job.Progress); err != nil {
		return err
	}
	if err := writef(w, "Reserved: %d credits\n", job.CostCreditsReserved); err != nil {
		return err
	}
	if job.CostCreditsFinal != nil {
		if err := writef(w, "Final:    %d credits\n", *job.CostCreditsFinal); err != nil {
			return err
		}
	}
	if job.ErrorCode != nil {
		msg := ""
		if job.ErrorMessage != nil {
			msg = *job.ErrorMessage
		}
		if err := writef(w, "Error:    %s %s\n", *job.ErrorCode, msg); err != nil {
			return err
		}
	}
	if job.DLQAt != nil {
		reason := "-"
		if job.DLQReason != nil {
			reason = *job.DLQReason
		}
		if err := writef(w, "Parked:   %s (%s)\n", job.DLQAt.UTC().Format(time.RFC3339), reason); err != nil {
			return err
		}
	}

	if len(events) == 0 {
		return writeln(w, "\n(no events recorded)")
	}

	if err := writeln(w); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "AT\tSTAGE\tMESSAGE"); err != nil {
		return fmt.Errorf("write event header row: %w", err)
	}
	for _, ev := range events {
		stage := ev.Stage
		if stage == "" {
			stage = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\n",
			ev.CreatedAt.UTC().Format(time.RFC3339), stage, ev.Message); err != nil {
			return fmt.Errorf("write event row: %w", err)
		}
	}
	return tw.Flush()
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
