package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/cli"
	"mercator-hq/overwatch/pkg/evidence"
	"mercator-hq/overwatch/pkg/policy/store"
	"mercator-hq/overwatch/pkg/telemetry/logging"
	"mercator-hq/overwatch/pkg/telemetry/tracing"
)

// statusInvalid marks an input line that could not be decoded.
const statusInvalid = "invalid"

// maxTaskLine bounds one JSONL task line.
const maxTaskLine = 1 << 20

var serveFlags struct {
	input    string
	workers  int
	progress bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Process a stream of tasks",
	Long: `Process JSONL tasks from stdin (or --input) with a pool of workers.

Each input line is a task object with an optional W3C trace context:

  {"task_id": "t1", "description": "Lookup user-1", "role": "analyst",
   "parameters": {"tool": "data_lookup", "query": "user-1"},
   "trace_context": {"traceparent": "00-...-01"}}

Each finished task is written to stdout as one JSON line in completion order.
While serving, the policy is reloaded when the file changes (policy.watch),
on the cron schedule (policy.reload_schedule) and on SIGHUP.

Examples:
  # Serve tasks from a file with 8 workers
  overwatch serve --input tasks.jsonl --workers 8

  # Pipe tasks and show progress on stderr
  cat tasks.jsonl | overwatch serve --progress`,
	RunE: serveTasks,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.input, "input", "i", "-", "JSONL task file (\"-\" reads stdin)")
	serveCmd.Flags().IntVarP(&serveFlags.workers, "workers", "w", 0, "number of concurrent workers (default: agent.workers)")
	serveCmd.Flags().BoolVar(&serveFlags.progress, "progress", false, "report progress on stderr")
}

// taskEnvelope is one input line.
type taskEnvelope struct {
	agent.Task
	TraceContext map[string]string `json:"trace_context,omitempty"`
}

// serveResult is one output line.
type serveResult struct {
	Line     int                  `json:"line"`
	TaskID   string               `json:"task_id,omitempty"`
	Status   string               `json:"status"`
	Response *agent.AgentResponse `json:"response,omitempty"`
	Error    string               `json:"error,omitempty"`

	err error
}

type taskJob struct {
	line int
	raw  []byte
}

func serveTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.workers > 0 {
		cfg.Agent.Workers = serveFlags.workers
	}

	in := cmd.InOrStdin()
	if serveFlags.input != "-" {
		f, err := os.Open(serveFlags.input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			a.logger.Error("shutdown failed", "error", cerr)
		}
	}()

	stopReload, err := a.startPolicyReloaders(ctx)
	if err != nil {
		return err
	}
	defer stopReload()

	var progress cli.ProgressReporter
	if serveFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
		progress.Start(0)
		defer progress.Finish()
	}

	a.logger.Info("serving tasks", "workers", cfg.Agent.Workers, "policy_source", a.policies.Source().Name())
	return processTasks(ctx, a, in, cmd.OutOrStdout(), cfg.Agent.Workers, progress)
}

// startPolicyReloaders starts the file watcher, the cron scheduler and the
// SIGHUP handler as configured. The returned func stops all of them.
func (a *app) startPolicyReloaders(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	if a.cfg.Policy.Watch && a.cfg.Policy.FilePath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.policies.Watch(ctx, a.cfg.Policy.WatchDebounce); err != nil {
				a.logger.Error("policy watcher stopped", "error", err)
			}
		}()
	}

	var sched *store.Scheduler
	if a.cfg.Policy.ReloadSchedule != "" {
		var err error
		sched, err = store.NewScheduler(a.policies, a.cfg.Policy.ReloadSchedule, a.logger.With("component", "policy.scheduler"))
		if err != nil {
			cancel()
			return nil, err
		}
		if err := sched.Start(ctx); err != nil {
			cancel()
			return nil, err
		}
	}

	hup, stopHup := cli.ReloadSignal()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := a.policies.Reload(ctx); err != nil {
					a.logger.Error("policy reload on SIGHUP failed", "error", err)
				}
			}
		}
	}()

	return func() {
		stopHup()
		if sched != nil {
			sched.Stop()
		}
		cancel()
		wg.Wait()
	}, nil
}

// processTasks runs every task line of r through the orchestrator using
// workers goroutines and writes one result line per task to w. Reading stops
// when ctx is canceled; tasks already dispatched run to completion. Tasks
// whose audit record could not be written make the returned error wrap
// agent.ErrAuditNotPersisted.
func processTasks(ctx context.Context, a *app, r io.Reader, w io.Writer, workers int, progress cli.ProgressReporter) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan taskJob)
	var (
		outMu sync.Mutex
		enc   = json.NewEncoder(w)
		wg    sync.WaitGroup

		unaudited atomic.Int64
	)

	emit := func(res serveResult) {
		if errors.Is(res.err, agent.ErrAuditNotPersisted) {
			unaudited.Add(1)
		}
		outMu.Lock()
		defer outMu.Unlock()
		if err := enc.Encode(res); err != nil {
			a.logger.Error("failed to write result", "line", res.Line, "error", err)
		}
		if progress != nil {
			progress.Record(res.Status)
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			wctx := logging.WithWorker(context.WithoutCancel(ctx), worker)
			for job := range jobs {
				emit(runJob(wctx, a, job))
			}
		}(i)
	}

	lines, readErrs := readLines(r)
	var readErr error

intake:
	for {
		select {
		case job, ok := <-lines:
			if !ok {
				readErr = <-readErrs
				break intake
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				a.logger.Warn("stopping task intake", "reason", ctx.Err(), "line", job.line)
				break intake
			}
		case <-ctx.Done():
			a.logger.Warn("stopping task intake", "reason", ctx.Err())
			break intake
		}
	}

	close(jobs)
	wg.Wait()
	if n := unaudited.Load(); n > 0 {
		return errors.Join(readErr, fmt.Errorf("%d tasks: %w", n, agent.ErrAuditNotPersisted))
	}
	return readErr
}

// readLines scans r in the background so a blocked read never holds up
// shutdown. The error channel receives exactly one value after lines closes.
func readLines(r io.Reader) (<-chan taskJob, <-chan error) {
	lines := make(chan taskJob)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxTaskLine)
		line := 0
		for scanner.Scan() {
			line++
			if len(scanner.Bytes()) == 0 {
				continue
			}
			lines <- taskJob{line: line, raw: append([]byte(nil), scanner.Bytes()...)}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("failed to read tasks: %w", err)
			return
		}
		errs <- nil
	}()

	return lines, errs
}

func runJob(ctx context.Context, a *app, job taskJob) serveResult {
	var env taskEnvelope
	if err := json.Unmarshal(job.raw, &env); err != nil {
		return serveResult{Line: job.line, Status: statusInvalid, Error: err.Error()}
	}
	if env.Description == "" {
		return serveResult{Line: job.line, TaskID: env.ID, Status: statusInvalid, Error: "task description is required"}
	}

	task := env.Task.WithDefaults()
	ctx = tracing.ExtractFromMap(ctx, env.TraceContext)

	resp, err := a.orch.RunTask(ctx, task)
	if resp != nil && err != nil {
		return serveResult{Line: job.line, TaskID: resp.TaskID, Status: string(resp.Status), Response: resp, Error: err.Error(), err: err}
	}
	if err != nil {
		status := evidence.StatusError
		if agent.IsTaskRejected(err) {
			status = evidence.StatusRejected
		}
		return serveResult{Line: job.line, TaskID: task.ID, Status: status, Error: err.Error(), err: err}
	}
	return serveResult{Line: job.line, TaskID: resp.TaskID, Status: string(resp.Status), Response: resp}
}
