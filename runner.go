package subproc

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/victoralfred/subproc/config"
	"github.com/victoralfred/subproc/hooks"
	"github.com/victoralfred/subproc/observability"
	"github.com/victoralfred/subproc/process"
	"github.com/victoralfred/subproc/resilience"
)

// Runner is a supervisory wrapper around the core lifecycle: it stamps every
// launch with a UUID, applies a default timeout, rate-limits launches,
// invokes hooks, and emits telemetry and audit events. The core packages
// stay usable without it.
type Runner struct {
	telemetry      observability.Telemetry
	audit          observability.AuditLogger
	metrics        *observability.Metrics
	hooks          *hooks.Registry
	limiter        resilience.RateLimiter
	defaultTimeout time.Duration
}

// Report describes one completed (or failed) supervised run.
type Report struct {
	// ID is the UUID stamped on this launch.
	ID string

	// Pid is the child's process ID, 0 when the launch failed.
	Pid int

	// Code is the child's return code: non-negative for a normal exit,
	// negative for the signal that ended it.
	Code int

	// Stdout and Stderr hold whatever the piped streams produced.
	Stdout []byte
	Stderr []byte

	// Duration is launch-to-reap wall time.
	Duration time.Duration

	// TimedOut reports that the run hit its deadline and the child was
	// killed.
	TimedOut bool
}

// RunnerBuilder configures a Runner with a fluent interface.
type RunnerBuilder struct {
	cfg     config.Config
	tel     observability.Telemetry
	audit   observability.AuditLogger
	limiter resilience.RateLimiter
	hooks   *hooks.Registry
	err     error
}

// NewRunner creates a Runner with default settings: in-memory metrics, no
// telemetry pipeline, no audit file, no rate limit.
func NewRunner() (*Runner, error) {
	return NewRunnerBuilder().Build()
}

// NewRunnerBuilder creates a builder for a configured Runner.
func NewRunnerBuilder() *RunnerBuilder {
	return &RunnerBuilder{
		cfg:   config.DefaultConfig(),
		hooks: hooks.NewRegistry(),
	}
}

// WithConfig applies a loaded configuration.
func (b *RunnerBuilder) WithConfig(cfg config.Config) *RunnerBuilder {
	b.cfg = cfg
	return b
}

// WithDefaultTimeout overrides the configured default timeout. Zero means
// unbounded.
func (b *RunnerBuilder) WithDefaultTimeout(d time.Duration) *RunnerBuilder {
	b.cfg.Runner.DefaultTimeout = config.Duration{Duration: d}
	return b
}

// WithTelemetry supplies a telemetry implementation.
func (b *RunnerBuilder) WithTelemetry(t observability.Telemetry) *RunnerBuilder {
	b.tel = t
	return b
}

// WithAuditLogger supplies an audit logger.
func (b *RunnerBuilder) WithAuditLogger(l observability.AuditLogger) *RunnerBuilder {
	b.audit = l
	return b
}

// WithRateLimiter supplies a launch rate limiter.
func (b *RunnerBuilder) WithRateLimiter(rl resilience.RateLimiter) *RunnerBuilder {
	b.limiter = rl
	return b
}

// WithHook registers a lifecycle hook.
func (b *RunnerBuilder) WithHook(h hooks.Hook) *RunnerBuilder {
	if err := b.hooks.Register(h); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// Build assembles the Runner, constructing any component not explicitly
// supplied from the configuration.
func (b *RunnerBuilder) Build() (*Runner, error) {
	if b.err != nil {
		return nil, b.err
	}

	tel := b.tel
	if tel == nil {
		if b.cfg.Runner.EnableTracing {
			t, err := observability.NewTelemetry(b.cfg.Telemetry)
			if err != nil {
				return nil, err
			}
			tel = t
		} else {
			tel = observability.NoopTelemetry()
		}
	}

	audit := b.audit
	if audit == nil {
		audit = observability.NoopAuditLogger()
	}

	limiter := b.limiter
	if limiter == nil {
		limiter = resilience.NoopRateLimiter()
	}

	var metrics *observability.Metrics
	if b.cfg.Runner.EnableMetrics {
		metrics = observability.NewMetrics()
	}

	return &Runner{
		telemetry:      tel,
		audit:          audit,
		metrics:        metrics,
		hooks:          b.hooks,
		limiter:        limiter,
		defaultTimeout: b.cfg.Runner.DefaultTimeout.Duration,
	}, nil
}

// Metrics returns the in-memory metrics collector, or nil when disabled.
func (r *Runner) Metrics() *observability.Metrics {
	return r.metrics
}

// Hooks returns the Runner's hook registry.
func (r *Runner) Hooks() *hooks.Registry {
	return r.hooks
}

// Run supervises cmd through one full lifecycle: rate-limit, pre-start
// hooks, launch, Communicate under the default timeout (or the context
// deadline when tighter), post-exit hooks, telemetry and audit. On timeout
// the child is killed and reaped before the *TimeoutError is returned.
func (r *Runner) Run(ctx context.Context, cmd *Cmd) (*Report, error) {
	id := uuid.New().String()
	binary := runBinary(cmd)
	labels := map[string]string{"binary": binary}

	ctx, endSpan := r.telemetry.StartSpan(ctx, "subproc.run",
		observability.WithAttribute("binary", binary),
		observability.WithAttribute("launch_id", id),
	)
	defer endSpan()

	if err := r.limiter.Wait(ctx, binary); err != nil {
		return nil, err
	}

	cmd, err := r.hooks.RunPreStart(ctx, cmd)
	if err != nil {
		return nil, err
	}

	timeout := r.defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}

	start := time.Now()
	r.telemetry.RecordLaunch(labels)

	p, err := process.Start(cmd)
	if err != nil {
		r.telemetry.RecordError(labels)
		if r.metrics != nil {
			r.metrics.RecordLaunch(binary, 0, time.Since(start), false, err)
		}
		r.logAudit(ctx, id, cmd, 0, 0, nil, err, false)
		_ = r.hooks.RunPostExit(ctx, cmd, 0, process.Result{}, err)
		return nil, err
	}

	r.telemetry.AddActive(1, labels)
	defer r.telemetry.AddActive(-1, labels)

	report := &Report{ID: id, Pid: p.Pid()}

	var res process.Result
	if timeout > 0 {
		res, err = p.CommunicateTimeout(nil, timeout)
	} else {
		res, err = p.Communicate(nil)
	}
	if err != nil {
		// Kill on any exchange failure so Close below never blocks on
		// a child that will not exit.
		report.TimedOut = IsTimeout(err)
		p.Kill()
		awaitEnd(p)
	}
	p.Close()

	report.Code = p.ReturnCode()
	report.Stdout = res.Stdout
	report.Stderr = res.Stderr
	report.Duration = time.Since(start)

	r.telemetry.RecordDuration(report.Duration.Seconds(), labels)
	if err != nil {
		r.telemetry.RecordError(labels)
	}
	if r.metrics != nil {
		r.metrics.RecordLaunch(binary, report.Code, report.Duration, report.TimedOut, nil)
	}
	r.logAudit(ctx, id, cmd, report.Pid, report.Code, res.Stdout, err, report.TimedOut)

	if hookErr := r.hooks.RunPostExit(ctx, cmd, report.Code, res, err); hookErr != nil && err == nil {
		err = hookErr
	}

	return report, err
}

func (r *Runner) logAudit(ctx context.Context, id string, cmd *Cmd, pid, code int, stdout []byte, runErr error, timedOut bool) {
	event := &observability.AuditEvent{
		Timestamp: time.Now(),
		ID:        id,
		Binary:    runBinary(cmd),
		Args:      cmd.Args,
		Dir:       cmd.Dir,
		Pid:       pid,
		ExitCode:  code,
		Output:    string(stdout),
	}

	switch {
	case timedOut:
		event.Type = observability.AuditEventTimeout
	case runErr != nil && pid == 0:
		event.Type = observability.AuditEventSpawnFailure
	case code < 0:
		event.Type = observability.AuditEventSignaled
	default:
		event.Type = observability.AuditEventExited
	}

	if runErr != nil {
		event.Error = runErr.Error()
	}

	// Audit failures never mask the run's own outcome.
	_ = r.audit.Log(ctx, event)
}

func runBinary(cmd *Cmd) string {
	if cmd.Shell != "" {
		return cmd.Shell
	}
	if len(cmd.Args) > 0 {
		return cmd.Args[0]
	}
	return ""
}
