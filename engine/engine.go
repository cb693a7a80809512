package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Executor is the single entry point collaborators consume. *Engine is the
// in-process implementation; a process-level sandbox could substitute for it
// behind the same contract.
type Executor interface {
	Execute(ctx context.Context, req Request) Outcome
}

// Options configures the engine. Zero values fall back to defaults.
type Options struct {
	// DefaultTimeout applies when a request carries no timeout.
	DefaultTimeout time.Duration

	// ResultVar is the default name of the expected output binding.
	ResultVar string

	// MaxCallStack bounds the VM call stack depth.
	MaxCallStack int

	// MaxLogEntries bounds captured print output per execution.
	MaxLogEntries int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		DefaultTimeout: 10 * time.Second,
		ResultVar:      "result",
		MaxCallStack:   defaultMaxCallStack,
		MaxLogEntries:  defaultMaxLogEntries,
	}
}

func (o *Options) validate() error {
	if o.DefaultTimeout <= 0 {
		return fmt.Errorf("default timeout must be positive, got %s", o.DefaultTimeout)
	}
	if o.ResultVar == "" {
		return fmt.Errorf("result variable name must not be empty")
	}
	if o.MaxCallStack <= 0 {
		return fmt.Errorf("max call stack must be positive, got %d", o.MaxCallStack)
	}
	return nil
}

// Stats tracks execution counts across the engine's lifetime.
type Stats struct {
	Total         int64         `json:"total"`
	Succeeded     int64         `json:"succeeded"`
	Rejected      int64         `json:"rejected"`
	Failed        int64         `json:"failed"`
	TimedOut      int64         `json:"timed_out"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Engine runs candidate programs through validation, restriction, bounded
// execution and classification. Safe for concurrent use: the allow-list is
// immutable and every execution owns its environment, dataset copy and
// worker exclusively.
type Engine struct {
	allow  *AllowList
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates an Engine. An invalid allow-list or options set is a fatal
// configuration error surfaced here, at startup, never per request.
func New(allow *AllowList, opts Options, logger *zap.Logger) (*Engine, error) {
	if allow == nil {
		allow = DefaultAllowList()
	}
	if err := allow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid allowlist: %w", err)
	}
	def := DefaultOptions()
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = def.DefaultTimeout
	}
	if opts.ResultVar == "" {
		opts.ResultVar = def.ResultVar
	}
	if opts.MaxCallStack == 0 {
		opts.MaxCallStack = def.MaxCallStack
	}
	if opts.MaxLogEntries == 0 {
		opts.MaxLogEntries = def.MaxLogEntries
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{allow: allow, opts: opts, logger: logger}, nil
}

// Execute runs one candidate program to a classified outcome. It blocks
// until completion, failure or timeout, never crashes the caller, and never
// mutates the request's dataset.
func (e *Engine) Execute(ctx context.Context, req Request) Outcome {
	start := time.Now()
	e.normalize(&req)

	log := e.logger.With(
		zap.String("execution_id", req.ID),
		zap.Int("attempt", req.Program.Attempt),
	)

	outcome := e.run(ctx, req, log)
	outcome.Duration = time.Since(start)
	outcome.Attempt = req.Program.Attempt

	e.record(outcome)
	log.Info("execution classified",
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", outcome.Duration),
		zap.Int("violations", len(outcome.Violations)))
	return outcome
}

func (e *Engine) normalize(req *Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timeout <= 0 {
		req.Timeout = e.opts.DefaultTimeout
	}
	if req.ResultVar == "" {
		req.ResultVar = e.opts.ResultVar
	}
	if req.Program.Attempt <= 0 {
		req.Program.Attempt = 1
	}
}

func (e *Engine) run(ctx context.Context, req Request, log *zap.Logger) Outcome {
	if req.Dataset == nil {
		return classifyInternal("invalid request: dataset is required")
	}

	if violations := Validate(req.Program.Source, e.allow, req.ResultVar); violations != nil {
		log.Debug("candidate rejected by static validation",
			zap.Int("violations", len(violations)),
			zap.String("first", violations[0].String()))
		return classifyValidation(violations)
	}

	env, err := BuildEnvironment(e.allow, e.opts.MaxCallStack,
		WithMaxLogEntries(e.opts.MaxLogEntries))
	if err != nil {
		log.Error("environment construction failed", zap.Error(err))
		return classifyInternal("failed to construct execution environment")
	}

	if err := bindDataset(env, req.Dataset); err != nil {
		log.Error("dataset binding failed", zap.Error(err))
		return classifyInternal("failed to bind dataset")
	}

	prog, err := goja.Compile("candidate.js", req.Program.Source, false)
	if err != nil {
		// The parser accepted this source; a compile failure here is an
		// engine-side problem, not a candidate syntax error.
		log.Error("compilation failed after validation", zap.Error(err))
		return classifyInternal("failed to compile candidate program")
	}

	raw := runBounded(ctx, env, prog, req.Timeout)

	var artifact *Artifact
	var harvestErr error
	if raw.outcome == rawCompleted {
		artifact, harvestErr = harvestResult(env, req.ResultVar)
	}

	outcome := classifyRaw(raw, artifact, harvestErr)
	if raw.outcome != rawTimedOut {
		// An abandoned worker may still be writing its log buffer; logs are
		// only safe to read once the worker has finished.
		outcome.Logs = env.Logs()
	}
	return outcome
}

func (e *Engine) record(outcome Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Total++
	e.stats.TotalDuration += outcome.Duration
	switch outcome.Status {
	case StatusSuccess:
		e.stats.Succeeded++
	case StatusValidationRejected:
		e.stats.Rejected++
	case StatusTimeout:
		e.stats.TimedOut++
	default:
		e.stats.Failed++
	}
}

// Stats returns a snapshot of the engine's execution counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
