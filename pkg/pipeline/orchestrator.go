package pipeline

import (
	"context"
	"time"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/observability"
)

// Result summarizes one run. Status is always StateDone or StateFailed; Err is set exactly when
// the run failed.
type Result struct {
	RunID       string        `json:"runId"`
	Status      State         `json:"status"`
	Transitions []Transition  `json:"transitions"`
	Completed   []string      `json:"completed"`
	Skipped     []string      `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Succeeded reports whether the run reached done.
func (r Result) Succeeded() bool {
	return r.Status == StateDone
}

type Option func(*Orchestrator)

func WithLogger(logger observability.StructuredLogger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithIDGenerator(ids cvsite.IDGenerator) Option {
	return func(o *Orchestrator) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithObserver is called synchronously for every transition, in order.
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithClock replaces time.Now for run durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs stages in order and stops at the first failing action. It holds no
// per-run state, so one Orchestrator can serve sequential runs.
type Orchestrator struct {
	runner   Runner
	gate     DeploymentGate
	logger   observability.StructuredLogger
	ids      cvsite.IDGenerator
	observer func(Transition)
	now      func() time.Time
}

func New(runner Runner, gate DeploymentGate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner: runner,
		gate:   gate,
		logger: observability.NewNoOpLogger(),
		ids:    cvsite.ULIDGenerator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// run carries the mutable state of a single Run call.
type run struct {
	o      *Orchestrator
	log    observability.StructuredLogger
	start  time.Time
	state  State
	result Result
}

func (r *run) move(to State, stage string) {
	t := Transition{From: r.state, To: to, Stage: stage}
	r.state = to
	r.result.Transitions = append(r.result.Transitions, t)
	if r.o.observer != nil {
		r.o.observer(t)
	}
}

func (r *run) fail(stage string, err error) Result {
	r.move(StateFailed, stage)
	r.result.Status = StateFailed
	r.result.Err = err
	r.log.Error("pipeline failed", map[string]any{
		"failed_stage": stage,
		"error_code":   cvsite.ErrorCode(err),
		"error":        err,
	})
	return r.finish()
}

func (r *run) finish() Result {
	r.result.Duration = r.o.now().Sub(r.start)
	return r.result
}

// Run executes stages and returns once the run is done or failed. The stage list is
// validated before anything runs.
func (o *Orchestrator) Run(ctx context.Context, stages []Stage) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := o.ids.NewID()
	r := &run{
		o:      o,
		log:    o.logger.WithRunID(runID),
		start:  o.now(),
		state:  StateIdle,
		result: Result{RunID: runID, Status: StateIdle},
	}
	r.log.Info("pipeline started", map[string]any{"stages": len(stages), "gate": o.gate.String()})

	if o.runner == nil {
		return r.fail("", cvsite.NewConfigurationError("runner", "", "required"))
	}
	if err := ValidateStages(stages); err != nil {
		return r.fail("", err)
	}

	for _, st := range stages {
		slog := r.log.WithStage(st.Name)
		if st.Gated && !o.gate.Enabled {
			r.result.Skipped = append(r.result.Skipped, st.Name)
			slog.Info("stage skipped", map[string]any{"gate": o.gate.String()})
			continue
		}

		r.move(st.State, st.Name)
		slog.Info("stage started", map[string]any{"actions": len(st.Actions)})
		if err := o.runStage(ctx, st, slog); err != nil {
			return r.fail(st.Name, err)
		}
		r.result.Completed = append(r.result.Completed, st.Name)
		slog.Info("stage completed")
	}

	r.move(StateDone, "")
	r.result.Status = StateDone
	r.log.Info("pipeline done", map[string]any{
		"completed": r.result.Completed,
		"skipped":   r.result.Skipped,
	})
	return r.finish()
}

func (o *Orchestrator) runStage(ctx context.Context, st Stage, log observability.StructuredLogger) error {
	for i, a := range st.Actions {
		if err := ctx.Err(); err != nil {
			return &cvsite.StageExecutionError{Stage: st.Name, Action: a.Command, ExitCode: -1, Err: err}
		}
		log.Debug("action started", map[string]any{"index": i, "command": a.Command, "dir": a.Dir})
		err := o.runner.Run(ctx, a)
		if err == nil {
			continue
		}
		code := ExitCodeOf(err)
		if code == 0 {
			code = -1
		}
		return &cvsite.StageExecutionError{Stage: st.Name, Action: a.Command, ExitCode: code, Err: err}
	}
	return nil
}
