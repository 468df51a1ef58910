package testkit

import (
	"context"
	"strings"
	"sync"

	"github.com/theory-cloud/cvsite/pkg/pipeline"
)

type scriptedFailure struct {
	match string
	err   error
}

// ScriptedRunner records every action it is asked to run and fails the ones whose command
// contains a scripted substring. Unscripted actions succeed.
type ScriptedRunner struct {
	mu       sync.Mutex
	actions  []pipeline.Action
	failures []scriptedFailure
	hook     func(pipeline.Action)
}

var _ pipeline.Runner = (*ScriptedRunner)(nil)

func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{}
}

// FailOn makes actions whose command contains match exit with code.
func (r *ScriptedRunner) FailOn(match string, code int) *ScriptedRunner {
	return r.FailWith(match, &pipeline.ExitError{Code: code})
}

// FailWith makes actions whose command contains match return err.
func (r *ScriptedRunner) FailWith(match string, err error) *ScriptedRunner {
	r.mu.Lock()
	r.failures = append(r.failures, scriptedFailure{match: match, err: err})
	r.mu.Unlock()
	return r
}

// OnRun registers fn to be called for every action before its outcome is decided.
func (r *ScriptedRunner) OnRun(fn func(pipeline.Action)) *ScriptedRunner {
	r.mu.Lock()
	r.hook = fn
	r.mu.Unlock()
	return r
}

func (r *ScriptedRunner) Run(ctx context.Context, action pipeline.Action) error {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	hook := r.hook
	failures := append([]scriptedFailure(nil), r.failures...)
	r.mu.Unlock()

	if hook != nil {
		hook(action)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, f := range failures {
		if strings.Contains(action.Command, f.match) {
			return f.err
		}
	}
	return nil
}

// Actions returns the actions run so far, in order.
func (r *ScriptedRunner) Actions() []pipeline.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Action(nil), r.actions...)
}

// Commands returns the commands run so far, in order.
func (r *ScriptedRunner) Commands() []string {
	actions := r.Actions()
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Command
	}
	return out
}

// Ran reports whether any command containing match was run.
func (r *ScriptedRunner) Ran(match string) bool {
	for _, c := range r.Commands() {
		if strings.Contains(c, match) {
			return true
		}
	}
	return false
}
