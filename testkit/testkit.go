package testkit

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/observability"
	"github.com/theory-cloud/cvsite/pkg/pipeline"
)

// Env is a deterministic local environment for pipeline tests: a manual clock, predictable
// run IDs, a scripted runner and an in-memory logger.
type Env struct {
	Clock  *ManualClock
	IDs    *ManualIDGenerator
	Runner *ScriptedRunner
	Logger *observability.TestLogger
}

func New() *Env {
	return NewWithTime(time.Unix(0, 0).UTC())
}

func NewWithTime(now time.Time) *Env {
	return &Env{
		Clock:  NewManualClock(now),
		IDs:    NewManualIDGenerator(),
		Runner: NewScriptedRunner(),
		Logger: observability.NewTestLogger(),
	}
}

// Orchestrator wires the environment into a pipeline orchestrator. opts are applied last.
func (e *Env) Orchestrator(gate pipeline.DeploymentGate, opts ...pipeline.Option) *pipeline.Orchestrator {
	combined := []pipeline.Option{
		pipeline.WithClock(e.Clock.Now),
		pipeline.WithIDGenerator(e.IDs),
		pipeline.WithLogger(e.Logger),
	}
	return pipeline.New(e.Runner, gate, append(combined, opts...)...)
}

// ManualClock is a deterministic, mutable clock for tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	out := c.now
	c.mu.Unlock()
	return out
}

// ManualIDGenerator is a deterministic, predictable ID generator for tests.
type ManualIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int64
	queue  []string
}

var _ cvsite.IDGenerator = (*ManualIDGenerator)(nil)

func NewManualIDGenerator() *ManualIDGenerator {
	return &ManualIDGenerator{prefix: "run", next: 1}
}

func (g *ManualIDGenerator) Queue(ids ...string) {
	g.mu.Lock()
	g.queue = append(g.queue, ids...)
	g.mu.Unlock()
}

func (g *ManualIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) > 0 {
		out := g.queue[0]
		g.queue = g.queue[1:]
		return out
	}

	out := fmt.Sprintf("%s-%s", g.prefix, strconv.FormatInt(g.next, 10))
	g.next++
	return out
}
