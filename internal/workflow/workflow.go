// Package workflow runs an ordered list of automation steps against a target,
// recording each step's state and a screenshot after every step that succeeds.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is the lifecycle state of a single step.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Step is a point-in-time view of one step. Unset times are left out of its
// JSON form.
type Step struct {
	ID         string
	Name       string
	State      State
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

type stepJSON struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	State      State      `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{
		ID:         s.ID,
		Name:       s.Name,
		State:      s.State,
		StartedAt:  optionalTime(s.StartedAt),
		FinishedAt: optionalTime(s.FinishedAt),
		Error:      s.Error,
	})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Step{ID: raw.ID, Name: raw.Name, State: raw.State, Error: raw.Error}
	if raw.StartedAt != nil {
		s.StartedAt = *raw.StartedAt
	}
	if raw.FinishedAt != nil {
		s.FinishedAt = *raw.FinishedAt
	}
	return nil
}

// Duration is how long the step ran. It is zero until the step finishes.
func (s Step) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Body is the action a step performs.
type Body func(ctx context.Context) error

// Definition declares a step before it is run.
type Definition struct {
	ID   string
	Name string
	Body Body
}

// Screenshot is one entry of the screenshot log.
type Screenshot struct {
	StepID  string
	TakenAt time.Time
	Image   image.Image
}

// Workflow is an ordered list of steps plus the screenshots taken while running them.
// Its accessors are safe to call while an Engine is running it.
type Workflow struct {
	mu          sync.RWMutex
	steps       []Step
	bodies      []Body
	screenshots []Screenshot
	started     bool
}

// New validates defs and creates a workflow with every step idle.
func New(defs []Definition) (*Workflow, error) {
	if len(defs) == 0 {
		return nil, errors.New("workflow: no steps defined")
	}
	seen := make(map[string]struct{}, len(defs))
	wf := &Workflow{
		steps:  make([]Step, len(defs)),
		bodies: make([]Body, len(defs)),
	}
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("workflow: step %d has an empty id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("workflow: duplicate step id %q", d.ID)
		}
		if d.Body == nil {
			return nil, fmt.Errorf("workflow: step %q has no body", d.ID)
		}
		seen[d.ID] = struct{}{}

		name := d.Name
		if name == "" {
			name = d.ID
		}
		wf.steps[i] = Step{ID: d.ID, Name: name, State: StateIdle}
		wf.bodies[i] = d.Body
	}
	return wf, nil
}

// Steps returns a copy of every step in order.
func (w *Workflow) Steps() []Step {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Step, len(w.steps))
	copy(out, w.steps)
	return out
}

// Step returns the step with the given id.
func (w *Workflow) Step(id string) (Step, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Screenshots returns a copy of the screenshot log.
func (w *Workflow) Screenshots() []Screenshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Screenshot, len(w.screenshots))
	copy(out, w.screenshots)
	return out
}

// markStarted flips the workflow into its started state exactly once.
func (w *Workflow) markStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return false
	}
	w.started = true
	return true
}

func (w *Workflow) transition(i int, state State, at time.Time, err error) Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &w.steps[i]
	s.State = state
	switch state {
	case StateRunning:
		s.StartedAt = at
	case StateDone, StateError:
		s.FinishedAt = at
	}
	if err != nil {
		s.Error = err.Error()
	}
	return *s
}

func (w *Workflow) appendScreenshot(shot Screenshot) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.screenshots = append(w.screenshots, shot)
	return len(w.screenshots) - 1
}
