package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// ErrAlreadyStarted is returned when Run is called on a workflow that has already run.
var ErrAlreadyStarted = errors.New("workflow: already started")

// Observer is notified of progress. Calls are made synchronously from the
// goroutine running the workflow.
type Observer interface {
	StepChanged(step Step)
	ScreenshotCaptured(stepID string, index int)
	// ScreenshotSkipped reports a screenshot that could not be taken. err is
	// nil when the display had not rendered yet.
	ScreenshotSkipped(stepID string, err error)
}

// Engine executes workflows one step at a time and stops at the first failure.
type Engine struct {
	shots     schemas.Screenshotter
	observers []Observer
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates an engine that takes screenshots through shots.
func NewEngine(shots schemas.Screenshotter, logger *zap.Logger, observers ...Observer) (*Engine, error) {
	if shots == nil {
		return nil, errors.New("screenshotter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		shots:     shots,
		observers: observers,
		logger:    logger.Named("workflow"),
		now:       time.Now,
	}, nil
}

// Run executes every step of wf in order. A failing step is marked as errored,
// the remaining steps stay idle and the error is returned. After each
// successful step a screenshot is appended to the log if one can be taken.
func (e *Engine) Run(ctx context.Context, wf *Workflow) error {
	if wf == nil {
		return errors.New("workflow cannot be nil")
	}
	if !wf.markStarted() {
		return ErrAlreadyStarted
	}

	steps := wf.Steps()
	e.logger.Info("Starting workflow", zap.Int("steps", len(steps)))
	start := e.now()

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Workflow abandoned", zap.String("next_step", step.ID), zap.Error(err))
			return err
		}

		logger := e.logger.With(zap.String("step", step.ID))
		e.notify(wf.transition(i, StateRunning, e.now(), nil))
		logger.Info("Step started", zap.String("name", step.Name))

		if err := e.runBody(ctx, wf.bodies[i]); err != nil {
			e.notify(wf.transition(i, StateError, e.now(), err))
			logger.Error("Step failed", zap.Error(err))
			return fmt.Errorf("workflow: step %q failed: %w", step.ID, err)
		}

		done := wf.transition(i, StateDone, e.now(), nil)
		e.notify(done)
		logger.Info("Step completed", zap.Duration("duration", done.Duration()))

		e.screenshot(ctx, wf, step.ID, logger)
	}

	e.logger.Info("Workflow completed", zap.Duration("duration", e.now().Sub(start)))
	return nil
}

func (e *Engine) runBody(ctx context.Context, body Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return body(ctx)
}

// screenshot is best effort: failures are logged and the run continues.
func (e *Engine) screenshot(ctx context.Context, wf *Workflow, stepID string, logger *zap.Logger) {
	img, err := e.shots.Capture(ctx, nil)
	if err != nil || img == nil {
		if err != nil {
			logger.Warn("Failed to take screenshot", zap.Error(err))
		} else {
			logger.Warn("No screenshot available, display not rendered")
		}
		for _, o := range e.observers {
			o.ScreenshotSkipped(stepID, err)
		}
		return
	}
	idx := wf.appendScreenshot(Screenshot{StepID: stepID, TakenAt: e.now(), Image: img})
	for _, o := range e.observers {
		o.ScreenshotCaptured(stepID, idx)
	}
}

func (e *Engine) notify(step Step) {
	for _, o := range e.observers {
		o.StepChanged(step)
	}
}
