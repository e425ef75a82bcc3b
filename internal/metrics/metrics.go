// Package metrics exposes workflow progress and perception polling as
// Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/internal/waiter"
	"github.com/xkilldash9x/vzpilot/internal/workflow"
)

const namespace = "vzpilot"

// Collector records metrics for one process. It implements workflow.Observer.
type Collector struct {
	registry *prometheus.Registry

	stepTransitions *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	waitEvaluations *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec
	screenshots     prometheus.Counter
	screenshotFails prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Number of workflow step state changes.",
		}, []string{"step", "state"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time spent running each workflow step.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"step", "state"}),
		waitEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_evaluations_total",
			Help:      "Number of condition evaluations while polling.",
		}, []string{"kind", "result"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for a condition.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind", "outcome"}),
		screenshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_total",
			Help:      "Number of screenshots appended to the log.",
		}),
		screenshotFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshot_failures_total",
			Help:      "Number of screenshots that could not be taken.",
		}),
	}
	c.registry.MustRegister(
		c.stepTransitions, c.stepDuration,
		c.waitEvaluations, c.waitDuration,
		c.screenshots, c.screenshotFails,
	)
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// StepChanged implements workflow.Observer.
func (c *Collector) StepChanged(step workflow.Step) {
	c.stepTransitions.WithLabelValues(step.ID, string(step.State)).Inc()
	if step.State == workflow.StateDone || step.State == workflow.StateError {
		c.stepDuration.WithLabelValues(step.ID, string(step.State)).Observe(step.Duration().Seconds())
	}
}

// ScreenshotCaptured implements workflow.Observer.
func (c *Collector) ScreenshotCaptured(string, int) { c.screenshots.Inc() }

// ScreenshotSkipped implements workflow.Observer.
func (c *Collector) ScreenshotSkipped(string, error) { c.screenshotFails.Inc() }

// WaitHooks returns polling hooks that record evaluations and wait outcomes under kind.
func (c *Collector) WaitHooks(kind string) waiter.Hooks {
	return waiter.Hooks{
		OnEvaluate: func(_ int, ok bool) {
			c.waitEvaluations.WithLabelValues(kind, strconv.FormatBool(ok)).Inc()
		},
		OnDone: func(_ int, elapsed time.Duration, err error) {
			c.waitDuration.WithLabelValues(kind, outcome(err)).Observe(elapsed.Seconds())
		},
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "met"
	case errors.Is(err, waiter.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
