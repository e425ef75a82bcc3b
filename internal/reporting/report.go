// Package reporting persists the outcome of a workflow run: a JSON summary
// plus one PNG per screenshot in the log.
package reporting

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/internal/workflow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReportFile is the name of the summary written into the run directory.
const ReportFile = "report.json"

// Outcome values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ScreenshotEntry points at one PNG written next to the report.
type ScreenshotEntry struct {
	StepID  string    `json:"step_id"`
	File    string    `json:"file"`
	TakenAt time.Time `json:"taken_at"`
}

// Report summarizes one run.
type Report struct {
	RunID       string            `json:"run_id"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Outcome     string            `json:"outcome"`
	Error       string            `json:"error,omitempty"`
	Steps       []workflow.Step   `json:"steps"`
	Screenshots []ScreenshotEntry `json:"screenshots"`
}

// Writer writes reports under a base directory, one subdirectory per run.
type Writer struct {
	baseDir string
	logger  *zap.Logger
}

// NewWriter creates a writer rooted at baseDir.
func NewWriter(baseDir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{baseDir: baseDir, logger: logger.Named("reporting")}
}

// Write persists the state of wf after a run. runErr is the error Run returned.
// It returns the directory the report was written to.
func (w *Writer) Write(runID string, startedAt time.Time, wf *workflow.Workflow, runErr error) (string, error) {
	dir := filepath.Join(w.baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("reporting: failed to create run directory: %w", err)
	}

	report := Report{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Outcome:    OutcomeSucceeded,
		Steps:      wf.Steps(),
	}
	if runErr != nil {
		report.Outcome = OutcomeFailed
		report.Error = runErr.Error()
	}

	for i, shot := range wf.Screenshots() {
		name := fmt.Sprintf("%02d-%s.png", i+1, shot.StepID)
		if err := writePNG(filepath.Join(dir, name), shot); err != nil {
			// One bad image should not cost the whole report.
			w.logger.Warn("Failed to write screenshot", zap.String("file", name), zap.Error(err))
			continue
		}
		report.Screenshots = append(report.Screenshots, ScreenshotEntry{StepID: shot.StepID, File: name, TakenAt: shot.TakenAt})
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("reporting: failed to encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ReportFile), data, 0o644); err != nil {
		return "", fmt.Errorf("reporting: failed to write report: %w", err)
	}

	w.logger.Info("Report written", zap.String("dir", dir), zap.String("outcome", report.Outcome),
		zap.Int("screenshots", len(report.Screenshots)))
	return dir, nil
}

func writePNG(path string, shot workflow.Screenshot) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, shot.Image)
}

// Load reads a report previously written by Write.
func Load(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return nil, fmt.Errorf("reporting: failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("reporting: failed to decode report: %w", err)
	}
	return &r, nil
}
