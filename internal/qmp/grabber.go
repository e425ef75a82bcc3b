package qmp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// DefaultRefreshInterval is how often the guest display is sampled.
const DefaultRefreshInterval = 250 * time.Millisecond

// Publisher receives each decoded frame.
type Publisher interface {
	Publish(f *schemas.Frame)
}

// GrabberConfig configures display sampling.
type GrabberConfig struct {
	// Dir is a directory visible to both QEMU and this process. Empty uses a temp dir.
	Dir      string
	Interval time.Duration
	// Device optionally selects the display device to dump.
	Device string
}

// Grabber samples the guest display with screendump and publishes each frame.
type Grabber struct {
	exec     Executor
	out      Publisher
	dir      string
	ownsDir  bool
	interval time.Duration
	device   string
	logger   *zap.Logger
}

// NewGrabber creates a grabber. Call Close to remove a temporary dump directory.
func NewGrabber(exec Executor, out Publisher, cfg GrabberConfig, logger *zap.Logger) (*Grabber, error) {
	if exec == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if out == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Grabber{
		exec:     exec,
		out:      out,
		dir:      cfg.Dir,
		interval: cfg.Interval,
		device:   cfg.Device,
		logger:   logger.Named("qmp_grabber"),
	}
	if g.interval <= 0 {
		g.interval = DefaultRefreshInterval
	}
	if g.dir == "" {
		dir, err := os.MkdirTemp("", "vzpilot-screendump-")
		if err != nil {
			return nil, fmt.Errorf("qmp: failed to create dump directory: %w", err)
		}
		g.dir = dir
		g.ownsDir = true
	} else if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("qmp: failed to create dump directory: %w", err)
	}
	return g, nil
}

type screendumpArgs struct {
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Device   string `json:"device,omitempty"`
}

// Grab takes one screendump, decodes it and publishes the frame.
func (g *Grabber) Grab(ctx context.Context) error {
	path, err := filepath.Abs(filepath.Join(g.dir, "screen.png"))
	if err != nil {
		return err
	}
	args := screendumpArgs{Filename: path, Format: "png", Device: g.device}
	if err := g.exec.Execute(ctx, "screendump", args, nil); err != nil {
		return fmt.Errorf("qmp: screendump: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("qmp: failed to read screendump: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("qmp: failed to decode screendump: %w", err)
	}
	g.out.Publish(schemas.FrameFromImage(img))
	return nil
}

// Run grabs a frame every interval until ctx is done. Individual failures are
// logged and do not stop the loop; the guest display may not exist yet.
func (g *Grabber) Run(ctx context.Context) error {
	g.logger.Info("Starting display grabber", zap.Duration("interval", g.interval), zap.String("dir", g.dir))
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := g.Grab(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			// Only the first failure of a streak is worth a warning.
			if failures == 1 {
				g.logger.Warn("Display grab failed", zap.Error(err))
			} else {
				g.logger.Debug("Display grab failed", zap.Error(err), zap.Int("consecutive", failures))
			}
		} else if failures > 0 {
			g.logger.Info("Display grab recovered", zap.Int("failed_attempts", failures))
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close removes the dump directory if the grabber created it.
func (g *Grabber) Close() error {
	if !g.ownsDir {
		return nil
	}
	return os.RemoveAll(g.dir)
}
