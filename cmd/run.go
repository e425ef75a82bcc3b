package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/automator"
	"github.com/xkilldash9x/vzpilot/internal/config"
	"github.com/xkilldash9x/vzpilot/internal/display"
	"github.com/xkilldash9x/vzpilot/internal/metrics"
	"github.com/xkilldash9x/vzpilot/internal/observability"
	"github.com/xkilldash9x/vzpilot/internal/perception"
	"github.com/xkilldash9x/vzpilot/internal/qmp"
	"github.com/xkilldash9x/vzpilot/internal/reporting"
	"github.com/xkilldash9x/vzpilot/internal/waiter"
	"github.com/xkilldash9x/vzpilot/internal/workflow"
)

// frameGrabber keeps the frame buffer fresh until its context ends.
type frameGrabber interface {
	Run(ctx context.Context) error
}

// session bundles the live connections to one target.
type session struct {
	frames  *display.Buffer
	input   schemas.InputSink
	monitor schemas.MachineMonitor
	ocr     perception.OCREngine
	grabber frameGrabber
	closers []func() error
}

// Close releases everything the session opened, last opened first.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openSession is swapped out in tests.
var openSession = dialSession

// dialSession connects to the target's QMP socket and wires the display,
// keyboard and monitor adapters over it.
func dialSession(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*session, error) {
	target := cfg.Target()
	client, err := qmp.DialRetry(ctx, target.QMP.Network, target.QMP.Address, target.QMP.ConnectTimeout, logger)
	if err != nil {
		return nil, err
	}
	sess := &session{closers: []func() error{client.Close}}

	sess.frames = display.NewBuffer(logger)
	grabber, err := qmp.NewGrabber(client, sess.frames, qmp.GrabberConfig{
		Dir:      target.Display.Dir,
		Interval: target.Display.RefreshInterval,
		Device:   target.Display.Device,
	}, logger)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	sess.grabber = grabber
	sess.closers = append(sess.closers, grabber.Close)

	if sess.input, err = qmp.NewKeyboard(client, qmp.KeyboardConfig{
		KeysPerSecond: target.Input.KeysPerSecond,
		Burst:         target.Input.Burst,
		Device:        target.Input.Device,
	}, logger); err != nil {
		_ = sess.Close()
		return nil, err
	}
	if sess.monitor, err = qmp.NewMonitor(client); err != nil {
		_ = sess.Close()
		return nil, err
	}

	ocr := cfg.Perception().OCR
	sess.ocr = perception.NewTesseractEngine(perception.TesseractConfig{
		Binary:        ocr.Binary,
		Language:      ocr.Language,
		PageSegMode:   ocr.PageSegMode,
		MinConfidence: ocr.MinConfidence,
	}, logger)
	return sess, nil
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Walk the guest through the setup assistant and write a run report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}

			sess, err := openSession(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to target: %w", err)
			}
			defer func() {
				if err := sess.Close(); err != nil {
					logger.Warn("Error while closing target session", zap.Error(err))
				}
			}()

			return executeRun(ctx, cfg, sess, logger, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().String("qmp", "", "QMP socket address. (Overrides config/env)")
	runCmd.Flags().String("qmp-network", "", "QMP socket network: unix or tcp. (Overrides config/env)")
	runCmd.Flags().StringP("output", "o", "", "Directory run reports are written under. (Overrides config/env)")
	runCmd.Flags().Bool("submit", false, "Submit the account form at the end of setup. (Overrides config/env)")
	runCmd.Flags().Bool("metrics", false, "Serve Prometheus metrics while running. (Overrides config/env)")
	return runCmd
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("qmp") || flags.Changed("qmp-network") {
		address, _ := flags.GetString("qmp")
		network, _ := flags.GetString("qmp-network")
		if address == "" {
			address = cfg.Target().QMP.Address
		}
		if network == "" {
			network = cfg.Target().QMP.Network
		}
		cfg.SetQMPAddress(network, address)
	}
	if flags.Changed("output") {
		dir, _ := flags.GetString("output")
		if dir == "" {
			return errors.New("--output cannot be empty")
		}
		cfg.SetOutputDir(dir)
	}
	if flags.Changed("submit") {
		submit, _ := flags.GetBool("submit")
		cfg.SetAccountSubmit(submit)
	}
	if flags.Changed("metrics") {
		enabled, _ := flags.GetBool("metrics")
		cfg.SetMetricsEnabled(enabled)
	}
	return nil
}

// executeRun runs the setup assistant against sess. The grabber and the
// optional metrics server live exactly as long as the workflow. A report is
// written whether or not the workflow succeeds.
func executeRun(ctx context.Context, cfg config.Interface, sess *session, logger *zap.Logger, out io.Writer) error {
	runID := uuid.New().String()
	logger = logger.With(zap.String("run_id", runID))
	startedAt := time.Now()

	collector := metrics.NewCollector()
	shots, err := display.NewCapturer(sess.frames)
	if err != nil {
		return err
	}

	waitOpts := []waiter.Option{waiter.WithInterval(cfg.Automator().PollInterval), waiter.WithLogger(logger)}
	if timeout := cfg.Automator().WaitTimeout; timeout > 0 {
		waitOpts = append(waitOpts, waiter.WithTimeout(timeout))
	}
	auto, err := automator.New(automator.Dependencies{
		Frames:        sess.frames,
		Input:         sess.input,
		OCR:           sess.ocr,
		Screenshotter: shots,
		Monitor:       sess.monitor,
	}, logger,
		automator.WithWaitOptions(waitOpts...),
		automator.WithWaitHooks(collector.WaitHooks),
		automator.WithMatchThreshold(cfg.Perception().Match.Threshold),
	)
	if err != nil {
		return fmt.Errorf("failed to create automator: %w", err)
	}

	opts, err := setupOptions(cfg.Workflow())
	if err != nil {
		return err
	}
	wf, err := workflow.New(workflow.SetupAssistant(auto, opts))
	if err != nil {
		return err
	}
	engine, err := workflow.NewEngine(auto, logger, collector, &progressPrinter{out: out})
	if err != nil {
		return err
	}

	logger.Info("Starting run", zap.Int("steps", len(wf.Steps())))
	fmt.Fprintf(out, "Run %s\n", runID)

	g, gctx := errgroup.WithContext(ctx)
	background, stopBackground := context.WithCancel(gctx)
	defer stopBackground()

	g.Go(func() error {
		if err := sess.grabber.Run(background); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("display grabber stopped: %w", err)
		}
		return nil
	})
	if m := cfg.Metrics(); m.Enabled {
		g.Go(func() error {
			if err := collector.Serve(background, m.ListenAddr, logger); err != nil {
				return fmt.Errorf("metrics server stopped: %w", err)
			}
			return nil
		})
	}

	var runErr error
	g.Go(func() error {
		defer stopBackground()
		runErr = engine.Run(gctx, wf)
		return nil
	})
	groupErr := g.Wait()

	if runErr == nil && groupErr != nil {
		runErr = groupErr
	}

	dir, reportErr := reporting.NewWriter(cfg.Workflow().OutputDir, logger).Write(runID, startedAt, wf, runErr)
	if reportErr != nil {
		logger.Error("Failed to write run report", zap.Error(reportErr))
	} else {
		fmt.Fprintf(out, "Report written to %s\n", dir)
	}

	if runErr != nil {
		return runErr
	}
	if groupErr != nil {
		return groupErr
	}
	fmt.Fprintf(out, "Setup complete in %s\n", time.Since(startedAt).Round(time.Millisecond))
	return reportErr
}

// setupOptions turns the workflow section into script options, loading the
// globe reference image when one is configured.
func setupOptions(cfg config.WorkflowConfig) (workflow.SetupOptions, error) {
	opts := workflow.DefaultSetupOptions()
	opts.Account = workflow.AccountOptions{
		FullName: cfg.Account.FullName,
		Password: cfg.Account.Password,
		Hint:     cfg.Account.Hint,
		Submit:   cfg.Account.Submit,
	}
	opts.GlobeAt = image.Pt(cfg.Assets.GlobeX, cfg.Assets.GlobeY)

	if cfg.Assets.Globe != "" {
		globe, err := loadImage(cfg.Assets.Globe)
		if err != nil {
			return opts, fmt.Errorf("failed to load globe image: %w", err)
		}
		opts.Globe = globe
	}
	return opts, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// progressPrinter reports step transitions on the command's output.
type progressPrinter struct {
	out io.Writer
}

func (p *progressPrinter) StepChanged(step workflow.Step) {
	switch step.State {
	case workflow.StateRunning:
		fmt.Fprintf(p.out, "  ... %s\n", step.Name)
	case workflow.StateDone:
		fmt.Fprintf(p.out, "  ok  %s (%s)\n", step.Name, step.Duration().Round(time.Millisecond))
	case workflow.StateError:
		fmt.Fprintf(p.out, "  err %s: %s\n", step.Name, step.Error)
	}
}

func (p *progressPrinter) ScreenshotCaptured(string, int) {}

func (p *progressPrinter) ScreenshotSkipped(string, error) {}
