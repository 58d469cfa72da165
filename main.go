package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ble-proximity.klederson.com/internal/app"
	"ble-proximity.klederson.com/internal/ble"
	"ble-proximity.klederson.com/internal/config"
	"ble-proximity.klederson.com/internal/diag"
	"ble-proximity.klederson.com/internal/irq"
	"ble-proximity.klederson.com/internal/status"
	"ble-proximity.klederson.com/internal/telemetry"
)

var (
	flagConfig   string
	flagDemo     bool
	flagAdapter  string
	flagHeadless bool
	flagLogLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ble-proximity",
		Short: "BLE Proximity - beacon distance indicator on an emulated 5x5 LED matrix",
		Long: `BLE Proximity scans the three BLE advertising channels, reduces beacon
RSSI readings to a smoothed proximity estimate, and shows it as a gradient
on a 5x5 LED matrix rendered in the terminal.

Requires sudo or CAP_NET_ADMIN capability for real Bluetooth scanning.
Use --demo flag for demonstration mode without Bluetooth hardware.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&flagConfig, "config", "", "Config file (default "+config.DefaultConfigPath()+")")
	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Run in demo mode with simulated beacons (no Bluetooth required)")
	rootCmd.Flags().StringVar(&flagAdapter, "adapter", "hci0", "Bluetooth adapter to use")
	rootCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Run without the terminal display, logging to stderr")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case flagConfig != "":
		cfg, err = config.Load(flagConfig)
	default:
		if _, statErr := os.Stat(config.DefaultConfigPath()); statErr == nil {
			cfg, err = config.Load(config.DefaultConfigPath())
		} else {
			cfg = config.Default()
		}
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("demo") {
		cfg.Demo = flagDemo
	}
	if flags.Changed("adapter") {
		cfg.Adapter = flagAdapter
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// logOutput picks where the diagnostic channel drains to. The terminal
// display owns stdout and stderr, so without a log file its output is
// discarded.
func logOutput(cfg *config.Config, headless bool) (io.Writer, func(), error) {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, func() { f.Close() }, nil
	}
	if headless {
		return os.Stderr, func() {}, nil
	}
	return io.Discard, func() {}, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ch := diag.NewChannel(cfg.Diag.BufferSize)
	logger, err := diag.NewLogger(ch, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	out, closeOut, err := logOutput(cfg, flagHeadless)
	if err != nil {
		return err
	}
	defer closeOut()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The pump outlives everything else so the last lines reach the output.
	pumpCtx, stopPump := context.WithCancel(context.Background())
	pumpDone := make(chan error, 1)
	go func() { pumpDone <- ch.Pump(pumpCtx, out) }()
	defer func() {
		stopPump()
		<-pumpDone
	}()

	ctrl := irq.NewController(logger.Named("irq"))
	board := app.NewBoard(ble.NewMonotonicClock(cfg.ClockOffset), ctrl)
	fw, err := app.Boot(board, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		return err
	}

	var (
		source     ble.Source
		sourceName string
	)
	if cfg.Demo {
		source, sourceName = ble.NewMockSource(), "demo"
	} else {
		source, sourceName = ble.NewAdapterSource(cfg.Adapter, logger.Named("adapter")), cfg.Adapter
	}
	if err := source.Start(ctx, fw.Radio()); err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
		fmt.Fprintln(os.Stderr, "Bluetooth scanning requires elevated permissions.")
		fmt.Fprintln(os.Stderr, "Try one of:")
		fmt.Fprintln(os.Stderr, "  sudo ./ble-proximity")
		fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./ble-proximity")
		fmt.Fprintln(os.Stderr, "  ./ble-proximity --demo    (demo mode, no hardware needed)")
		return err
	}
	defer source.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Broker != "" {
		pub := telemetry.NewPublisher(cfg.MQTT, logger.Named("mqtt"))
		if err := pub.Connect(); err != nil {
			logger.Warn("telemetry disabled", zap.Error(err))
		} else {
			defer pub.Close()
			g.Go(func() error {
				return pub.Run(gctx, fw.Estimate(), fw.Collector())
			})
		}
	}

	if cfg.HTTP.Listen != "" {
		srv := status.NewServer(fw, cfg.HTTP.StreamInterval, logger.Named("http"))
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, cfg.HTTP.Listen); err != nil {
				logger.Warn("status server stopped", zap.Error(err))
			}
			return nil
		})
	}

	if flagHeadless {
		g.Go(func() error {
			return fw.Run(gctx)
		})
		// No-op unless started by systemd with Type=notify.
		if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logger.Warn("sd_notify failed", zap.Error(err))
		}
		err := g.Wait()
		daemon.SdNotify(false, daemon.SdNotifyStopping)
		return err
	}

	p := tea.NewProgram(
		app.New(fw, ch, sourceName, cfg.Display.FPS),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithFPS(cfg.Display.FPS),
	)
	g.Go(func() error {
		// A halted firmware stays on screen until the user quits.
		if err := fw.Run(gctx); err != nil {
			p.Send(app.HaltMsg{Err: err})
		}
		return nil
	})

	_, err = p.Run()
	cancel()
	if gerr := g.Wait(); gerr != nil {
		logger.Error("shutdown", zap.Error(gerr))
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
