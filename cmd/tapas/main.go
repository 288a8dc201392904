// Package main provides the CLI entrypoint for tapas.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/tapas/internal/align"
	"github.com/verte-zerg/tapas/internal/config"
	"github.com/verte-zerg/tapas/internal/logger"
	"github.com/verte-zerg/tapas/internal/onset"
	"github.com/verte-zerg/tapas/internal/preset"
	"github.com/verte-zerg/tapas/internal/scheduler"
	"github.com/verte-zerg/tapas/internal/store"
)

const (
	captureKeys  = "keys"
	captureStdin = "stdin"
)

const (
	defaultDevice     = "default"
	defaultCapture    = captureKeys
	defaultSampleRate = 44100
	defaultChannels   = 1
	defaultBeepMs     = 30
	defaultTailMs     = 400
	defaultExport     = "json,csv"
	defaultReportLast = 30
	defaultWindow     = 5
	defaultJobs       = 4
)

var (
	verbose    bool
	configPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tapas",
		Short:         "Rhythm practice trainer",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.SetVerbose(verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/tapas/config.toml)")

	rootCmd.AddCommand(newMetronomeCmd())
	rootCmd.AddCommand(newPresetCmd())
	rootCmd.AddCommand(newPracticeCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newCalibrateCmd())
	rootCmd.AddCommand(newTapTempoCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

// settings are the file-level tunables resolved against the built-in defaults.
type settings struct {
	file      config.FileConfig
	scheduler scheduler.Config
	detector  onset.Params
	scoring   align.Params
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadSettings() (settings, error) {
	fileCfg, err := config.LoadConfig(resolvedConfigPath())
	if err != nil {
		return settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	s := settings{
		file:      fileCfg,
		scheduler: fileCfg.Scheduler.Apply(scheduler.DefaultConfig()),
		detector:  fileCfg.Detector.Apply(onset.DefaultParams()),
		scoring:   fileCfg.Scoring.Apply(align.DefaultParams()),
	}
	if err := s.detector.Validate(); err != nil {
		return settings{}, fmt.Errorf("invalid [detector] config: %w", err)
	}
	if err := s.scoring.Validate(); err != nil {
		return settings{}, fmt.Errorf("invalid [scoring] config: %w", err)
	}
	return s, nil
}

func openStore() (*store.Store, func(), error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db: %w", err)
	}
	closeFn := func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}
	return st, closeFn, nil
}

func presetStore() *preset.Dir {
	return preset.NewDir(config.DefaultPresetDir())
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
