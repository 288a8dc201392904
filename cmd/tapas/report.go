package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/stats"
	"github.com/verte-zerg/tapas/internal/statsui"
)

var (
	reportPreset string
	reportLast   int
	reportSince  string
	reportMetric string
	reportWindow int
	reportTUI    bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show practice history",
		Args:  cobra.NoArgs,
		RunE:  runReportCmd,
	}
	cmd.Flags().StringVar(&reportPreset, "preset", "", "only attempts of this preset")
	cmd.Flags().IntVar(&reportLast, "last", defaultReportLast, "last N attempts (0 for all)")
	cmd.Flags().StringVar(&reportSince, "since", "", "only attempts since YYYY-MM-DD")
	cmd.Flags().StringVar(&reportMetric, "metric", "score", "trend metric: score, mae (mean_err), mean, spread, variance, miss, extra")
	cmd.Flags().IntVar(&reportWindow, "window", defaultWindow, "moving average window")
	cmd.Flags().BoolVar(&reportTUI, "tui", false, "browse history interactively")
	return cmd
}

func reportConfig() (model.HistoryConfig, error) {
	if reportLast < 0 {
		return model.HistoryConfig{}, fmt.Errorf("--last must be >= 0")
	}
	if reportWindow < 1 {
		return model.HistoryConfig{}, fmt.Errorf("--window must be >= 1")
	}
	cfg := model.HistoryConfig{
		Preset: reportPreset,
		Last:   reportLast,
		Metric: reportMetric,
		Window: reportWindow,
	}
	if reportSince != "" {
		since, err := time.ParseInLocation("2006-01-02", reportSince, time.Local)
		if err != nil {
			return model.HistoryConfig{}, fmt.Errorf("invalid --since %q (use YYYY-MM-DD): %w", reportSince, err)
		}
		cfg.Since = &since
	}
	return cfg, nil
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := reportConfig()
	if err != nil {
		return err
	}
	db, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if reportTUI {
		program := tea.NewProgram(statsui.NewModel(db, cfg), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run report TUI: %w", err)
		}
		return nil
	}

	r, err := stats.BuildReport(cmd.Context(), db, cfg)
	if err != nil {
		return err
	}
	return stats.RenderReport(cmd.OutOrStdout(), r, time.Now(), stats.TerminalWidth(os.Stdout))
}
