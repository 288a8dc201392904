package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/timeline"
)

// tapClock stamps each Enter press.
var tapClock clock.PassiveClock = clock.RealClock{}

func newTapTempoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tap-tempo",
		Short: "Estimate a tempo by pressing Enter on the beat",
		Args:  cobra.NoArgs,
		RunE:  runTapTempoCmd,
	}
}

func runTapTempoCmd(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out, "Press Enter on each beat; type q and Enter (or Ctrl-D) to finish."); err != nil {
		return err
	}
	taps, err := readTaps(cmd)
	if err != nil {
		return err
	}
	bpm, err := timeline.TempoFromTaps(taps)
	if errors.Is(err, model.ErrInsufficientSamples) {
		_, werr := fmt.Fprintln(out, "Not enough taps.")
		return werr
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "BPM ≈ %.1f\n", bpm)
	return err
}

// readTaps stamps every line until q, EOF or interrupt.
func readTaps(cmd *cobra.Command) ([]time.Time, error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-cmd.Context().Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	var taps []time.Time
	for {
		select {
		case <-cmd.Context().Done():
			return taps, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return nil, fmt.Errorf("failed to read taps: %w", err)
					}
				default:
				}
				return taps, nil
			}
			if strings.EqualFold(strings.TrimSpace(line), "q") {
				return taps, nil
			}
			taps = append(taps, tapClock.Now())
		}
	}
}
