package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/calibrate"
	"github.com/verte-zerg/tapas/internal/capture"
	"github.com/verte-zerg/tapas/internal/emit"
	"github.com/verte-zerg/tapas/internal/logger"
	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/scheduler"
	"github.com/verte-zerg/tapas/internal/session"
)

var (
	calibrateDevice     string
	calibrateCapture    string
	calibrateBeep       bool
	calibrateSpeaker    bool
	calibrateSampleRate int
	calibrateChannels   int
)

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure and store the input latency of a device",
		Long: "Plays a short click pattern and measures how far taps land from the clicks.\n" +
			"Tap along with every click; the median offset is stored for --device.",
		Args: cobra.NoArgs,
		RunE: runCalibrateCmd,
	}
	addLiveFlags(cmd, &calibrateDevice, &calibrateCapture, &calibrateBeep, &calibrateSpeaker, &calibrateSampleRate, &calibrateChannels)
	return cmd
}

func runCalibrateCmd(cmd *cobra.Command, _ []string) error {
	st, err := loadSettings()
	if err != nil {
		return err
	}
	applyLiveConfig(cmd, st.file.Practice, &calibrateDevice, &calibrateCapture, &calibrateBeep, &calibrateSpeaker, &calibrateSampleRate, &calibrateChannels)

	db, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	log := logger.GetProjectLogger()
	est := calibrate.New(
		session.New(scheduler.New(clock.RealClock{}, st.scheduler, log), clock.RealClock{}, session.DefaultTail, log),
		db,
		log,
	)
	tl := calibrate.Timeline()
	var res calibrate.Result
	opts := liveOptions{
		capture:    calibrateCapture,
		sampleRate: calibrateSampleRate,
		channels:   calibrateChannels,
		beep:       calibrateBeep,
		speaker:    calibrateSpeaker,
		detector:   st.detector,
		title:      "calibrate " + calibrateDevice,
		notes:      []string{"Tap on every click."},
	}
	_, err = runLive(cmd, opts, tl, func(ctx context.Context, em emit.Emitter, rec capture.Recorder) error {
		var runErr error
		res, runErr = est.Run(ctx, calibrateDevice, em, rec)
		return runErr
	})
	switch {
	case errors.Is(err, model.ErrInsufficientSamples):
		return fmt.Errorf("only %d taps lined up with clicks (%d detected, need %d); try again: %w",
			res.Pairs, res.Onsets, calibrate.MinPairs, err)
	case errors.Is(err, context.Canceled):
		_, werr := fmt.Fprintln(cmd.OutOrStdout(), "Calibration cancelled; nothing saved.")
		return werr
	case err != nil:
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Latency for %s: %d ms (%d taps)\n",
		res.Device, res.Latency.Milliseconds(), res.Pairs)
	return err
}
