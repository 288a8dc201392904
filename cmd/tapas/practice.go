package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/align"
	"github.com/verte-zerg/tapas/internal/audio"
	"github.com/verte-zerg/tapas/internal/capture"
	"github.com/verte-zerg/tapas/internal/config"
	"github.com/verte-zerg/tapas/internal/emit"
	"github.com/verte-zerg/tapas/internal/logger"
	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/preset"
	"github.com/verte-zerg/tapas/internal/scheduler"
	"github.com/verte-zerg/tapas/internal/session"
	"github.com/verte-zerg/tapas/internal/stats"
	"github.com/verte-zerg/tapas/internal/store"
	"github.com/verte-zerg/tapas/internal/timeline"
	"github.com/verte-zerg/tapas/internal/tui"
)

const weakestRows = 5

var (
	practiceBPM        float64
	practiceBars       int
	practiceMinutes    float64
	practiceCountIn    int
	practiceDevice     string
	practiceCapture    string
	practiceBeep       bool
	practiceSpeaker    bool
	practiceSampleRate int
	practiceChannels   int
	practiceTailMs     int
	practiceExport     string
	practiceOut        string
	practiceNotify     bool
)

func newPracticeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice [preset]",
		Short: "Practice a preset: play clicks, capture taps and score them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPracticeCmd,
	}
	cmd.Flags().Float64Var(&practiceBPM, "bpm", 0, "override preset tempo")
	cmd.Flags().IntVar(&practiceBars, "bars", 0, "limit run to N bars")
	cmd.Flags().Float64Var(&practiceMinutes, "minutes", 0, "limit run to N minutes")
	cmd.Flags().IntVar(&practiceCountIn, "count-in", 0, "override preset count-in bars")
	addLiveFlags(cmd, &practiceDevice, &practiceCapture, &practiceBeep, &practiceSpeaker, &practiceSampleRate, &practiceChannels)
	cmd.Flags().IntVar(&practiceTailMs, "tail-ms", defaultTailMs, "capture time after the last click")
	cmd.Flags().StringVar(&practiceExport, "export", defaultExport, "comma list of artifacts: json,csv,wav (empty for none)")
	cmd.Flags().StringVar(&practiceOut, "out", "", "artifact directory (default: $XDG_DATA_HOME/tapas/attempts)")
	cmd.Flags().BoolVar(&practiceNotify, "notify", false, "desktop notification with the score")
	cmd.MarkFlagsMutuallyExclusive("bars", "minutes")
	return cmd
}

func addLiveFlags(cmd *cobra.Command, device, captureMode *string, beep, spk *bool, sampleRate, channels *int) {
	cmd.Flags().StringVar(device, "device", defaultDevice, "device id used for latency calibration")
	cmd.Flags().StringVar(captureMode, "capture", defaultCapture, "tap source: keys (terminal) or stdin (raw s16le PCM)")
	cmd.Flags().BoolVar(beep, "beep", false, "play OS beeps")
	cmd.Flags().BoolVar(spk, "speaker", false, "play clicks through the audio output")
	cmd.Flags().IntVar(sampleRate, "sample-rate", defaultSampleRate, "sample rate of captured and played audio")
	cmd.Flags().IntVar(channels, "channels", defaultChannels, "channels of captured stdin audio")
}

func applyLiveConfig(cmd *cobra.Command, p config.PracticeConfig, device, captureMode *string, beep, spk *bool, sampleRate, channels *int) {
	applyStringConfig(cmd, "device", device, p.Device)
	applyStringConfig(cmd, "capture", captureMode, p.Capture)
	applyBoolConfig(cmd, "beep", beep, p.Beep)
	applyBoolConfig(cmd, "speaker", spk, p.Speaker)
	applyIntConfig(cmd, "sample-rate", sampleRate, p.SampleRate)
	applyIntConfig(cmd, "channels", channels, p.Channels)
}

func runPracticeCmd(cmd *cobra.Command, args []string) error {
	st, err := loadSettings()
	if err != nil {
		return err
	}
	pc := st.file.Practice
	applyLiveConfig(cmd, pc, &practiceDevice, &practiceCapture, &practiceBeep, &practiceSpeaker, &practiceSampleRate, &practiceChannels)
	applyIntConfig(cmd, "tail-ms", &practiceTailMs, pc.TailMs)
	applyBoolConfig(cmd, "notify", &practiceNotify, pc.Notify)

	name := ""
	if len(args) > 0 {
		name = args[0]
	} else if pc.Preset != nil {
		name = *pc.Preset
	}
	if name == "" {
		return fmt.Errorf("no preset given; pass one or set practice.preset in the config")
	}
	if practiceTailMs < 0 {
		return fmt.Errorf("--tail-ms must be >= 0")
	}
	exports, err := parseExports(practiceExport)
	if err != nil {
		return err
	}

	p, err := presetStore().Load(name)
	if err != nil {
		return err
	}
	params := timeline.FromPreset(p)
	overrideParams(cmd, &params, practiceBPM, practiceBars, practiceMinutes)
	if cmd.Flags().Changed("count-in") {
		params.CountIn = practiceCountIn
	} else if pc.CountIn != nil {
		params.CountIn = *pc.CountIn
	}
	tl, err := timeline.Generate(params)
	if err != nil {
		return err
	}

	db, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := cmd.Context()
	latency, calibrated, err := db.LoadLatency(ctx, practiceDevice)
	if err != nil {
		return fmt.Errorf("failed to load latency: %w", err)
	}
	log := logger.GetProjectLogger()
	if !calibrated {
		log.WithField("device", practiceDevice).Warn("device not calibrated; scoring without latency correction (run: tapas calibrate)")
	}

	sess := session.New(
		scheduler.New(clock.RealClock{}, st.scheduler, log),
		clock.RealClock{},
		time.Duration(practiceTailMs)*time.Millisecond,
		log,
	)
	var res session.Result
	opts := liveOptions{
		capture:    practiceCapture,
		sampleRate: practiceSampleRate,
		channels:   practiceChannels,
		beep:       practiceBeep,
		speaker:    practiceSpeaker,
		detector:   st.detector,
		title:      fmt.Sprintf("%s  %.0f BPM  %s", p.Name, tl.Tempo, preset.FormatMeter(tl.Meter)),
		notes:      p.Notes,
		footer:     footerStats(ctx, db, p.Name),
	}
	rec, err := runLive(cmd, opts, tl, func(ctx context.Context, em emit.Emitter, rec capture.Recorder) error {
		var runErr error
		res, runErr = sess.Run(ctx, tl, em, rec)
		return runErr
	})
	if err != nil {
		return err
	}
	if res.Report.Late > 0 {
		log.WithFields(logrus.Fields{
			"late":        res.Report.Late,
			"max_late_ms": res.Report.MaxLateness().Milliseconds(),
		}).Warn("some clicks fired late")
	}
	if len(res.Timeline.ScoredEvents()) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Stopped before the first scored click; nothing recorded.")
		return err
	}

	scored, err := align.Align(res.Timeline, res.Onsets, latency, st.scoring)
	if err != nil {
		return err
	}
	attempt := align.NewAttempt(res.Timeline, scored, align.AttemptInfo{
		PresetName: p.Name,
		Latency:    latency,
		Device:     practiceDevice,
		Source:     "live:" + practiceCapture,
		CreatedAt:  time.Now(),
	})
	if err := db.InsertAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}

	out := cmd.OutOrStdout()
	if res.Partial {
		if _, err := fmt.Fprintf(out, "Stopped early: scored %d of %d clicks.\n", len(res.Timeline.ScoredEvents()), len(tl.ScoredEvents())); err != nil {
			return err
		}
	}
	if err := renderAttemptWithSlots(out, res.Timeline, attempt); err != nil {
		return err
	}

	var samples *audio.Buffer
	if rec != nil {
		snap := rec.Buffer().Snapshot()
		samples = &snap
	}
	if err := writeArtifacts(out, exports, practiceOut, attempt, samples); err != nil {
		return err
	}
	if practiceNotify {
		notifyScore(log, attempt)
	}
	return nil
}

func renderAttemptWithSlots(w io.Writer, tl model.Timeline, a model.Attempt) error {
	if err := stats.RenderAttempt(w, a); err != nil {
		return err
	}
	if a.Metrics.ZeroConfidence {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return stats.RenderSlotTable(w, stats.SlotStats(tl, a.Pairs), weakestRows)
}

// overrideParams applies --bpm/--bars/--minutes on top of preset params.
func overrideParams(cmd *cobra.Command, params *timeline.Params, bpm float64, bars int, minutes float64) {
	if cmd.Flags().Changed("bpm") {
		params.Tempo = bpm
	}
	if cmd.Flags().Changed("bars") {
		params.Bars = bars
		params.Minutes = 0
	}
	if cmd.Flags().Changed("minutes") {
		params.Minutes = minutes
		params.Bars = 0
	}
}

func footerStats(ctx context.Context, db *store.Store, presetName string) *tui.FooterStats {
	attempts, err := db.ListAttempts(ctx, model.HistoryConfig{Preset: presetName, Last: defaultReportLast})
	if err != nil {
		logger.GetProjectLogger().WithError(err).Debug("failed to load footer stats")
		return nil
	}
	if len(attempts) == 0 {
		return nil
	}
	s := stats.Summarize(attempts)
	return &tui.FooterStats{
		Count:     s.Count,
		LastScore: attempts[len(attempts)-1].Metrics.Score,
		AvgScore:  s.AvgScore,
	}
}

func parseExports(s string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch part {
		case "":
			continue
		case "json", "csv", "wav":
			out[part] = true
		default:
			return nil, fmt.Errorf("unknown export %q (json, csv, wav)", part)
		}
	}
	return out, nil
}

// writeArtifacts stores the requested attempt files as <dir>/<id>.<ext>.
// The wav artifact is only available when audio was captured.
func writeArtifacts(w io.Writer, exports map[string]bool, dir string, a model.Attempt, samples *audio.Buffer) error {
	if len(exports) == 0 {
		return nil
	}
	if dir == "" {
		dir = config.DefaultAttemptDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create attempt directory: %w", err)
	}
	base := filepath.Join(dir, a.ID)
	var written []string
	if exports["json"] {
		if err := writeFile(base+".json", func(f io.Writer) error { return stats.WriteAttemptJSON(f, a) }); err != nil {
			return err
		}
		written = append(written, base+".json")
	}
	if exports["csv"] {
		if err := writeFile(base+".csv", func(f io.Writer) error { return stats.WritePairsCSV(f, a.Pairs) }); err != nil {
			return err
		}
		written = append(written, base+".csv")
	}
	if exports["wav"] {
		if samples == nil || len(samples.Samples) == 0 {
			logErrln("no captured audio; skipping wav export")
		} else {
			if err := audio.SaveWAV(base+".wav", *samples); err != nil {
				return err
			}
			written = append(written, base+".wav")
		}
	}
	for _, path := range written {
		if _, err := fmt.Fprintf(w, "Wrote %s\n", path); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return write(f)
}

func notifyScore(log *logrus.Logger, a model.Attempt) {
	body := fmt.Sprintf("%s: score %.1f, MAE %.1f ms", a.PresetName, a.Metrics.Score, a.Metrics.MeanAbsError*1000)
	if a.Metrics.ZeroConfidence {
		body = fmt.Sprintf("%s: no taps detected", a.PresetName)
	}
	if err := beeep.Notify("tapas", body, ""); err != nil {
		log.WithError(err).Debug("desktop notification failed")
	}
}
