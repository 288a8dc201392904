package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tapas/internal/align"
	"github.com/verte-zerg/tapas/internal/audio"
	"github.com/verte-zerg/tapas/internal/logger"
	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/onset"
	"github.com/verte-zerg/tapas/internal/timeline"
)

const (
	reportSummary  = "summary"
	reportDetailed = "detailed"
)

var (
	analyzePreset   string
	analyzeBPM      float64
	analyzeBars     int
	analyzeMinutes  float64
	analyzeDevice   string
	analyzeOffsetMs float64
	analyzeReport   string
	analyzeJobs     int
	analyzeNoSave   bool
	analyzeExport   string
	analyzeOut      string
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze --preset NAME FILE.wav...",
		Short: "Score recorded takes against a preset",
		Long: "Detects taps in each WAV file and scores them against the preset timeline.\n" +
			"The recording is assumed to start at the first click (count-in included);\n" +
			"use --offset-ms when it starts earlier.",
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyzeCmd,
	}
	cmd.Flags().StringVar(&analyzePreset, "preset", "", "preset the takes were played against")
	cmd.Flags().Float64Var(&analyzeBPM, "bpm", 0, "override preset tempo")
	cmd.Flags().IntVar(&analyzeBars, "bars", 0, "override preset bars")
	cmd.Flags().Float64Var(&analyzeMinutes, "minutes", 0, "score N minutes instead of bars")
	cmd.Flags().StringVar(&analyzeDevice, "device", "", "apply the stored latency of this device")
	cmd.Flags().Float64Var(&analyzeOffsetMs, "offset-ms", 0, "time of the first click in the recording")
	cmd.Flags().StringVar(&analyzeReport, "report", reportSummary, "summary or detailed")
	cmd.Flags().IntVarP(&analyzeJobs, "jobs", "j", defaultJobs, "files analyzed in parallel")
	cmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "do not store attempts")
	cmd.Flags().StringVar(&analyzeExport, "export", "", "comma list of artifacts per take: json,csv")
	cmd.Flags().StringVar(&analyzeOut, "out", "", "artifact directory (default: $XDG_DATA_HOME/tapas/attempts)")
	cmd.MarkFlagsMutuallyExclusive("bars", "minutes")
	if err := cmd.MarkFlagRequired("preset"); err != nil {
		logErrf("failed to mark --preset required: %v\n", err)
	}
	return cmd
}

// analysis is the outcome for one file.
type analysis struct {
	path    string
	attempt model.Attempt
	err     error
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	if analyzeReport != reportSummary && analyzeReport != reportDetailed {
		return fmt.Errorf("--report must be %q or %q", reportSummary, reportDetailed)
	}
	if analyzeJobs < 1 {
		return fmt.Errorf("--jobs must be >= 1")
	}
	exports, err := parseExports(analyzeExport)
	if err != nil {
		return err
	}
	if exports["wav"] {
		return fmt.Errorf("wav export is only available for live captures")
	}
	st, err := loadSettings()
	if err != nil {
		return err
	}
	p, err := presetStore().Load(analyzePreset)
	if err != nil {
		return err
	}
	params := timeline.FromPreset(p)
	overrideParams(cmd, &params, analyzeBPM, analyzeBars, analyzeMinutes)
	tl, err := timeline.Generate(params)
	if err != nil {
		return err
	}
	det, err := onset.New(st.detector)
	if err != nil {
		return err
	}

	db, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := cmd.Context()
	var latency time.Duration
	if analyzeDevice != "" {
		var ok bool
		latency, ok, err = db.LoadLatency(ctx, analyzeDevice)
		if err != nil {
			return fmt.Errorf("failed to load latency: %w", err)
		}
		if !ok {
			return fmt.Errorf("device %q is not calibrated (run: tapas calibrate --device %s)", analyzeDevice, analyzeDevice)
		}
	}

	results := analyzeFiles(ctx, args, analyzeJobs, func(path string) (model.Attempt, error) {
		return analyzeFile(path, tl, det, latency, st.scoring, p.Name)
	})

	out := cmd.OutOrStdout()
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.path, r.err))
			continue
		}
		if !analyzeNoSave {
			if err := db.InsertAttempt(ctx, r.attempt); err != nil {
				errs = append(errs, fmt.Errorf("%s: failed to save attempt: %w", r.path, err))
				continue
			}
		}
		if err := renderAnalysis(out, tl, r); err != nil {
			return err
		}
		if err := writeArtifacts(out, exports, analyzeOut, r.attempt, nil); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.path, err))
		}
	}
	return errors.Join(errs...)
}

// analyzeFiles runs fn over paths with at most jobs in flight. Results keep the
// order of paths.
func analyzeFiles(ctx context.Context, paths []string, jobs int, fn func(string) (model.Attempt, error)) []analysis {
	results := make([]analysis, len(paths))
	swg := sizedwaitgroup.New(jobs)
	log := logger.GetProjectLogger()
	for i, path := range paths {
		results[i].path = path
		if err := ctx.Err(); err != nil {
			results[i].err = err
			continue
		}
		swg.Add()
		go func(i int, path string) {
			defer swg.Done()
			started := time.Now()
			a, err := fn(path)
			results[i].attempt = a
			results[i].err = err
			log.WithFields(logrus.Fields{
				"file":    path,
				"elapsed": time.Since(started).String(),
			}).Debug("analyzed")
		}(i, path)
	}
	swg.Wait()
	return results
}

func analyzeFile(path string, tl model.Timeline, det *onset.Detector, latency time.Duration, sp align.Params, presetName string) (model.Attempt, error) {
	buf, err := audio.LoadWAV(path)
	if err != nil {
		return model.Attempt{}, err
	}
	onsets, err := det.Detect(buf)
	if err != nil {
		return model.Attempt{}, err
	}
	onsets = shiftOnsets(onsets, analyzeOffsetMs/1000)
	res, err := align.Align(tl, onsets, latency, sp)
	if err != nil {
		return model.Attempt{}, err
	}
	return align.NewAttempt(tl, res, align.AttemptInfo{
		PresetName: presetName,
		Latency:    latency,
		Device:     analyzeDevice,
		Source:     "file:" + filepath.Base(path),
		CreatedAt:  time.Now(),
	}), nil
}

// shiftOnsets moves onsets onto the timeline clock, dropping any before its start.
func shiftOnsets(onsets []model.Onset, offset float64) []model.Onset {
	if offset == 0 {
		return onsets
	}
	out := make([]model.Onset, 0, len(onsets))
	for _, o := range onsets {
		o.Time -= offset
		if o.Time < 0 {
			continue
		}
		out = append(out, o)
	}
	return out
}

func renderAnalysis(w io.Writer, tl model.Timeline, r analysis) error {
	m := r.attempt.Metrics
	if analyzeReport == reportSummary {
		var line string
		if m.ZeroConfidence {
			line = fmt.Sprintf("%s: no taps detected", r.path)
		} else {
			line = fmt.Sprintf("%s: score %.1f, MAE %.1f ms, %d/%d matched, %d extra",
				r.path, m.Score, m.MeanAbsError*1000, m.Matched, r.attempt.TimelineLength, m.Extras)
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
	if _, err := fmt.Fprintf(w, "== %s\n", r.path); err != nil {
		return err
	}
	if err := renderAttemptWithSlots(w, tl, r.attempt); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
