package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/hako/durafmt"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/verte-zerg/tapas/internal/audio"
	"github.com/verte-zerg/tapas/internal/emit"
	"github.com/verte-zerg/tapas/internal/logger"
	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/preset"
	"github.com/verte-zerg/tapas/internal/scheduler"
	"github.com/verte-zerg/tapas/internal/timeline"
)

// defaultMetronomeMinutes bounds a metronome started without --bars or --minutes.
const defaultMetronomeMinutes = 60

var (
	metronomeBPM        float64
	metronomeMeter      string
	metronomeSubdiv     int
	metronomeSwing      float64
	metronomeCountIn    int
	metronomeBars       int
	metronomeMinutes    float64
	metronomeBeep       bool
	metronomeSpeaker    bool
	metronomeAccent     string
	metronomePreset     string
	metronomeExport     string
	metronomeNoPlay     bool
	metronomeSampleRate int
)

func newMetronomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metronome",
		Short: "Play a click track",
		Example: "  tapas metronome --bpm 120 --meter 7/8 --bars 8\n" +
			"  tapas metronome --bpm 90 --subdiv 2 --swing 0.66 --beep\n" +
			"  tapas metronome --preset shuffle --export shuffle.wav --no-play",
		Args: cobra.NoArgs,
		RunE: runMetronomeCmd,
	}
	cmd.Flags().Float64Var(&metronomeBPM, "bpm", 0, "tempo in BPM (required unless --preset)")
	cmd.Flags().StringVar(&metronomeMeter, "meter", "4/4", "time signature, e.g. 4/4, 7/8, 6/8")
	cmd.Flags().IntVar(&metronomeSubdiv, "subdiv", 1, "subdivisions per beat (1,2,3,4,6)")
	cmd.Flags().Float64Var(&metronomeSwing, "swing", 0, "swing ratio for subdiv 2, e.g. 0.66")
	cmd.Flags().IntVar(&metronomeCountIn, "count-in", 0, "count-in bars before start")
	cmd.Flags().IntVar(&metronomeBars, "bars", 0, "number of bars")
	cmd.Flags().Float64Var(&metronomeMinutes, "minutes", 0, "duration in minutes")
	cmd.Flags().BoolVar(&metronomeBeep, "beep", false, "play OS beeps")
	cmd.Flags().BoolVar(&metronomeSpeaker, "speaker", false, "play clicks through the audio output")
	cmd.Flags().StringVar(&metronomeAccent, "accent", "", "accent pattern, e.g. 1,0,0,0")
	cmd.Flags().StringVar(&metronomePreset, "preset", "", "start from a stored preset")
	cmd.Flags().StringVar(&metronomeExport, "export", "", "write the timeline to FILE (.json, .csv or .wav)")
	cmd.Flags().BoolVar(&metronomeNoPlay, "no-play", false, "only export, do not play")
	cmd.Flags().IntVar(&metronomeSampleRate, "sample-rate", defaultSampleRate, "sample rate for speaker and wav export")
	cmd.MarkFlagsMutuallyExclusive("bars", "minutes")
	return cmd
}

func runMetronomeCmd(cmd *cobra.Command, _ []string) error {
	params, err := metronomeParams(cmd)
	if err != nil {
		return err
	}
	if metronomeNoPlay && metronomeExport == "" {
		return fmt.Errorf("--no-play needs --export")
	}
	tl, err := timeline.Generate(params)
	if err != nil {
		return err
	}
	if metronomeExport != "" {
		if err := exportTimeline(metronomeExport, tl, metronomeSampleRate); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", metronomeExport); err != nil {
			return err
		}
	}
	if metronomeNoPlay {
		return nil
	}

	st, err := loadSettings()
	if err != nil {
		return err
	}
	sounds, err := soundEmitters(liveOptions{beep: metronomeBeep, speaker: metronomeSpeaker, sampleRate: metronomeSampleRate})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "%.1f BPM  %s  %d clicks  %s\n", tl.Tempo, preset.FormatMeter(tl.Meter),
		len(tl.Events), durafmt.Parse(secondsDuration(tl.Duration)).LimitFirstN(2)); err != nil {
		return err
	}

	log := logger.GetProjectLogger()
	sched := scheduler.New(clock.RealClock{}, st.scheduler, log)
	report, err := sched.Run(cmd.Context(), tl, append(emit.Multi{emit.NewTerminal(out)}, sounds...))
	if err != nil {
		return err
	}
	return renderPlaybackSummary(out, report)
}

// metronomeParams merges preset values with explicit flags.
func metronomeParams(cmd *cobra.Command) (timeline.Params, error) {
	var params timeline.Params
	if metronomePreset != "" {
		p, err := presetStore().Load(metronomePreset)
		if err != nil {
			return params, err
		}
		params = timeline.FromPreset(p)
	} else {
		if !cmd.Flags().Changed("bpm") {
			return params, fmt.Errorf("--bpm is required without --preset")
		}
		params.Subdivision = metronomeSubdiv
		params.Meter = model.Meter{Beats: 4, Unit: 4}
	}
	if cmd.Flags().Changed("bpm") {
		params.Tempo = metronomeBPM
	}
	if metronomePreset == "" || cmd.Flags().Changed("meter") {
		m, err := preset.ParseMeter(metronomeMeter)
		if err != nil {
			return params, err
		}
		params.Meter = m
	}
	if cmd.Flags().Changed("subdiv") {
		params.Subdivision = metronomeSubdiv
	}
	if cmd.Flags().Changed("swing") {
		params.Swing = metronomeSwing
	}
	if cmd.Flags().Changed("count-in") {
		params.CountIn = metronomeCountIn
	}
	if cmd.Flags().Changed("accent") {
		accent, err := preset.ParseAccent(metronomeAccent)
		if err != nil {
			return params, err
		}
		params.Accent = accent
	}
	overrideParams(cmd, &params, metronomeBPM, metronomeBars, metronomeMinutes)
	if params.Bars == 0 && params.Minutes == 0 {
		params.Minutes = defaultMetronomeMinutes
	}
	return params, nil
}

func exportTimeline(path string, tl model.Timeline, sampleRate int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return writeFile(path, func(w io.Writer) error { return timeline.WriteJSON(w, tl) })
	case ".csv":
		return writeFile(path, func(w io.Writer) error { return timeline.WriteCSV(w, tl) })
	case ".wav":
		return audio.SaveWAV(path, audio.RenderClicks(tl, sampleRate))
	default:
		return fmt.Errorf("unknown export format %q (json, csv, wav)", filepath.Ext(path))
	}
}

func renderPlaybackSummary(w io.Writer, r scheduler.Report) error {
	state := "Played"
	if r.Cancelled {
		state = "Stopped after"
	}
	line := fmt.Sprintf("%s %d clicks", state, len(r.Fired))
	if r.Late > 0 {
		line += fmt.Sprintf(", %d late (worst %d ms)", r.Late, r.MaxLateness().Milliseconds())
	}
	if r.Failed > 0 {
		line += fmt.Sprintf(", %d failed", r.Failed)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
