package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hako/durafmt"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/preset"
	"github.com/verte-zerg/tapas/internal/timeline"
)

var (
	presetName        string
	presetTempo       float64
	presetMeter       string
	presetBars        int
	presetSubdivision int
	presetSwing       float64
	presetAccent      string
	presetCountIn     int
	presetNotes       []string
	presetForce       bool
	presetInteractive bool
)

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage practice presets",
	}
	cmd.AddCommand(newPresetNewCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored presets",
		Args:  cobra.NoArgs,
		RunE:  runPresetListCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print a preset file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPresetShowCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <name>",
		Short: "Check that a preset generates a timeline",
		Args:  cobra.ExactArgs(1),
		RunE:  runPresetValidateCmd,
	})
	return cmd
}

func newPresetNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a preset",
		Args:  cobra.NoArgs,
		RunE:  runPresetNewCmd,
	}
	cmd.Flags().StringVar(&presetName, "name", "", "preset name")
	cmd.Flags().Float64Var(&presetTempo, "tempo", 100, "tempo in BPM")
	cmd.Flags().StringVar(&presetMeter, "meter", "4/4", "time signature")
	cmd.Flags().IntVar(&presetBars, "bars", 4, "bars per run")
	cmd.Flags().IntVar(&presetSubdivision, "subdivision", 4, "slots per beat (1,2,3,4,6)")
	cmd.Flags().Float64Var(&presetSwing, "swing", 0, "swing ratio for subdivision 2")
	cmd.Flags().StringVar(&presetAccent, "accent", "", "accent pattern, e.g. 1,0,0.5,0 or X.x.")
	cmd.Flags().IntVar(&presetCountIn, "count-in", 1, "count-in bars")
	cmd.Flags().StringArrayVar(&presetNotes, "note", nil, "note shown while practicing (repeatable)")
	cmd.Flags().BoolVar(&presetForce, "force", false, "overwrite an existing preset")
	cmd.Flags().BoolVarP(&presetInteractive, "interactive", "i", false, "prompt for each field")
	return cmd
}

func runPresetNewCmd(cmd *cobra.Command, _ []string) error {
	if presetInteractive {
		if err := promptPreset(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	if presetName == "" {
		return fmt.Errorf("--name is required")
	}
	meter, err := preset.ParseMeter(presetMeter)
	if err != nil {
		return err
	}
	accent, err := preset.ParseAccent(presetAccent)
	if err != nil {
		return err
	}
	p := model.Preset{
		Name:        presetName,
		Tempo:       presetTempo,
		Meter:       meter,
		Bars:        presetBars,
		Subdivision: presetSubdivision,
		Swing:       presetSwing,
		Accent:      accent,
		CountIn:     presetCountIn,
		Notes:       presetNotes,
	}
	store := presetStore()
	if err := store.Save(p, presetForce); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", store.Path(p.Name))
	return err
}

// promptPreset asks for each field on in; an empty answer keeps the current value.
func promptPreset(in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	ask := func(label, current string) (string, error) {
		if _, err := fmt.Fprintf(out, "%s [%s]: ", label, current); err != nil {
			return "", err
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", fmt.Errorf("failed to read answer: %w", err)
			}
			return current, nil
		}
		if v := strings.TrimSpace(sc.Text()); v != "" {
			return v, nil
		}
		return current, nil
	}
	askFloat := func(label string, target *float64) error {
		v, err := ask(label, strconv.FormatFloat(*target, 'f', -1, 64))
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number: %w", label, v, model.ErrInvalidParameter)
		}
		*target = f
		return nil
	}
	askInt := func(label string, target *int) error {
		v, err := ask(label, strconv.Itoa(*target))
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer: %w", label, v, model.ErrInvalidParameter)
		}
		*target = n
		return nil
	}

	var err error
	if presetName, err = ask("Name", presetName); err != nil {
		return err
	}
	if err := askFloat("Tempo (BPM)", &presetTempo); err != nil {
		return err
	}
	if presetMeter, err = ask("Meter", presetMeter); err != nil {
		return err
	}
	if err := askInt("Bars", &presetBars); err != nil {
		return err
	}
	if err := askInt("Subdivision", &presetSubdivision); err != nil {
		return err
	}
	if presetSubdivision == 2 {
		if err := askFloat("Swing", &presetSwing); err != nil {
			return err
		}
	}
	if presetAccent, err = ask("Accent", presetAccent); err != nil {
		return err
	}
	return askInt("Count-in bars", &presetCountIn)
}

func runPresetListCmd(cmd *cobra.Command, _ []string) error {
	names, err := presetStore().List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		_, err := fmt.Fprintln(out, "No presets yet. Create one with: tapas preset new --name NAME")
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	return nil
}

func runPresetShowCmd(cmd *cobra.Command, args []string) error {
	store := presetStore()
	if !store.Exists(args[0]) {
		return fmt.Errorf("%q: %w", args[0], preset.ErrNotFound)
	}
	data, err := os.ReadFile(store.Path(args[0]))
	if err != nil {
		return fmt.Errorf("failed to read preset: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runPresetValidateCmd(cmd *cobra.Command, args []string) error {
	p, err := presetStore().Load(args[0])
	if errors.Is(err, preset.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", args[0], err)
	}
	tl, err := timeline.Generate(timeline.FromPreset(p))
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", args[0], err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s ok: %d clicks (%d scored), %s\n",
		p.Name, len(tl.Events), len(tl.ScoredEvents()), durafmt.Parse(secondsDuration(tl.Duration)).LimitFirstN(2))
	return err
}
