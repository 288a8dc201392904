// Package preset stores named practice patterns as TOML files.
package preset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gruntwork-io/go-commons/files"

	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/timeline"
)

const fileExt = ".toml"

// ErrNotFound is returned when a preset name has no file.
var ErrNotFound = errors.New("preset not found")

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Store loads and saves presets.
type Store interface {
	Load(name string) (model.Preset, error)
	Save(p model.Preset, overwrite bool) error
	List() ([]string, error)
	Exists(name string) bool
}

// file is the on-disk layout.
type file struct {
	Name        string    `toml:"name"`
	Tempo       float64   `toml:"tempo"`
	Meter       string    `toml:"meter"`
	Bars        int       `toml:"bars"`
	Subdivision int       `toml:"subdivision"`
	Swing       float64   `toml:"swing,omitempty"`
	Accent      []float64 `toml:"accent,omitempty"`
	CountIn     int       `toml:"count-in,omitempty"`
	Notes       []string  `toml:"notes,omitempty"`
}

// Dir is a Store over one directory.
type Dir struct {
	path string
}

// NewDir returns a store rooted at path. The directory is created on first save.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the file backing name.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.path, name+fileExt)
}

// Exists reports whether a preset file exists.
func (d *Dir) Exists(name string) bool {
	return ValidName(name) == nil && files.FileExists(d.Path(name))
}

// Load reads and validates a preset.
func (d *Dir) Load(name string) (model.Preset, error) {
	if err := ValidName(name); err != nil {
		return model.Preset{}, err
	}
	path := d.Path(name)
	if !files.FileExists(path) {
		return model.Preset{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return model.Preset{}, fmt.Errorf("failed to decode preset %q: %w", name, err)
	}
	p, err := fromFile(f)
	if err != nil {
		return model.Preset{}, fmt.Errorf("preset %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// Save validates and writes p. Existing presets are only replaced when overwrite is set.
func (d *Dir) Save(p model.Preset, overwrite bool) error {
	if err := ValidName(p.Name); err != nil {
		return err
	}
	if err := Validate(p); err != nil {
		return err
	}
	path := d.Path(p.Name)
	if !overwrite && files.FileExists(path) {
		return fmt.Errorf("preset already exists: %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(toFile(p)); err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	tmp, err := os.CreateTemp(d.path, "preset-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp preset: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close preset: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	return nil
}

// List returns preset names in lexical order. A missing directory is an empty list.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), fileExt)
		if ValidName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ValidName checks that name is usable as a file name.
func ValidName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("preset name %q must be letters, digits, '-' or '_': %w", name, model.ErrInvalidParameter)
	}
	return nil
}

// Validate checks p generates a timeline.
func Validate(p model.Preset) error {
	return timeline.FromPreset(p).Validate()
}

// ParseMeter parses "N/D".
func ParseMeter(s string) (model.Meter, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return model.Meter{}, fmt.Errorf("meter %q must look like 7/8: %w", s, model.ErrInvalidParameter)
	}
	beats, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	unit, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || beats <= 0 || unit <= 0 {
		return model.Meter{}, fmt.Errorf("meter %q must be two positive integers: %w", s, model.ErrInvalidParameter)
	}
	return model.Meter{Beats: beats, Unit: unit}, nil
}

// FormatMeter renders a meter as "N/D".
func FormatMeter(m model.Meter) string {
	return fmt.Sprintf("%d/%d", m.Beats, m.Unit)
}

// ParseAccent parses a pattern such as "1,0,0.5,0" or the shorthand "X.x." where
// X is a full accent, x a half accent and . none.
func ParseAccent(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.Trim(s, "Xx.") == "" {
		out := make([]float64, 0, len(s))
		for _, r := range s {
			switch r {
			case 'X':
				out = append(out, 1)
			case 'x':
				out = append(out, 0.5)
			default:
				out = append(out, 0)
			}
		}
		return out, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v < 0 || v > 1 {
			return nil, fmt.Errorf("accent weight %q must be a number in [0,1]: %w", part, model.ErrInvalidParameter)
		}
		out = append(out, v)
	}
	return out, nil
}

func fromFile(f file) (model.Preset, error) {
	meter, err := ParseMeter(f.Meter)
	if err != nil {
		return model.Preset{}, err
	}
	p := model.Preset{
		Name:        f.Name,
		Tempo:       f.Tempo,
		Meter:       meter,
		Bars:        f.Bars,
		Subdivision: f.Subdivision,
		Swing:       f.Swing,
		Accent:      f.Accent,
		CountIn:     f.CountIn,
		Notes:       f.Notes,
	}
	if p.Subdivision == 0 {
		p.Subdivision = 1
	}
	if err := Validate(p); err != nil {
		return model.Preset{}, err
	}
	return p, nil
}

func toFile(p model.Preset) file {
	return file{
		Name:        p.Name,
		Tempo:       p.Tempo,
		Meter:       FormatMeter(p.Meter),
		Bars:        p.Bars,
		Subdivision: p.Subdivision,
		Swing:       p.Swing,
		Accent:      p.Accent,
		CountIn:     p.CountIn,
		Notes:       p.Notes,
	}
}
