// Package config loads and normalizes the JSON configuration file
// described in the external interfaces section: paths, server options,
// per-analyzer tuning knobs, genre groups and the mixed-mode fusion
// weights.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// AnalyzerConfig is the tuning subtree shared by the three concrete
// analyzers (musly/timbre, essentia/attribute, bliss/descriptor). Not
// every field applies to every analyzer kind; unused fields are ignored.
type AnalyzerConfig struct {
	Enabled            bool    `json:"enabled"`
	ExtractLen         int     `json:"extractlen"`
	ExtractStart       int     `json:"extractstart"`
	StyleTracks        int     `json:"styletracks"`
	StyleTracksMethod  string  `json:"styletracksmethod"`
	BPM                int     `json:"bpm"`
	FilterKey          bool    `json:"filterkey"`
	FilterAttrib       bool    `json:"filterattrib"`
	HighLevel          bool    `json:"highlevel"`
	FilterAttribLim    float64 `json:"filterattrib_lim"`
	FilterAttribCand   float64 `json:"filterattrib_cand"`
	FilterAttribCount  int     `json:"filterattrib_count"`
	AttrMixYes         float64 `json:"attrmix_yes"`
	AttrMixNo          float64 `json:"attrmix_no"`
}

// DefaultAnalyzerConfig returns the tuning defaults listed in the
// configuration reference.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		ExtractLen:        120,
		ExtractStart:      -210,
		StyleTracks:       1000,
		StyleTracksMethod: "genres",
		BPM:               20,
		FilterKey:         true,
		FilterAttrib:      true,
		HighLevel:         false,
		FilterAttribLim:   0.2,
		FilterAttribCand:  0.4,
		FilterAttribCount: 4,
		AttrMixYes:        0.6,
		AttrMixNo:         0.4,
	}
}

// Paths collects every filesystem location the config file can specify.
type Paths struct {
	DB    string `json:"db"`
	Local string `json:"local"`
	LMS   string `json:"lms"`
	Cache string `json:"cache"`
	Tmp   string `json:"tmp"`
	LMSDB string `json:"lmsdb"`
}

// Normalize expands $HOME/%USERPROFILE%/%TMP%/~ and ensures every
// directory path ends in the OS separator.
func (p *Paths) Normalize() {
	p.DB = expandPath(p.DB)
	p.Local = dirify(expandPath(p.Local))
	p.LMS = dirify(expandPath(p.LMS))
	p.Cache = dirify(expandPath(p.Cache))
	p.Tmp = dirify(expandPath(p.Tmp))
	p.LMSDB = expandPath(p.LMSDB)
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	home, _ := os.UserHomeDir()
	replacer := strings.NewReplacer(
		"$HOME", home,
		"%USERPROFILE%", home,
		"%TMP%", os.TempDir(),
	)
	p = replacer.Replace(p)
	if strings.HasPrefix(p, "~") {
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

func dirify(p string) string {
	if p == "" {
		return p
	}
	if !strings.HasSuffix(p, string(os.PathSeparator)) {
		p += string(os.PathSeparator)
	}
	return p
}

// MixedWeights gives each enabled analyzer an integer percentage weight
// for the "mixed" fusion mode.
type MixedWeights struct {
	Musly    int `json:"musly"`
	Essentia int `json:"essentia"`
	Bliss    int `json:"bliss"`
}

// Config collects the JSON-level configuration into the shape the
// rest of the program consumes.
type Config struct {
	Paths Paths `json:"paths"`

	Port    int    `json:"port"`
	Host    string `json:"host"`
	Threads int    `json:"threads"`

	SimAlgo string `json:"simalgo"`

	Musly    AnalyzerConfig `json:"musly"`
	Essentia AnalyzerConfig `json:"essentia"`
	Bliss    AnalyzerConfig `json:"bliss"`
	Mixed    MixedWeights   `json:"mixed"`

	Genres        [][]string `json:"genres"`
	ExcludeGenres []string   `json:"excludegenres"`
	IgnoreGenre   []string   `json:"ignoregenre"`

	MinDuration int `json:"minduration"`
	MaxDuration int `json:"maxduration"`

	Normalize *NormalizeConfig `json:"normalize,omitempty"`
}

// NormalizeConfig lists parenthetical suffixes and "featuring" tokens
// for album/title/artist strings. The lists are loaded and kept in
// Config; no catalog or recommendation code applies them.
type NormalizeConfig struct {
	Suffixes   []string `json:"suffixes"`
	Featuring  []string `json:"featuring"`
}

// Default returns a Config with every documented default applied. It is
// the starting point Load merges the file's contents onto.
func Default() Config {
	return Config{
		Port:        11000,
		Host:        "0.0.0.0",
		Threads:     runtime.NumCPU(),
		SimAlgo:     "musly",
		Musly:       DefaultAnalyzerConfig(),
		Essentia:    DefaultAnalyzerConfig(),
		Bliss:       DefaultAnalyzerConfig(),
		MinDuration: 30,
		MaxDuration: 1800,
	}
}

// Load reads and validates the configuration file at path. Paths are
// normalized in place. Required keys: paths.db always; paths.local is
// additionally required when analysis (not just serving) is requested,
// which callers check separately since Load itself is used by both.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// Decode onto the defaults so unspecified analyzer subtrees keep
	// their documented tuning values instead of zeroing out.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Paths.DB == "" {
		return Config{}, fmt.Errorf("config %s: paths.db is required", path)
	}

	cfg.Paths.Normalize()

	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}

	return cfg, nil
}

// RequireLocal validates that paths.local was supplied, for commands
// that analyze the library rather than only serving it.
func (c *Config) RequireLocal() error {
	if c.Paths.Local == "" {
		return fmt.Errorf("config: paths.local is required for analysis")
	}
	return nil
}

// AllGenres returns the union of every genre mentioned across the
// configured genre groups.
func (c *Config) AllGenres() []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range c.Genres {
		for _, g := range group {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out
}

// GenreGroupsFor returns every configured genre group that intersects
// any of the given genres.
func (c *Config) GenreGroupsFor(genres []string) [][]string {
	want := map[string]bool{}
	for _, g := range genres {
		want[g] = true
	}
	var out [][]string
	for _, group := range c.Genres {
		for _, g := range group {
			if want[g] {
				out = append(out, group)
				break
			}
		}
	}
	return out
}
