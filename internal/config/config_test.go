package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadRequiresDB(t *testing.T) {
	path := writeTempConfig(t, `{"paths":{}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when paths.db is missing")
	}
}

func TestLoadAppliesAnalyzerDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		"paths": {"db": "/tmp/music.db"},
		"essentia": {"enabled": true}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Essentia.Enabled {
		t.Fatal("expected essentia.enabled to be true")
	}
	if cfg.Essentia.ExtractLen != 120 {
		t.Fatalf("expected default extractlen to survive partial override, got %d", cfg.Essentia.ExtractLen)
	}
	if cfg.MinDuration != 30 || cfg.MaxDuration != 1800 {
		t.Fatalf("expected default duration window, got [%d,%d]", cfg.MinDuration, cfg.MaxDuration)
	}
	if cfg.Port != 11000 {
		t.Fatalf("expected default port 11000, got %d", cfg.Port)
	}
}

func TestGenreGroupsFor(t *testing.T) {
	cfg := Config{Genres: [][]string{{"Rock", "Pop"}, {"Classical"}}}

	groups := cfg.GenreGroupsFor([]string{"Rock"})
	if len(groups) != 1 || groups[0][0] != "Rock" {
		t.Fatalf("unexpected groups: %v", groups)
	}

	all := cfg.AllGenres()
	if len(all) != 3 {
		t.Fatalf("expected 3 distinct genres, got %v", all)
	}
}
