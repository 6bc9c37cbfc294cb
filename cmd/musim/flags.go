package main

import (
	"flag"
	"strings"
)

// cliFlags mirrors the analyzer/server launcher's flag surface.
type cliFlags struct {
	configPath string
	analyse    string // literal path, or "m" for the configured library root
	metaOnly   bool
	keepOld    bool
	force      string // letters from {m, e, b}
	dryRun     bool
	maxTracks  int
	test       bool
	repeat     bool
	updateDB   bool
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("musim", flag.ContinueOnError)
	var f cliFlags
	fs.StringVar(&f.configPath, "config", "", "path to the JSON configuration file")
	fs.StringVar(&f.analyse, "analyse", "", "path to analyze, or 'm' for the configured library root")
	fs.BoolVar(&f.metaOnly, "meta-only", false, "only read and store tags, skip all analyzers")
	fs.BoolVar(&f.keepOld, "keep-old", false, "skip forget_missing before analysis")
	fs.StringVar(&f.force, "force", "", "force re-analysis for these analyzer letters (subset of 'meb')")
	fs.BoolVar(&f.dryRun, "dry-run", false, "run the pipeline without writing to the catalog")
	fs.IntVar(&f.maxTracks, "max-tracks", 0, "cap the number of files analyzed (0 = unlimited)")
	fs.BoolVar(&f.test, "test", false, "validate configuration and exit without analyzing or serving")
	fs.BoolVar(&f.repeat, "repeat", false, "after analysis, watch the library root and re-run on change")
	fs.BoolVar(&f.updateDB, "update-db", false, "check that the existing catalog opens and exit without analyzing (similarity indexes are built at server start)")
	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return f, nil
}

func (f cliFlags) forceLetters() (timbre, attribute, descriptor bool) {
	return strings.ContainsRune(f.force, 'm'),
		strings.ContainsRune(f.force, 'e'),
		strings.ContainsRune(f.force, 'b')
}
