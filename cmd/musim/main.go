// Package main is the musim entry point: it parses flags, loads
// configuration, and routes to either the analyzer (--analyse) or the
// HTTP server (the default mode).
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/config"
	"github.com/stojg/musim/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		return -1
	}

	log := logging.New("musim")

	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.WithError(err).Error("load config")
		return -1
	}

	if f.test {
		if f.analyse != "" || f.updateDB {
			if reqErr := cfg.RequireLocal(); reqErr != nil {
				log.WithError(reqErr).Error("config test failed")
				return -1
			}
		}
		log.Info("configuration OK")
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if f.analyse != "" || f.updateDB {
		return runAnalyzeMode(ctx, cfg, f, log)
	}

	if err := runServe(ctx, cfg, log); err != nil {
		log.WithError(err).Error("serve")
		return -1
	}
	return 0
}

// runAnalyzeMode runs the analysis pipeline once, then, if --repeat was
// given, watches the library root and re-runs on every change, debounced
// so a burst of filesystem events collapses into a single re-scan.
func runAnalyzeMode(ctx context.Context, cfg config.Config, f cliFlags, log *logrus.Entry) int {
	if err := cfg.RequireLocal(); err != nil {
		log.WithError(err).Error("analyze")
		return -1
	}

	cat, err := catalog.Open(cfg.Paths.DB)
	if err != nil {
		log.WithError(err).Error("open catalog")
		return -1
	}
	defer cat.Close()

	if f.updateDB {
		log.Info("catalog opened; similarity indexes are built at server start")
		// Similarity indexes live entirely in the server process, so
		// --update-db does nothing here beyond validating that the
		// catalog opens cleanly.
		return 0
	}

	if err := runAnalyze(ctx, cfg, cat, f, log); err != nil {
		log.WithError(err).Error("analyze")
		return -1
	}

	if !f.repeat {
		return 0
	}

	if err := watchAndReanalyze(ctx, cfg, cat, f, log); err != nil {
		log.WithError(err).Error("watch")
		return -1
	}
	return 0
}

// watchAndReanalyze watches the library root for filesystem events and
// re-runs the pipeline after a quiet period, collapsing bursts of
// events (a multi-file copy, a tag editor's batch save) into one pass.
func watchAndReanalyze(ctx context.Context, cfg config.Config, cat *catalog.Catalog, f cliFlags, log *logrus.Entry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, cfg.Paths.Local); err != nil {
		return err
	}

	const debounce = 10 * time.Second
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case pending <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(watchErr).Warn("watch error")
		case <-pending:
			log.Info("library changed, re-analyzing")
			if err := runAnalyze(ctx, cfg, cat, f, log); err != nil {
				log.WithError(err).Error("re-analyze")
			}
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
