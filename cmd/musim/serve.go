package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/config"
	"github.com/stojg/musim/internal/fusion"
	"github.com/stojg/musim/internal/httpapi"
	"github.com/stojg/musim/internal/recommend"
	"github.com/stojg/musim/internal/similarity"
)

// resolveSimAlgo applies §7's fallback order: the configured algorithm,
// falling back through bliss -> musly -> essentia to the first analyzer
// that actually has data, since simalgo names an analyzer kind that may
// not have been run yet.
func resolveSimAlgo(cfg config.Config, idx *similarity.Indexes) (string, error) {
	has := map[string]bool{
		"musly":    idx.Timbre != nil && idx.Timbre.Len() > 0,
		"bliss":    idx.Descriptor != nil,
		"essentia": idx.Attribute != nil,
	}
	order := []string{cfg.SimAlgo, "bliss", "musly", "essentia"}
	for _, name := range order {
		if has[name] {
			return name, nil
		}
	}
	return "", fmt.Errorf("serve: no similarity index is available for any analyzer")
}

// buildFusionPlan turns the configured mixed-mode weights and the built
// indexes into a fusion.Plan, skipping any analyzer with no index.
func buildFusionPlan(mode fusion.Mode, cfg config.Config, idx *similarity.Indexes) *fusion.Plan {
	var weights []fusion.Weight
	if idx.Timbre != nil {
		weights = append(weights, fusion.Weight{AnalyzerID: "musly", Percent: cfg.Mixed.Musly, Index: idx.Timbre})
	}
	if idx.Attribute != nil {
		weights = append(weights, fusion.Weight{AnalyzerID: "essentia", Percent: cfg.Mixed.Essentia, Index: idx.Attribute})
	}
	if idx.Descriptor != nil {
		weights = append(weights, fusion.Weight{AnalyzerID: "bliss", Percent: cfg.Mixed.Bliss, Index: idx.Descriptor})
	}
	return fusion.NewPlan(mode, weights)
}

// simProviderFor picks the single index matching name, or nil if it
// isn't available; buildSimProvider falls back to a fusion.Plan only
// when the configured algorithm actually names a mixed mode.
func simProviderFor(name string, idx *similarity.Indexes) recommend.SimilarityProvider {
	switch name {
	case "musly":
		if idx.Timbre != nil {
			return idx.Timbre
		}
	case "bliss":
		return idx.Descriptor
	case "essentia":
		return idx.Attribute
	}
	return nil
}

func buildSimProvider(cfg config.Config, idx *similarity.Indexes) (recommend.SimilarityProvider, string, error) {
	switch cfg.SimAlgo {
	case string(fusion.Simplemixed), string(fusion.KDTreeMixed):
		plan := buildFusionPlan(fusion.Mode(cfg.SimAlgo), cfg, idx)
		if len(plan.Weights) == 0 {
			return nil, "", fmt.Errorf("serve: simalgo %q configured but no analyzer index is available", cfg.SimAlgo)
		}
		return plan, cfg.SimAlgo, nil
	default:
		name, err := resolveSimAlgo(cfg, idx)
		if err != nil {
			return nil, "", err
		}
		return simProviderFor(name, idx), name, nil
	}
}

func featureSummary(idx *similarity.Indexes) string {
	var have []string
	if idx.Timbre != nil && idx.Timbre.Len() > 0 {
		have = append(have, "musly")
	}
	if idx.Attribute != nil {
		have = append(have, "essentia")
	}
	if idx.Descriptor != nil {
		have = append(have, "bliss")
	}
	return strings.Join(have, ",")
}

// runServe opens the catalog read-only, builds every enabled similarity
// index once, and serves the HTTP API until ctx is canceled.
func runServe(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	cat, err := catalog.OpenReadOnly(cfg.Paths.DB)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	tracks, err := cat.ScanOrdered(ctx)
	if err != nil {
		return fmt.Errorf("scan catalog: %w", err)
	}
	log.WithField("tracks", len(tracks)).Info("loaded catalog")

	jukeboxPath := ""
	if cfg.Paths.Cache != "" {
		jukeboxPath = filepath.Join(cfg.Paths.Cache, "jukebox.db")
	}

	idx, err := similarity.BuildAll(ctx, tracks, cfg.Bliss.Enabled, cfg.Essentia.Enabled, cfg.Musly.Enabled, jukeboxPath)
	if err != nil {
		return fmt.Errorf("build indexes: %w", err)
	}

	simProvider, resolved, err := buildSimProvider(cfg, idx)
	if err != nil {
		return err
	}
	log.WithField("simalgo", resolved).Info("similarity index ready")

	engine := recommend.New(cat, simProvider, len(tracks), recommend.DefaultDefaults())

	srv := httpapi.New(engine, cat, cfg, featureSummary(idx), log.WithField("component", "httpapi"))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpSrv.Addr).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
