package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stojg/musim/internal/model"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpsertTagsThenFeatures(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.UpsertTags("a/b.mp3", "Title", "Artist", "Album", "", []string{"Rock"}, 180); err != nil {
		t.Fatalf("UpsertTags: %v", err)
	}
	bpm := 120
	key := "8A"
	if err := tx.UpsertFeatures("a/b.mp3", FeatureUpdate{BPM: &bpm, Key: &key}); err != nil {
		t.Fatalf("UpsertFeatures: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tr, err := c.GetByPath(ctx, "a/b.mp3")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if tr == nil {
		t.Fatal("expected row to exist")
	}
	if tr.Title != "Title" || !tr.HasBPM || tr.BPM != 120 || tr.Key != "8A" {
		t.Fatalf("unexpected row: %+v", tr)
	}
	if len(tr.Genres) != 1 || tr.Genres[0] != "Rock" {
		t.Fatalf("unexpected genres: %v", tr.Genres)
	}
}

func TestPathNormalization(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	tx, _ := c.Begin(ctx)
	if err := tx.UpsertTags(`Artist\Album\track.mp3`, "T", "A", "Al", "", nil, 200); err != nil {
		t.Fatalf("UpsertTags: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tr, err := c.GetByPath(ctx, "Artist/Album/track.mp3")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if tr == nil {
		t.Fatal("expected normalized path to match")
	}
}

func TestScanOrderedIDAscending(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	tx, _ := c.Begin(ctx)
	for _, p := range []string{"c.mp3", "a.mp3", "b.mp3"} {
		if err := tx.UpsertTags(p, p, "", "", "", nil, 100); err != nil {
			t.Fatalf("UpsertTags: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rows, err := c.ScanOrdered(ctx)
	if err != nil {
		t.Fatalf("ScanOrdered: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if r.ID != int64(i+1) {
			t.Fatalf("expected dense ascending ids, row %d has id %d", i, r.ID)
		}
	}
}

func TestForgetMissingRepacksIDs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for _, name := range []string{"keep1.mp3", "keep2.mp3"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	c := openTemp(t)
	tx, _ := c.Begin(ctx)
	for _, p := range []string{"keep1.mp3", "gone.mp3", "keep2.mp3"} {
		if err := tx.UpsertTags(p, p, "", "", "", nil, 100); err != nil {
			t.Fatalf("UpsertTags: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	changed, err := c.ForgetMissing(ctx, root)
	if err != nil {
		t.Fatalf("ForgetMissing: %v", err)
	}
	if !changed {
		t.Fatal("expected ForgetMissing to report a change")
	}

	rows, err := c.ScanOrdered(ctx)
	if err != nil {
		t.Fatalf("ScanOrdered: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", len(rows))
	}
	for i, r := range rows {
		if r.ID != int64(i+1) {
			t.Fatalf("expected repacked contiguous ids, row %d has id %d", i, r.ID)
		}
	}

	changedAgain, err := c.ForgetMissing(ctx, root)
	if err != nil {
		t.Fatalf("ForgetMissing (no-op): %v", err)
	}
	if changedAgain {
		t.Fatal("expected second ForgetMissing to report no change")
	}
}

func TestHasFeature(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	tx, _ := c.Begin(ctx)
	if err := tx.UpsertFeatures("x.mp3", FeatureUpdate{Timbre: []byte{1, 2, 3}}); err != nil {
		t.Fatalf("UpsertFeatures: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	has, err := c.HasFeature(ctx, "x.mp3", "timbre")
	if err != nil {
		t.Fatalf("HasFeature: %v", err)
	}
	if !has {
		t.Fatal("expected timbre feature to be present")
	}

	has, err = c.HasFeature(ctx, "x.mp3", "descriptor")
	if err != nil {
		t.Fatalf("HasFeature: %v", err)
	}
	if has {
		t.Fatal("expected descriptor feature to be absent")
	}

	has, err = c.HasFeature(ctx, "missing.mp3", "timbre")
	if err != nil {
		t.Fatalf("HasFeature missing path: %v", err)
	}
	if has {
		t.Fatal("expected missing path to report no feature")
	}
}

func TestSelectWhereScalarConstraints(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	tx, _ := c.Begin(ctx)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(tx.UpsertTags("a.mp3", "A", "", "", "", []string{"Rock"}, 200))
	bpmA := 120
	must(tx.UpsertFeatures("a.mp3", FeatureUpdate{BPM: &bpmA, HighLevel: &model.HighLevel{Happy: 0.8}}))

	must(tx.UpsertTags("b.mp3", "B", "", "", "", []string{"Jazz"}, 200))
	bpmB := 90
	must(tx.UpsertFeatures("b.mp3", FeatureUpdate{BPM: &bpmB, HighLevel: &model.HighLevel{Happy: 0.1}}))
	must(tx.Commit())

	ids, err := c.SelectWhere(ctx, ScalarConstraints{
		MinBPM: 100, MaxBPM: 140,
		HLMin: map[string]float64{"happy": 0.6},
	})
	if err != nil {
		t.Fatalf("SelectWhere: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected only track a (id 1), got %v", ids)
	}
}
