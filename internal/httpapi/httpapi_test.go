package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/config"
	"github.com/stojg/musim/internal/recommend"
	"github.com/stojg/musim/internal/similarity"
)

type fakeSim struct {
	neighbors map[int64][]similarity.Neighbor
}

func (f *fakeSim) KNN(id int64, k int) ([]similarity.Neighbor, error) {
	ns := f.neighbors[id]
	if k > 0 && k < len(ns) {
		ns = ns[:k]
	}
	return ns, nil
}

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := catalog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func seedTrack(t *testing.T, cat *catalog.Catalog, path, title, artist, album string, genres []string, duration int) {
	t.Helper()
	ctx := context.Background()
	tx, err := cat.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.UpsertTags(path, title, artist, album, artist, genres, duration); err != nil {
		t.Fatalf("UpsertTags: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func newTestServer(t *testing.T) (*Server, *catalog.Catalog, *fakeSim) {
	t.Helper()
	cat := openTestCatalog(t)
	seedTrack(t, cat, "seed.mp3", "Seed Song", "Artist A", "Album A", []string{"rock"}, 200)
	seedTrack(t, cat, "n2.mp3", "Song B", "Artist B", "Album B", []string{"rock"}, 200)
	seedTrack(t, cat, "n3.mp3", "Song C", "Artist C", "Album C", []string{"rock"}, 200)

	seed, err := cat.GetByPath(context.Background(), "seed.mp3")
	if err != nil || seed == nil {
		t.Fatalf("resolve seed: %v", err)
	}
	n2, _ := cat.GetByPath(context.Background(), "n2.mp3")
	n3, _ := cat.GetByPath(context.Background(), "n3.mp3")

	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		seed.ID: {{ID: n2.ID, Sim: 0.1}, {ID: n3.ID, Sim: 0.2}},
	}}
	engine := recommend.New(cat, sim, 3, recommend.DefaultDefaults())

	log := logrus.New()
	log.SetOutput(os.Stderr)
	entry := log.WithField("component", "httpapi-test")

	srv := New(engine, cat, config.Default(), "fake", entry)
	return srv, cat, sim
}

func TestHandleSimilarReturnsJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/similar?track=seed.mp3&count=2&shuffle=0", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var paths []string
	if err := json.Unmarshal(w.Body.Bytes(), &paths); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %+v", paths)
	}
}

func TestHandleSimilarMissingTrackReturns400(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/similar", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleSimilarTextFormat(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/similar?track=seed.mp3&count=2&shuffle=0&format=text", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") == "" {
		t.Fatal("expected a content-type header to be set")
	}
}

func TestHandleGenresReturnsSortedUniverse(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/genres", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var genres []string
	if err := json.Unmarshal(w.Body.Bytes(), &genres); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(genres) != 1 || genres[0] != "rock" {
		t.Fatalf("expected [rock], got %+v", genres)
	}
}

func TestHandleFeaturesReturnsConfiguredString(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "fake" {
		t.Fatalf("expected body %q, got %q (status %d)", "fake", w.Body.String(), w.Code)
	}
}

func TestHandleDumpFiltersArtistMatch(t *testing.T) {
	srv, cat, _ := newTestServer(t)
	seedTrack(t, cat, "same-artist.mp3", "Other Song", "Artist A", "Album X", []string{"rock"}, 200)
	seed, _ := cat.GetByPath(context.Background(), "seed.mp3")
	sameArtist, _ := cat.GetByPath(context.Background(), "same-artist.mp3")

	// rewire the fake similarity provider to include the same-artist neighbor
	srv2, _, fs := newTestServerSharingCatalog(t, cat)
	fs.neighbors[seed.ID] = []similarity.Neighbor{{ID: sameArtist.ID, Sim: 0.1}}
	router := srv2.Router()
	_ = srv

	req := httptest.NewRequest(http.MethodGet, "/api/dump?track=seed.mp3&filterartist=1&count=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out []struct {
		File string  `json:"file"`
		Sim  float64 `json:"sim"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected the same-artist candidate to be filtered, got %+v", out)
	}
}

func newTestServerSharingCatalog(t *testing.T, cat *catalog.Catalog) (*Server, *catalog.Catalog, *fakeSim) {
	t.Helper()
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{}}
	engine := recommend.New(cat, sim, 10, recommend.DefaultDefaults())
	log := logrus.New()
	log.SetOutput(os.Stderr)
	entry := log.WithField("component", "httpapi-test")
	return New(engine, cat, config.Default(), "fake", entry), cat, sim
}
