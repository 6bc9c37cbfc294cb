package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/model"
	"github.com/stojg/musim/internal/similarity"
)

type fakeCatalog struct {
	byPath map[string]*model.Track
	byID   map[int64]*model.Track
	genres []string
}

func (f *fakeCatalog) GetByID(_ context.Context, id int64) (*model.Track, error) {
	return f.byID[id], nil
}

func (f *fakeCatalog) GetByPath(_ context.Context, path string) (*model.Track, error) {
	return f.byPath[path], nil
}

func (f *fakeCatalog) AllGenresSorted(_ context.Context) ([]string, error) {
	return f.genres, nil
}

func (f *fakeCatalog) SelectWhere(_ context.Context, cons catalog.ScalarConstraints) ([]int64, error) {
	wantGenres := map[string]bool{}
	for _, g := range cons.Genres {
		wantGenres[g] = true
	}
	var out []int64
	for id, t := range f.byID {
		if t.Ignore {
			continue
		}
		if cons.MinDuration > 0 && t.Duration < cons.MinDuration {
			continue
		}
		if cons.MaxDuration > 0 && t.Duration > cons.MaxDuration {
			continue
		}
		if cons.MinBPM > 0 && (!t.HasBPM || t.BPM < cons.MinBPM) {
			continue
		}
		if cons.MaxBPM > 0 && (!t.HasBPM || t.BPM > cons.MaxBPM) {
			continue
		}
		if len(wantGenres) > 0 {
			match := false
			for _, g := range t.Genres {
				if wantGenres[g] {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if hl := t.HighLevel; len(cons.HLMin) > 0 || len(cons.HLMax) > 0 {
			if hl == nil {
				continue
			}
			values := map[string]float64{}
			for _, a := range hl.Attrs() {
				values[a.Name] = a.Value
			}
			ok := true
			for name, min := range cons.HLMin {
				if values[name] < min {
					ok = false
				}
			}
			for name, max := range cons.HLMax {
				if values[name] > max {
					ok = false
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, id)
	}
	return out, nil
}

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

func newCatalog(tracks ...*model.Track) *fakeCatalog {
	c := &fakeCatalog{byPath: map[string]*model.Track{}, byID: map[int64]*model.Track{}}
	genreSet := map[string]bool{}
	for _, t := range tracks {
		c.byPath[t.Path] = t
		c.byID[t.ID] = t
		for _, g := range t.Genres {
			genreSet[g] = true
		}
	}
	for g := range genreSet {
		c.genres = append(c.genres, g)
	}
	return c
}

func track(id int64, path, artist, album, title string, genres ...string) *model.Track {
	return &model.Track{
		ID: id, Path: path, Artist: artist, Album: album, AlbumArtist: artist,
		Title: title, Genres: genres, Duration: 200,
	}
}

func TestRecommendReturnsEmptyWhenSeedMissing(t *testing.T) {
	cat := newCatalog()
	sim := &fakeSim{}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Recommend(context.Background(), Request{Seeds: []string{"missing.mp3"}, Count: 5})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil result for unresolved seed, got %+v", out)
	}
}

func TestRecommendBasicAcceptsNeighbors(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	n2 := track(2, "n2.mp3", "Artist B", "Album B", "Song B", "rock")
	n3 := track(3, "n3.mp3", "Artist C", "Album C", "Song C", "rock")
	cat := newCatalog(seed, n2, n3)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Recommend(context.Background(), Request{Seeds: []string{"seed.mp3"}, Count: 5})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 accepted tracks, got %d: %+v", len(out), out)
	}
	if out[0].ID != 2 || out[1].ID != 3 {
		t.Fatalf("expected order by similarity [2,3], got %+v", out)
	}
}

func TestRecommendFiltersIncompatibleGenre(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	bad := track(2, "bad.mp3", "Artist B", "Album B", "Song B", "classical")
	good := track(3, "good.mp3", "Artist C", "Album C", "Song C", "rock")
	cat := newCatalog(seed, bad, good)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Recommend(context.Background(), Request{Seeds: []string{"seed.mp3"}, Count: 5, FilterGenre: true})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(out) != 1 || out[0].ID != 3 {
		t.Fatalf("expected only the rock track to survive genre filtering, got %+v", out)
	}
}

func TestRecommendFiltersByDuration(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	short := track(2, "short.mp3", "Artist B", "Album B", "Song B", "rock")
	short.Duration = 10
	ok := track(3, "ok.mp3", "Artist C", "Album C", "Song C", "rock")
	cat := newCatalog(seed, short, ok)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Recommend(context.Background(), Request{Seeds: []string{"seed.mp3"}, Count: 5, MinDuration: 60})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(out) != 1 || out[0].ID != 3 {
		t.Fatalf("expected the short track to be filtered out, got %+v", out)
	}
}

func TestRecommendAvoidsRepeatedArtist(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	sameArtist := track(2, "same.mp3", "Artist A", "Album B", "Other Song", "rock")
	diffArtist := track(3, "diff.mp3", "Artist C", "Album C", "Song C", "rock")
	other := track(4, "other.mp3", "Artist D", "Album D", "Song D", "rock")
	cat := newCatalog(seed, sameArtist, diffArtist, other)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}, {ID: 4, Sim: 0.3}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Recommend(context.Background(), Request{Seeds: []string{"seed.mp3"}, Count: 5, NoRepeatArt: 1})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, tr := range out {
		if tr.Artist == "Artist A" {
			t.Fatalf("expected seed's own artist to be filtered from results, got %+v", out)
		}
	}
}

func TestRecommendDedupsByTitle(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Shared Title", "rock")
	dup := track(2, "dup.mp3", "Artist B", "Album B", "Shared Title", "rock")
	unique := track(3, "unique.mp3", "Artist C", "Album C", "Unique Title", "rock")
	other := track(4, "other.mp3", "Artist D", "Album D", "Another Title", "rock")
	cat := newCatalog(seed, dup, unique, other)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}, {ID: 4, Sim: 0.3}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Recommend(context.Background(), Request{Seeds: []string{"seed.mp3"}, Count: 5})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, tr := range out {
		if tr.Title == "Shared Title" {
			t.Fatalf("expected title duplicate of seed to be filtered, got %+v", out)
		}
	}
}

func TestRecommendDeterministicWithoutShuffle(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	n2 := track(2, "n2.mp3", "Artist B", "Album B", "Song B", "rock")
	n3 := track(3, "n3.mp3", "Artist C", "Album C", "Song C", "rock")
	cat := newCatalog(seed, n2, n3)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	req := Request{Seeds: []string{"seed.mp3"}, Count: 5}
	first, err := eng.Recommend(context.Background(), req)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	second, err := eng.Recommend(context.Background(), req)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical length across calls, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("expected identical order across repeated calls, got %+v vs %+v", first, second)
		}
	}
}

func TestGenreAdjustmentLaw(t *testing.T) {
	d := DefaultDefaults()
	seedGenres := toSet([]string{"rock"})
	sameGenre := toSet([]string{"rock", "indie"})
	if got := genreAdjustment(seedGenres, sameGenre, seedGenres, d.NoGenreMatchAdj, d.GenreGroupAdj); got != 0 {
		t.Fatalf("expected 0 adjustment for direct genre intersection, got %v", got)
	}

	groupGenres := toSet([]string{"metal"})
	expanded := toSet([]string{"rock", "metal"})
	if got := genreAdjustment(seedGenres, groupGenres, expanded, d.NoGenreMatchAdj, d.GenreGroupAdj); got != d.GenreGroupAdj {
		t.Fatalf("expected group adjustment for group-only intersection, got %v", got)
	}

	noMatch := toSet([]string{"classical"})
	if got := genreAdjustment(seedGenres, noMatch, seedGenres, d.NoGenreMatchAdj, d.GenreGroupAdj); got != d.NoGenreMatchAdj {
		t.Fatalf("expected no-match adjustment for disjoint genres, got %v", got)
	}

	if got := genreAdjustment(map[string]bool{}, noMatch, seedGenres, d.NoGenreMatchAdj, d.GenreGroupAdj); got != d.NoGenreMatchAdj {
		t.Fatalf("expected no-match adjustment when seed has no genres, got %v", got)
	}
}

func TestAlbumKeyLawVariousArtistsNeverCollide(t *testing.T) {
	a := &model.Track{Artist: "Solo", AlbumArtist: "Various Artists", Album: "Compilation"}
	b := &model.Track{Artist: "Other", AlbumArtist: "Various", Album: "Compilation"}
	if a.AlbumKey() != "" || b.AlbumKey() != "" {
		t.Fatalf("expected various-artists albums to yield empty keys, got %q and %q", a.AlbumKey(), b.AlbumKey())
	}
}

func TestKeyCompatible(t *testing.T) {
	if !keyCompatible("Am", "Am") {
		t.Fatal("expected identical keys to be compatible")
	}
	if !keyCompatible("Am", "CM") {
		t.Fatal("expected relative major/minor to be compatible")
	}
	if keyCompatible("Am", "F#M") {
		t.Fatal("expected unrelated keys to be incompatible")
	}
	if !keyCompatible("", "Am") {
		t.Fatal("expected an unparsable key to not block the candidate")
	}
}

func TestIsChristmas(t *testing.T) {
	if !isChristmas([]string{"Pop", "Christmas"}) {
		t.Fatal("expected Christmas genre to be detected")
	}
	if isChristmas([]string{"Pop", "Rock"}) {
		t.Fatal("expected non-Christmas genres to not match")
	}
}

func TestRecommendIgnoreGenreExemptsArtist(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	exempt := track(2, "exempt.mp3", "Exempt Artist", "Album B", "Song B", "classical")
	blocked := track(3, "blocked.mp3", "Blocked Artist", "Album C", "Song C", "classical")
	cat := newCatalog(seed, exempt, blocked)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Recommend(context.Background(), Request{
		Seeds: []string{"seed.mp3"}, Count: 5, FilterGenre: true,
		IgnoreGenre: []string{"Exempt Artist"},
	})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(out) != 1 || out[0].ID != 2 {
		t.Fatalf("expected only the genre-exempt artist's track to survive, got %+v", out)
	}
}

func TestAttrMixFiltersByBPMAndAttribute(t *testing.T) {
	inRange := track(1, "in.mp3", "Artist A", "Album A", "Title A", "rock")
	inRange.HasBPM, inRange.BPM = true, 120
	inRange.HighLevel = &model.HighLevel{Happy: 0.8}

	outOfRange := track(2, "out.mp3", "Artist B", "Album B", "Title B", "rock")
	outOfRange.HasBPM, outOfRange.BPM = true, 80
	outOfRange.HighLevel = &model.HighLevel{Happy: 0.9}

	notHappy := track(3, "sad.mp3", "Artist C", "Album C", "Title C", "rock")
	notHappy.HasBPM, notHappy.BPM = true, 125
	notHappy.HighLevel = &model.HighLevel{Happy: 0.1}

	cat := newCatalog(inRange, outOfRange, notHappy)
	eng := New(cat, &fakeSim{}, 10, DefaultDefaults())

	out, err := eng.AttrMix(context.Background(), AttrMixRequest{
		MinBPM: 100, MaxBPM: 140,
		Attrs: map[string]string{"happy": "y"},
		Count: 20,
	})
	if err != nil {
		t.Fatalf("AttrMix: %v", err)
	}
	if len(out) != 1 || out[0].ID != 1 {
		t.Fatalf("expected only the in-range, happy track to survive, got %+v", out)
	}
}

func TestAttrMixEnforcesArtistSpacing(t *testing.T) {
	var tracks []*model.Track
	for i := 0; i < 6; i++ {
		tr := track(int64(i+1), fmt.Sprintf("t%d.mp3", i), "Same Artist", fmt.Sprintf("Album %d", i), fmt.Sprintf("Title %d", i))
		tracks = append(tracks, tr)
	}
	cat := newCatalog(tracks...)
	eng := New(cat, &fakeSim{}, 10, DefaultDefaults())

	out, err := eng.AttrMix(context.Background(), AttrMixRequest{Count: 6, NoRepeatArt: 2})
	if err != nil {
		t.Fatalf("AttrMix: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected artist spacing to block all repeats of the only artist present, got %d tracks", len(out))
	}
}

func TestDumpFiltersByArtistMatchAndTitle(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	sameArtist := track(2, "same.mp3", "Artist A", "Album B", "Other Song", "rock")
	dupTitle := track(3, "dup.mp3", "Artist C", "Album C", "Seed Song", "rock")
	ok := track(4, "ok.mp3", "Artist D", "Album D", "OK Song", "rock")
	cat := newCatalog(seed, sameArtist, dupTitle, ok)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}, {ID: 3, Sim: 0.2}, {ID: 4, Sim: 0.3}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Dump(context.Background(), DumpRequest{Seed: "seed.mp3", FilterArtist: true, Count: 10})
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(out) != 1 || out[0].Path != "ok.mp3" {
		t.Fatalf("expected only the non-matching track to survive, got %+v", out)
	}
}

func TestDumpRawBypassesFiltering(t *testing.T) {
	seed := track(1, "seed.mp3", "Artist A", "Album A", "Seed Song", "rock")
	sameArtist := track(2, "same.mp3", "Artist A", "Album B", "Other Song", "rock")
	cat := newCatalog(seed, sameArtist)
	sim := &fakeSim{neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 2, Sim: 0.1}},
	}}
	eng := New(cat, sim, 10, DefaultDefaults())

	out, err := eng.Dump(context.Background(), DumpRequest{Seed: "seed.mp3", Raw: true, FilterArtist: true, Count: 10})
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(out) != 1 || out[0].Sim != 0.1 {
		t.Fatalf("expected raw mode to bypass artist filtering and return the unadjusted sim, got %+v", out)
	}
}

func TestRequestSeedIsDeterministic(t *testing.T) {
	req := Request{Seeds: []string{"a.mp3"}, Count: 5, MaxBPMDiff: 10, Shuffle: false}
	if requestSeed(req) != requestSeed(req) {
		t.Fatal("expected requestSeed to be a pure function of request content")
	}
	other := req
	other.Seeds = []string{"b.mp3"}
	if requestSeed(req) == requestSeed(other) {
		t.Fatal("expected different seed paths to usually produce a different RNG seed")
	}
}
