// Package model defines the catalog's row type and the small value types
// that travel with it: Camelot-ready keys, high-level mood attributes and
// the per-analyzer feature payloads described in the catalog schema.
package model

// HighLevel holds the eleven mood/character outputs of the attribute
// analyzer, each normalized to [0,1]. A nil *HighLevel means the analyzer
// never ran with the high-level flag enabled for this track.
type HighLevel struct {
	Danceable  float64
	Aggressive float64
	Electronic float64
	Acoustic   float64
	Happy      float64
	Party      float64
	Relaxed    float64
	Sad        float64
	Dark       float64
	Tonal      float64
	Voice      float64
}

// Attrs returns the eleven values alongside their names, in the order
// used by the "most extreme attribute" selection in the recommendation
// pipeline.
func (h *HighLevel) Attrs() []struct {
	Name  string
	Value float64
} {
	if h == nil {
		return nil
	}
	return []struct {
		Name  string
		Value float64
	}{
		{"danceable", h.Danceable},
		{"aggressive", h.Aggressive},
		{"electronic", h.Electronic},
		{"acoustic", h.Acoustic},
		{"happy", h.Happy},
		{"party", h.Party},
		{"relaxed", h.Relaxed},
		{"sad", h.Sad},
		{"dark", h.Dark},
		{"tonal", h.Tonal},
		{"voice", h.Voice},
	}
}

// Track is a single catalog row. Fields that come from an analyzer that
// has not yet run for this path are left at their zero value, with the
// matching Has* field false (see catalog.HasFeature).
type Track struct {
	ID          int64
	Path        string
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genres      []string
	Duration    int
	Ignore      bool

	TimbreBlob []byte

	HasDescriptor bool
	Descriptor    []float64

	HasBPM bool
	BPM    int

	HasKey bool
	Key    string // e.g. "8A", "Am", "F#M" depending on caller

	HighLevel *HighLevel
}

// HasTimbre reports whether an opaque timbre blob has been recorded for
// this row.
func (t *Track) HasTimbre() bool { return len(t.TimbreBlob) > 0 }

// AlbumKey returns the canonical identifier used for album-repeat
// avoidance (see the recommendation pipeline). A "various artists" style
// album yields an empty string, which never collides with anything.
func (t *Track) AlbumKey() string {
	aa := normalizeVarious(t.AlbumArtist)
	if aa != "" {
		return aa + "::" + t.Album
	}
	if isVariousArtists(t.AlbumArtist) {
		return ""
	}
	artist := normalizeVarious(t.Artist)
	if artist == "" {
		return ""
	}
	return artist + "::" + t.Album
}

func normalizeVarious(s string) string {
	if isVariousArtists(s) {
		return ""
	}
	return s
}

func isVariousArtists(s string) bool {
	switch lower(s) {
	case "various", "various artists":
		return true
	}
	return false
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
