// Package tagreader wraps the audio tag library behind the uniform
// TagReader interface the analysis pipeline depends on. Tag reading is an
// external collaborator of the core similarity engine; this package
// supplies the default, concrete implementation.
package tagreader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dhowden/tag"
)

// Tags is the set of fields the analysis pipeline needs from a track's
// embedded metadata.
type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genre       string
	Duration    int // seconds
}

// Reader reads tag metadata for a file path.
type Reader interface {
	Read(path string) (Tags, error)
}

// TagLibReader reads tags via github.com/dhowden/tag, which understands
// ID3, Vorbis comments, MP4 atoms and APE tags.
type TagLibReader struct{}

// NewTagLibReader constructs the default Reader.
func NewTagLibReader() *TagLibReader { return &TagLibReader{} }

// Read opens path and extracts its tags. Duration comes from a
// length/TLEN/duration tag when one is present and is 0 otherwise; the
// audio stream itself is not decoded.
func (r *TagLibReader) Read(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, fmt.Errorf("read tags %s: %w", path, err)
	}

	title := m.Title()
	if title == "" {
		title = filepath.Base(path)
	}

	return Tags{
		Title:       title,
		Artist:      m.Artist(),
		Album:       m.Album(),
		AlbumArtist: m.AlbumArtist(),
		Genre:       m.Genre(),
		Duration:    durationFromRaw(m.Raw()),
	}, nil
}

// durationFromRaw looks for a handful of common non-standard duration tag
// names; most formats don't carry duration in their tag block at all, in
// which case 0 is returned (unknown duration).
func durationFromRaw(raw map[string]interface{}) int {
	if raw == nil {
		return 0
	}
	for _, key := range []string{"length", "TLEN", "duration"} {
		if v, ok := raw[key]; ok {
			switch t := v.(type) {
			case int:
				return t / 1000
			case string:
				var ms int
				if _, err := fmt.Sscanf(t, "%d", &ms); err == nil {
					return ms / 1000
				}
			}
		}
	}
	return 0
}
