package similarity

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/stojg/musim/internal/model"
)

// Indexes bundles every per-analyzer index the recommendation pipeline
// may query. A nil field means that analyzer is disabled or no row in
// the catalog carries its feature.
type Indexes struct {
	Descriptor *VectorIndex
	Attribute  *VectorIndex
	Timbre     *Jukebox
}

// BuildAll scans tracks once and builds every enabled index
// concurrently, since each is an independent pure function of the
// catalog snapshot.
func BuildAll(ctx context.Context, tracks []*model.Track, descriptorEnabled, attributeEnabled, timbreEnabled bool, jukeboxPath string) (*Indexes, error) {
	ids := make([]int64, len(tracks))
	byID := make(map[int64]*model.Track, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
		byID[t.ID] = t
	}

	out := &Indexes{}
	g, _ := errgroup.WithContext(ctx)

	if descriptorEnabled {
		g.Go(func() error {
			idx, err := Build(ids, func(id int64) ([]float64, bool) {
				t := byID[id]
				if t == nil || !t.HasDescriptor {
					return nil, false
				}
				return t.Descriptor, true
			})
			if err != nil {
				return err
			}
			out.Descriptor = idx
			return nil
		})
	}

	if attributeEnabled {
		g.Go(func() error {
			idx, err := Build(ids, func(id int64) ([]float64, bool) {
				t := byID[id]
				if t == nil || t.HighLevel == nil {
					return nil, false
				}
				vec := make([]float64, 0, 11)
				for _, a := range t.HighLevel.Attrs() {
					vec = append(vec, a.Value)
				}
				return vec, true
			})
			if err != nil {
				return err
			}
			out.Attribute = idx
			return nil
		})
	}

	if timbreEnabled {
		g.Go(func() error {
			jb := NewJukebox(nil)
			if jukeboxPath != "" {
				if err := jb.Load(jukeboxPath); err == nil && jb.Len() == countTimbre(tracks) {
					out.Timbre = jb
					return nil
				}
			}
			var jids []int64
			var blobs [][]byte
			for _, t := range tracks {
				if t.HasTimbre() {
					jids = append(jids, t.ID)
					blobs = append(blobs, t.TimbreBlob)
				}
			}
			jb.Rebuild(jids, blobs)
			if jukeboxPath != "" {
				_ = jb.Save(jukeboxPath)
			}
			out.Timbre = jb
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.Descriptor != nil && out.Descriptor.Len() == 0 {
		out.Descriptor = nil
	}
	if out.Attribute != nil && out.Attribute.Len() == 0 {
		out.Attribute = nil
	}
	if out.Timbre != nil && out.Timbre.Len() == 0 {
		out.Timbre = nil
	}
	return out, nil
}

func countTimbre(tracks []*model.Track) int {
	n := 0
	for _, t := range tracks {
		if t.HasTimbre() {
			n++
		}
	}
	return n
}
