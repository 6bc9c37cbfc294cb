package similarity

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// BlobDistance is the native timbre engine's own distance function over
// two opaque feature blobs. The real extractor (out of scope per the
// Analyzer adapter boundary) owns the actual algorithm; this interface
// is what the jukebox needs to stay agnostic of it.
type BlobDistance interface {
	Distance(a, b []byte) float64
}

// euclideanBlobDistance is the default BlobDistance: it treats each
// blob as a vector of big-endian float32s and computes Euclidean
// distance, which is a reasonable stand-in wherever the native engine
// doesn't already supply its own comparator.
type euclideanBlobDistance struct{}

func (euclideanBlobDistance) Distance(a, b []byte) float64 {
	n := len(a) / 4
	if len(b)/4 < n {
		n = len(b) / 4
	}
	var sum float64
	for i := 0; i < n; i++ {
		av := math.Float32frombits(binary.BigEndian.Uint32(a[i*4:]))
		bv := math.Float32frombits(binary.BigEndian.Uint32(b[i*4:]))
		d := float64(av - bv)
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Jukebox is the timbre analyzer's own similarity index: unlike the
// vector analyzers it has no k-d tree, its own normalization convention
// (possibly not [0,1]-clamped before the caller clamps), and its
// results can carry NaN entries or duplicates that callers must skip.
type Jukebox struct {
	dist   BlobDistance
	ids    []int64
	blobs  map[int64][]byte
	maxSim float64
}

// NewJukebox constructs an empty jukebox. A nil dist uses the default
// Euclidean-over-float32 comparator.
func NewJukebox(dist BlobDistance) *Jukebox {
	if dist == nil {
		dist = euclideanBlobDistance{}
	}
	return &Jukebox{dist: dist, blobs: map[int64][]byte{}}
}

// Rebuild replaces the jukebox's contents with the given rows, scanned
// in catalog id order. BuildAll calls it at server startup when no
// saved jukebox with a matching track count could be loaded; the
// analysis pipeline does not rebuild the jukebox.
func (j *Jukebox) Rebuild(ids []int64, blobs [][]byte) {
	j.ids = append([]int64(nil), ids...)
	j.blobs = make(map[int64][]byte, len(ids))
	var maxLen int
	for i, id := range ids {
		j.blobs[id] = blobs[i]
		if len(blobs[i]) > maxLen {
			maxLen = len(blobs[i])
		}
	}
	// A conservative normalization ceiling: the Euclidean distance
	// between the all-zero and a unit-amplitude vector of this length.
	j.maxSim = math.Sqrt(float64(maxLen / 4))
}

// Len reports how many rows the jukebox covers.
func (j *Jukebox) Len() int { return len(j.ids) }

// KNN implements Index. Per spec, the native engine's raw results may
// contain NaN (skipped) and duplicate ids (stop at the first repeat).
func (j *Jukebox) KNN(id int64, k int) ([]Neighbor, error) {
	query, ok := j.blobs[id]
	if !ok {
		return nil, fmt.Errorf("similarity: row %d has no timbre blob", id)
	}
	if k > len(j.ids) {
		k = len(j.ids)
	}

	type scored struct {
		id  int64
		sim float64
	}
	all := make([]scored, 0, len(j.ids))
	for _, other := range j.ids {
		raw := j.dist.Distance(query, j.blobs[other])
		sim := raw
		if j.maxSim > 0 {
			sim = raw / j.maxSim
		}
		all = append(all, scored{id: other, sim: sim})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].sim < all[j].sim })

	out := make([]Neighbor, 0, k)
	seen := map[int64]bool{}
	for _, s := range all {
		if len(out) >= k {
			break
		}
		if math.IsNaN(s.sim) {
			continue
		}
		if seen[s.id] {
			break // native engines may emit a duplicate id once the result set is exhausted; stop there
		}
		seen[s.id] = true
		out = append(out, Neighbor{ID: s.id, Sim: clamp01(s.sim)})
	}
	return out, nil
}

const jukeboxMagic = "MUSIMJKBX\x01"

// Save serializes the jukebox to path as a simple length-prefixed
// binary stream. The format is this module's own and, like the spec's
// "library-defined, possibly platform-specific" binary form, is only
// ever read back by Load.
func (j *Jukebox) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jukebox save: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(jukeboxMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int64(len(j.ids))); err != nil {
		return err
	}
	for _, id := range j.ids {
		blob := j.blobs[id]
		if err := binary.Write(w, binary.BigEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, int64(len(blob))); err != nil {
			return err
		}
		if _, err := w.Write(blob); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load reads a jukebox file written by Save. The caller compares Len
// against the number of catalog rows carrying a timbre blob and rebuilds
// on a mismatch — Load itself only reports hard I/O/format errors.
func (j *Jukebox) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("jukebox load: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	magic := make([]byte, len(jukeboxMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("jukebox load: %w", err)
	}
	if string(magic) != jukeboxMagic {
		return fmt.Errorf("jukebox load: bad magic")
	}

	var count int64
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return fmt.Errorf("jukebox load: %w", err)
	}

	ids := make([]int64, 0, count)
	blobs := make(map[int64][]byte, count)
	var maxLen int
	for i := int64(0); i < count; i++ {
		var id int64
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			return fmt.Errorf("jukebox load: %w", err)
		}
		var blen int64
		if err := binary.Read(r, binary.BigEndian, &blen); err != nil {
			return fmt.Errorf("jukebox load: %w", err)
		}
		blob := make([]byte, blen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return fmt.Errorf("jukebox load: %w", err)
		}
		ids = append(ids, id)
		blobs[id] = blob
		if len(blob) > maxLen {
			maxLen = len(blob)
		}
	}

	j.ids = ids
	j.blobs = blobs
	j.maxSim = math.Sqrt(float64(maxLen / 4))
	return nil
}
