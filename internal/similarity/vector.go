package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/kyroy/kdtree"
)

// point adapts a row's feature vector to kdtree.Point.
type point struct {
	id  int64
	vec []float64
}

func (p *point) Dimensions() int            { return len(p.vec) }
func (p *point) Dimension(i int) float64    { return p.vec[i] }

// VectorIndex is a k-d tree over one analyzer's feature vectors, built
// once at server startup from a catalog scan (§4.4). max_distance is
// fixed at √dim as specified, used to normalize raw tree distances into
// [0,1].
type VectorIndex struct {
	tree        *kdtree.KDTree
	points      []*point
	posByID     map[int64]int
	maxDistance float64
	dim         int
}

// FeatureFunc extracts a row's feature vector for this index, returning
// ok=false for rows that don't carry the feature at all.
type FeatureFunc func(id int64) (vec []float64, ok bool)

// Build scans ids in ascending order (the catalog's id order, per the
// invariant that index position i corresponds to id i+1) and constructs
// the index from whichever rows extract carries a vector for.
func Build(ids []int64, extract FeatureFunc) (*VectorIndex, error) {
	vi := &VectorIndex{posByID: map[int64]int{}}

	var pts []kdtree.Point
	for _, id := range ids {
		vec, ok := extract(id)
		if !ok {
			continue
		}
		if vi.dim == 0 {
			vi.dim = len(vec)
		} else if len(vec) != vi.dim {
			return nil, fmt.Errorf("similarity: inconsistent vector dimension for row %d: got %d, want %d", id, len(vec), vi.dim)
		}
		p := &point{id: id, vec: vec}
		vi.posByID[id] = len(vi.points)
		vi.points = append(vi.points, p)
		pts = append(pts, p)
	}

	if vi.dim > 0 {
		vi.maxDistance = math.Sqrt(float64(vi.dim))
	}
	vi.tree = kdtree.New(pts)
	return vi, nil
}

// Len reports how many rows this index covers.
func (vi *VectorIndex) Len() int { return len(vi.points) }

// KNN implements Index. k is clamped to Len(); results are sorted
// ascending by similarity, normalized by the fixed max_distance.
func (vi *VectorIndex) KNN(id int64, k int) ([]Neighbor, error) {
	pos, ok := vi.posByID[id]
	if !ok {
		return nil, fmt.Errorf("similarity: row %d has no feature in this index", id)
	}
	if k > len(vi.points) {
		k = len(vi.points)
	}
	if k <= 0 {
		return nil, nil
	}

	query := vi.points[pos]
	found := vi.tree.KNN(query, k)

	out := make([]Neighbor, 0, len(found))
	for _, f := range found {
		fp, ok := f.(*point)
		if !ok {
			continue
		}
		dist := euclidean(query.vec, fp.vec)
		sim := 0.0
		if vi.maxDistance > 0 {
			sim = clamp01(dist / vi.maxDistance)
		}
		out = append(out, Neighbor{ID: fp.id, Sim: sim})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Sim < out[j].Sim })
	return out, nil
}
