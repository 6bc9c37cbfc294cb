// Package fusion combines per-analyzer similarity scores into a single
// ranking, per the two modes spec.md §4.5 describes: a weighted sum
// over precomputed per-row distances, or a k-d tree built over the
// weighted distance matrix itself.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"github.com/kyroy/kdtree"

	"github.com/stojg/musim/internal/similarity"
)

// Mode selects how multiple enabled analyzers are fused into one score.
type Mode string

const (
	// Simplemixed: combined[i] = Σ weight_a * dist_a[i], a plain
	// weighted sum over precomputed per-row distances.
	Simplemixed Mode = "simplemixed"
	// KDTreeMixed: build an N×A matrix of weighted per-analyzer
	// distances and query the origin in that space.
	KDTreeMixed Mode = "mixed"
)

// Weight is one analyzer's contribution to the fusion plan: its id, its
// integer percentage weight from configuration, and the index that
// supplies its per-row distances.
type Weight struct {
	AnalyzerID string
	Percent    int
	Index      similarity.Index
}

// Plan is the immutable fusion configuration built once at server
// startup from the mixed-weights config section (§9's "treat as an
// immutable FusionPlan" redesign note). Analyzers with weight 0 are
// omitted by the caller before constructing the plan.
type Plan struct {
	Mode    Mode
	Weights []Weight
}

// NewPlan builds a Plan, dropping any weight with Percent <= 0.
func NewPlan(mode Mode, weights []Weight) *Plan {
	p := &Plan{Mode: mode}
	for _, w := range weights {
		if w.Percent > 0 && w.Index != nil {
			p.Weights = append(p.Weights, w)
		}
	}
	return p
}

// KNN runs the fused nearest-neighbor query for row id. With a single
// enabled analyzer, it's a passthrough to that analyzer's own KNN. With
// more than one, it dispatches on Mode. See DESIGN.md for the resolved
// Open Question on simalgo=mixed with exactly one enabled analyzer:
// KDTreeMixed mode still runs its fused query path even with a single
// weight column, rather than silently degrading to a passthrough.
func (p *Plan) KNN(id int64, k int) ([]similarity.Neighbor, error) {
	if len(p.Weights) == 0 {
		return nil, fmt.Errorf("fusion: no enabled analyzer in plan")
	}
	if len(p.Weights) == 1 && p.Mode != KDTreeMixed {
		return p.Weights[0].Index.KNN(id, k)
	}

	switch p.Mode {
	case Simplemixed:
		return p.simplemixed(id, k)
	case KDTreeMixed:
		return p.kdtreeMixed(id, k)
	default:
		return nil, fmt.Errorf("fusion: unknown mode %q", p.Mode)
	}
}

// simplemixed precomputes every enabled analyzer's distance to every
// other row and combines them by weighted sum, per row id.
func (p *Plan) simplemixed(id int64, k int) ([]similarity.Neighbor, error) {
	n := p.Weights[0].Index.Len()
	combined := make(map[int64]float64, n)

	for _, w := range p.Weights {
		neighbors, err := w.Index.KNN(id, w.Index.Len())
		if err != nil {
			return nil, fmt.Errorf("fusion: simplemixed %s: %w", w.AnalyzerID, err)
		}
		weight := float64(w.Percent) / 100.0
		for _, nb := range neighbors {
			combined[nb.ID] += weight * nb.Sim
		}
	}

	out := make([]similarity.Neighbor, 0, len(combined))
	for rowID, sim := range combined {
		out = append(out, similarity.Neighbor{ID: rowID, Sim: sim})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sim < out[j].Sim })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// fusionPoint is a row's position in the weighted-distance matrix space
// that kdtreeMixed builds.
type fusionPoint struct {
	id  int64
	vec []float64
}

func (f *fusionPoint) Dimensions() int         { return len(f.vec) }
func (f *fusionPoint) Dimension(i int) float64 { return f.vec[i] }

// kdtreeMixed builds an N×A matrix where column a is row i's distance
// from id under analyzer a, scaled by its weight, then queries the
// origin — the point representing "maximally similar under every
// analyzer at once" — for the k nearest rows.
func (p *Plan) kdtreeMixed(id int64, k int) ([]similarity.Neighbor, error) {
	n := p.Weights[0].Index.Len()

	distances := make([]map[int64]float64, len(p.Weights))
	for wi, w := range p.Weights {
		neighbors, err := w.Index.KNN(id, w.Index.Len())
		if err != nil {
			return nil, fmt.Errorf("fusion: kdtree-mixed %s: %w", w.AnalyzerID, err)
		}
		m := make(map[int64]float64, len(neighbors))
		for _, nb := range neighbors {
			m[nb.ID] = nb.Sim
		}
		distances[wi] = m
	}

	rowIDs := make([]int64, 0, n)
	for rowID := range distances[0] {
		rowIDs = append(rowIDs, rowID)
	}
	sort.Slice(rowIDs, func(i, j int) bool { return rowIDs[i] < rowIDs[j] })

	points := make([]kdtree.Point, 0, len(rowIDs))
	byID := make(map[int64]*fusionPoint, len(rowIDs))
	for _, rowID := range rowIDs {
		vec := make([]float64, len(p.Weights))
		for wi, w := range p.Weights {
			weight := float64(w.Percent) / 100.0
			vec[wi] = weight * distances[wi][rowID]
		}
		fp := &fusionPoint{id: rowID, vec: vec}
		byID[rowID] = fp
		points = append(points, fp)
	}

	tree := kdtree.New(points)
	origin := &fusionPoint{vec: make([]float64, len(p.Weights))}
	if k <= 0 || k > len(points) {
		k = len(points)
	}
	found := tree.KNN(origin, k)

	out := make([]similarity.Neighbor, 0, len(found))
	for _, f := range found {
		fp, ok := f.(*fusionPoint)
		if !ok {
			continue
		}
		sim := vectorNorm(fp.vec)
		out = append(out, similarity.Neighbor{ID: fp.id, Sim: sim})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sim < out[j].Sim })
	return out, nil
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
