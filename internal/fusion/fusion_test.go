package fusion

import (
	"testing"

	"github.com/stojg/musim/internal/similarity"
)

type fakeIndex struct {
	neighbors map[int64][]similarity.Neighbor
	n         int
}

func (f *fakeIndex) KNN(id int64, k int) ([]similarity.Neighbor, error) {
	ns := f.neighbors[id]
	if k < len(ns) {
		ns = ns[:k]
	}
	return ns, nil
}

func (f *fakeIndex) Len() int { return f.n }

func TestPlanSingleAnalyzerIsPassthrough(t *testing.T) {
	idx := &fakeIndex{n: 2, neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 1, Sim: 0}, {ID: 2, Sim: 0.5}},
	}}
	plan := NewPlan(Simplemixed, []Weight{{AnalyzerID: "descriptor", Percent: 100, Index: idx}})

	out, err := plan.KNN(1, 2)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(out) != 2 || out[0].ID != 1 || out[0].Sim != 0 {
		t.Fatalf("expected passthrough result, got %+v", out)
	}
}

func TestSimplemixedWeightedSum(t *testing.T) {
	a := &fakeIndex{n: 2, neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 1, Sim: 0}, {ID: 2, Sim: 1.0}},
	}}
	b := &fakeIndex{n: 2, neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 1, Sim: 0}, {ID: 2, Sim: 0.0}},
	}}
	plan := NewPlan(Simplemixed, []Weight{
		{AnalyzerID: "a", Percent: 50, Index: a},
		{AnalyzerID: "b", Percent: 50, Index: b},
	})

	out, err := plan.KNN(1, 2)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	var gotRow2 float64
	for _, n := range out {
		if n.ID == 2 {
			gotRow2 = n.Sim
		}
	}
	if gotRow2 != 0.5 {
		t.Fatalf("expected row 2's combined sim to be 0.5, got %v", gotRow2)
	}
}

func TestPlanDropsZeroWeights(t *testing.T) {
	idx := &fakeIndex{n: 1}
	plan := NewPlan(Simplemixed, []Weight{{AnalyzerID: "unused", Percent: 0, Index: idx}})
	if len(plan.Weights) != 0 {
		t.Fatalf("expected zero-weight analyzer to be dropped, got %+v", plan.Weights)
	}
}

func TestKDTreeMixedReturnsAllRows(t *testing.T) {
	a := &fakeIndex{n: 3, neighbors: map[int64][]similarity.Neighbor{
		1: {{ID: 1, Sim: 0}, {ID: 2, Sim: 0.2}, {ID: 3, Sim: 0.8}},
	}}
	plan := NewPlan(KDTreeMixed, []Weight{{AnalyzerID: "a", Percent: 100, Index: a}})

	out, err := plan.KNN(1, 3)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(out))
	}
	if out[0].ID != 1 {
		t.Fatalf("expected row 1 (zero distance) to be nearest, got %+v", out)
	}
}
