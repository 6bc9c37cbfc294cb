package recommend

import (
	"math"
	"sort"

	"github.com/stojg/musim/internal/model"
)

// extremeAttr is one of a seed's "most extreme" high-level attributes:
// its name and which tail the seed's value sits in.
type extremeAttr struct {
	name     string
	highTail bool // true if the seed's value is in the high tail, false for low
}

// computeExtremeAttrs selects, among the eleven hl attributes, those
// whose seed value falls in (0, lowLim] ∪ [1-lowLim, 1), ranks them by
// distance from 0.5 descending, and keeps the top count.
func computeExtremeAttrs(hl *model.HighLevel, lowLim float64, count int) []extremeAttr {
	if hl == nil {
		return nil
	}
	highLim := 1 - lowLim

	type scored struct {
		attr extremeAttr
		dist float64
	}
	var candidates []scored
	for _, a := range hl.Attrs() {
		if a.Value > 0 && a.Value <= lowLim {
			candidates = append(candidates, scored{extremeAttr{name: a.Name, highTail: false}, math.Abs(0.5 - a.Value)})
		} else if a.Value >= highLim && a.Value < 1 {
			candidates = append(candidates, scored{extremeAttr{name: a.Name, highTail: true}, math.Abs(0.5 - a.Value)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist > candidates[j].dist })

	if count > 0 && len(candidates) > count {
		candidates = candidates[:count]
	}
	out := make([]extremeAttr, len(candidates))
	for i, c := range candidates {
		out[i] = c.attr
	}
	return out
}

// failsExtremeAttrs reports whether cand's values land on the opposite
// extreme, past threshold candLim, of any of the seed's extreme attrs.
func failsExtremeAttrs(extremes []extremeAttr, cand *model.HighLevel, candLim float64) bool {
	if cand == nil {
		return false // nothing to compare against: don't block
	}
	values := map[string]float64{}
	for _, a := range cand.Attrs() {
		values[a.Name] = a.Value
	}
	for _, e := range extremes {
		v, ok := values[e.name]
		if !ok {
			continue
		}
		if e.highTail && v <= candLim {
			return true
		}
		if !e.highTail && v >= 1-candLim {
			return true
		}
	}
	return false
}
