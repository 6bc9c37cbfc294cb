package analyzer

import (
	"context"
	"fmt"
)

// AttributeAnalyzer wraps the native high/low-level attribute extractor
// (the "essentia" slot): BPM, key, and optionally the eleven mood/
// character outputs.
type AttributeAnalyzer struct {
	BinaryPath string
	HighLevel  bool
	index      int
}

// NewAttributeAnalyzer constructs an adapter around the given extractor
// binary. highLevel toggles the 11 additional mood outputs.
func NewAttributeAnalyzer(binaryPath string, highLevel bool) *AttributeAnalyzer {
	return &AttributeAnalyzer{BinaryPath: binaryPath, HighLevel: highLevel}
}

func (a *AttributeAnalyzer) Kind() Kind { return KindAttribute }

func (a *AttributeAnalyzer) Analyze(ctx context.Context, path string, _ Params) (*Result, error) {
	a.index++
	idx := a.index

	args := []string{"--mode", "attribute", "--path", path}
	if a.HighLevel {
		args = append(args, "--highlevel")
	}

	msg, err := spawnOnce(ctx, idx, a.BinaryPath, args...)
	if err != nil {
		return nil, &Error{Kind: KindAttribute, Err: err}
	}

	switch msg.Status {
	case "FILTERED":
		return nil, nil
	case "ERROR":
		return nil, &Error{Kind: KindAttribute, Err: fmt.Errorf("%s", msg.Extra)}
	}

	var raw rawAttributePayload
	if err := decodePayload(msg, &raw); err != nil {
		return nil, &Error{Kind: KindAttribute, Err: err}
	}

	key, err := extractKey(raw)
	if err != nil {
		return nil, &Error{Kind: KindAttribute, Err: err}
	}

	out := &AttributeOutput{BPM: raw.BPM, Key: key}
	if a.HighLevel && raw.HighLevel != nil {
		out.HighLevel = raw.HighLevel
	}

	return &Result{Kind: KindAttribute, Attribute: out}, nil
}

// rawAttributePayload is deliberately loose about key representation:
// the underlying extractor's JSON schema has drifted across versions,
// sometimes emitting a single canonical key/scale pair, sometimes two
// competing key estimators (e.g. Krumhansl and Temperley profiles) each
// with its own confidence ("strength").
type rawAttributePayload struct {
	BPM int `json:"bpm"`

	KeyKey   string `json:"key_key,omitempty"`
	KeyScale string `json:"key_scale,omitempty"`

	Estimators []keyEstimator `json:"key_estimators,omitempty"`

	HighLevel *HighLevelOutput `json:"highlevel,omitempty"`
}

type keyEstimator struct {
	Key      string  `json:"key"`
	Scale    string  `json:"scale"`
	Strength float64 `json:"strength"`
}

// extractKey implements the small fallback cascade described in the
// analyzer adapter contract: prefer the canonical key_key/key_scale
// pair; otherwise pick whichever competing estimator has the highest
// strength. New schema revisions are meant to add arms here, not grow a
// conditional on a single dict.
func extractKey(raw rawAttributePayload) (string, error) {
	if raw.KeyKey != "" && raw.KeyScale != "" {
		return formatKey(raw.KeyKey, raw.KeyScale), nil
	}

	if len(raw.Estimators) > 0 {
		best := raw.Estimators[0]
		for _, e := range raw.Estimators[1:] {
			if e.Strength > best.Strength {
				best = e
			}
		}
		return formatKey(best.Key, best.Scale), nil
	}

	return "", fmt.Errorf("no recognizable key schema in attribute payload")
}

func formatKey(key, scale string) string {
	if scale == "major" {
		return key + "M"
	}
	return key + "m"
}
