package analyzer

import "testing"

func TestExtractKeyCanonical(t *testing.T) {
	key, err := extractKey(rawAttributePayload{KeyKey: "G#", KeyScale: "minor"})
	if err != nil {
		t.Fatalf("extractKey: %v", err)
	}
	if key != "G#m" {
		t.Fatalf("got %q, want G#m", key)
	}
}

func TestExtractKeyFallsBackToStrongestEstimator(t *testing.T) {
	raw := rawAttributePayload{
		Estimators: []keyEstimator{
			{Key: "C", Scale: "major", Strength: 0.4},
			{Key: "A", Scale: "minor", Strength: 0.9},
			{Key: "D", Scale: "major", Strength: 0.1},
		},
	}
	key, err := extractKey(raw)
	if err != nil {
		t.Fatalf("extractKey: %v", err)
	}
	if key != "Am" {
		t.Fatalf("got %q, want Am", key)
	}
}

func TestExtractKeyNoSchema(t *testing.T) {
	if _, err := extractKey(rawAttributePayload{}); err == nil {
		t.Fatal("expected error when no key schema is present")
	}
}
