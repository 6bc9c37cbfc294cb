package analyzer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
)

// TimbreAnalyzer wraps a native timbre-vector extractor (the "musly"
// slot in the configuration) that emits an opaque, analyzer-defined
// track blob used only by that library's own similarity call.
type TimbreAnalyzer struct {
	// BinaryPath is the external extractor executable; spawned once per
	// track and killed immediately after it reports.
	BinaryPath string
	index      int
}

// NewTimbreAnalyzer constructs an adapter around the given extractor
// binary.
func NewTimbreAnalyzer(binaryPath string) *TimbreAnalyzer {
	return &TimbreAnalyzer{BinaryPath: binaryPath}
}

func (a *TimbreAnalyzer) Kind() Kind { return KindTimbre }

// Analyze spawns the extractor with the sub-clip parameters it requires
// and decodes the resulting opaque track blob.
func (a *TimbreAnalyzer) Analyze(ctx context.Context, path string, params Params) (*Result, error) {
	a.index++
	idx := a.index

	msg, err := spawnOnce(ctx, idx, a.BinaryPath,
		"--mode", "timbre",
		"--path", path,
		"--extract-len", strconv.Itoa(params.ExtractLen),
		"--extract-start", strconv.Itoa(params.ExtractStart),
	)
	if err != nil {
		return nil, &Error{Kind: KindTimbre, Err: err}
	}

	switch msg.Status {
	case "FILTERED":
		return nil, nil
	case "ERROR":
		return nil, &Error{Kind: KindTimbre, Err: fmt.Errorf("%s", msg.Extra)}
	}

	var payload struct {
		Blob string `json:"blob"` // base64-encoded opaque track struct
	}
	if err := decodePayload(msg, &payload); err != nil {
		return nil, &Error{Kind: KindTimbre, Err: err}
	}

	blob, err := base64.StdEncoding.DecodeString(payload.Blob)
	if err != nil {
		return nil, &Error{Kind: KindTimbre, Err: fmt.Errorf("decode blob: %w", err)}
	}

	return &Result{Kind: KindTimbre, TimbreBlob: blob}, nil
}
