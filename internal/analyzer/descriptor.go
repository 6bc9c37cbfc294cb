package analyzer

import (
	"context"
	"fmt"
)

// DescriptorAnalyzer wraps the native multi-dimensional descriptor
// extractor (the "bliss" slot), which emits a fixed-length float vector
// whose first dimension is tempo-like and which is used directly as a
// k-d tree key.
type DescriptorAnalyzer struct {
	BinaryPath string
	Dims       int
	index      int
}

// NewDescriptorAnalyzer constructs an adapter expecting vectors of the
// given fixed length.
func NewDescriptorAnalyzer(binaryPath string, dims int) *DescriptorAnalyzer {
	return &DescriptorAnalyzer{BinaryPath: binaryPath, Dims: dims}
}

func (a *DescriptorAnalyzer) Kind() Kind { return KindDescriptor }

func (a *DescriptorAnalyzer) Analyze(ctx context.Context, path string, _ Params) (*Result, error) {
	a.index++
	idx := a.index

	msg, err := spawnOnce(ctx, idx, a.BinaryPath, "--mode", "descriptor", "--path", path)
	if err != nil {
		return nil, &Error{Kind: KindDescriptor, Err: err}
	}

	switch msg.Status {
	case "FILTERED":
		return nil, nil
	case "ERROR":
		return nil, &Error{Kind: KindDescriptor, Err: fmt.Errorf("%s", msg.Extra)}
	}

	var payload struct {
		Vector []float64 `json:"vector"`
	}
	if err := decodePayload(msg, &payload); err != nil {
		return nil, &Error{Kind: KindDescriptor, Err: err}
	}

	if a.Dims > 0 && len(payload.Vector) != a.Dims {
		return nil, &Error{Kind: KindDescriptor, Err: fmt.Errorf("expected %d dims, got %d", a.Dims, len(payload.Vector))}
	}

	return &Result{Kind: KindDescriptor, Descriptor: payload.Vector}, nil
}
