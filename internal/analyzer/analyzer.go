// Package analyzer defines the uniform interface the analysis pipeline
// uses to invoke the three concrete feature extractors (timbre,
// attribute, descriptor). The extractors themselves are native,
// out-of-process tools; this package only owns the adapter contract and
// the child-process isolation primitive every adapter is built on.
package analyzer

import (
	"context"
	"fmt"
)

// Status classifies a single extraction attempt.
type Status int

const (
	// StatusOK means the extractor produced a usable payload.
	StatusOK Status = iota
	// StatusError means the extractor failed (crash, bad output, I/O
	// error) — a permanent, countable failure.
	StatusError
	// StatusFiltered means the pipeline decided, before ever invoking
	// the extractor, that this file should be skipped deliberately.
	StatusFiltered
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusFiltered:
		return "FILTERED"
	default:
		return "UNKNOWN"
	}
}

// Kind identifies which of the three concrete analyzers produced a
// Result.
type Kind string

const (
	KindTimbre     Kind = "timbre"
	KindAttribute  Kind = "attribute"
	KindDescriptor Kind = "descriptor"
)

// AttributeOutput is the attribute analyzer's payload: tempo, key, and
// optionally the eleven high-level mood/character outputs.
type AttributeOutput struct {
	BPM       int
	Key       string // e.g. "Am" or "F#M": the extractor's key name plus "M" (major) or "m" (minor)
	HighLevel *HighLevelOutput
}

// HighLevelOutput mirrors model.HighLevel but lives in this package to
// keep the analyzer adapter boundary free of a dependency on the
// catalog's row type.
type HighLevelOutput struct {
	Danceable, Aggressive, Electronic, Acoustic, Happy,
	Party, Relaxed, Sad, Dark, Tonal, Voice float64
}

// Result is what a single analyze call returns on success, tagged by
// which kind of analyzer produced it.
type Result struct {
	Kind       Kind
	TimbreBlob []byte
	Descriptor []float64
	Attribute  *AttributeOutput
}

// Error wraps a failed extraction with the kind that failed, so the
// pipeline can report "ERROR(which)" as specified.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s analyzer: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Params bundles the sub-clip extraction parameters the timbre analyzer
// requires; the other analyzer kinds ignore them.
type Params struct {
	ExtractLen   int // seconds
	ExtractStart int // seconds; negative counts from the end of the file
}

// Analyzer is the uniform contract every concrete extractor adapter
// implements. Each call is isolated in a child process (see spawn.go);
// Analyze itself is synchronous from the caller's perspective.
type Analyzer interface {
	Kind() Kind
	Analyze(ctx context.Context, path string, params Params) (*Result, error)
}
