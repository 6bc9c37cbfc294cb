package analyzer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// message is the one-shot payload a child extraction process writes back
// to its parent over a pipe before exiting.
type message struct {
	Index   int             `json:"index"`
	Status  string          `json:"status"` // "OK", "ERROR", "FILTERED"
	Payload json.RawMessage `json:"payload,omitempty"`
	Extra   string          `json:"extra,omitempty"`
}

// ChildError reports that a spawned extraction process failed: it could
// not be started, never wrote a result message, or wrote one that could
// not be decoded or carried the wrong index. A well-formed message with
// status ERROR is not a ChildError; the adapters report it themselves.
type ChildError struct {
	Reason string
	Err    error
}

func (e *ChildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("child process: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("child process: %s", e.Reason)
}
func (e *ChildError) Unwrap() error { return e.Err }

// spawnOnce runs a single extraction in a child process and guarantees
// the child is terminated on every return path — load-bearing because
// the native extractors this adapts to are known to leak or corrupt
// process state across repeated calls, so one call per process is the
// contract, not an optimization.
//
// The child is expected to write exactly one JSON message line to its
// stdout pipe and then exit; the parent reads (at most) that one line,
// then kills and reaps the child unconditionally.
func spawnOnce(ctx context.Context, index int, name string, args ...string) (message, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return message{}, &ChildError{Reason: "create stdout pipe", Err: err}
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return message{}, &ChildError{Reason: "start", Err: err}
	}

	// Kill and reap the child on every path out of this function,
	// regardless of whether we already got a message.
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return message{}, &ChildError{Reason: "read result", Err: err}
		}
		return message{}, &ChildError{Reason: "child exited without a result message"}
	}

	var msg message
	if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
		return message{}, &ChildError{Reason: "decode result message", Err: err}
	}
	if msg.Index != index {
		return message{}, &ChildError{Reason: fmt.Sprintf("result index mismatch: got %d want %d", msg.Index, index)}
	}

	return msg, nil
}
