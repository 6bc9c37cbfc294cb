package cuesplit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// FFmpegSplitter is the concrete Splitter: it shells out to ffmpeg to
// carve entry's time range out of source into dir, the same
// one-external-process-per-call idiom the analyzer adapters use for
// their own native tool invocations.
type FFmpegSplitter struct {
	BinaryPath string // defaults to "ffmpeg" on PATH
}

// NewFFmpegSplitter returns a Splitter backed by the named ffmpeg
// binary, or "ffmpeg" on PATH if binaryPath is empty.
func NewFFmpegSplitter(binaryPath string) *FFmpegSplitter {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &FFmpegSplitter{BinaryPath: binaryPath}
}

// Split runs ffmpeg -ss start -to end -i source -c copy out.
func (f *FFmpegSplitter) Split(source string, entry Entry, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cuesplit: create %s: %w", dir, err)
	}
	out := filepath.Join(dir, entry.VirtualPath())
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}

	args := []string{"-y", "-loglevel", "error"}
	if entry.StartSecs > 0 {
		args = append(args, "-ss", strconv.Itoa(entry.StartSecs))
	}
	if entry.EndSecs > 0 {
		args = append(args, "-to", strconv.Itoa(entry.EndSecs))
	}
	args = append(args, "-i", source, "-c", "copy", out)

	cmd := exec.CommandContext(context.Background(), f.BinaryPath, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("cuesplit: ffmpeg %s: %w", source, err)
	}
	return out, nil
}
