// Package cuesplit turns a cue sheet into the set of virtual tracks it
// describes. Actual audio segment extraction is an external
// collaborator (out of scope here); this package owns the cue sheet
// parsing and the virtual path encoding the rest of the pipeline relies
// on.
package cuesplit

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Entry is one track carved out of a source file by a cue sheet.
type Entry struct {
	Source     string
	Title      string
	Performer  string
	StartSecs  int
	EndSecs    int // 0 means "to end of file"; resolved by the caller once durations are known
}

// VirtualPath encodes a cue entry as the synthetic path the rest of the
// pipeline schedules like any other file: "<source>.CUE_TRACK.<start>-<end>.mp3".
func (e Entry) VirtualPath() string {
	return fmt.Sprintf("%s.CUE_TRACK.%d-%d.mp3", e.Source, e.StartSecs, e.EndSecs)
}

var virtualPathRegex = regexp.MustCompile(`^(.*)\.CUE_TRACK\.(\d+)-(\d+)\.mp3$`)

// ParseVirtualPath decodes a cue virtual path back into its source and
// time range, the inverse of VirtualPath. ok is false if path isn't a
// cue-encoded virtual path.
func ParseVirtualPath(path string) (source string, start, end int, ok bool) {
	m := virtualPathRegex.FindStringSubmatch(path)
	if len(m) != 4 {
		return "", 0, 0, false
	}
	start, err1 := strconv.Atoi(m[2])
	end, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil {
		return "", 0, 0, false
	}
	return m[1], start, end, true
}

// Splitter is the out-of-scope external collaborator that turns an
// Entry into an actual audio segment on disk (e.g. by shelling out to an
// audio tool). The analysis pipeline only needs the interface.
type Splitter interface {
	// Split materializes entry's segment of source under dir and
	// returns the resulting file path.
	Split(source string, entry Entry, dir string) (string, error)
}

// ReadCueSheet parses a .cue file into its track entries. Timestamps in
// cue sheets are MM:SS:FF (frames, 75 per second); this parser truncates
// to whole seconds (frames are dropped) since nothing downstream needs
// frame accuracy.
func ReadCueSheet(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cue sheet %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var (
		source    string
		entries   []Entry
		current   *Entry
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "FILE "):
			source = parseQuoted(line)

		case strings.HasPrefix(line, "TRACK "):
			if current != nil {
				entries = append(entries, *current)
			}
			current = &Entry{Source: source}

		case strings.HasPrefix(line, "TITLE ") && current != nil:
			current.Title = parseQuoted(line)

		case strings.HasPrefix(line, "PERFORMER ") && current != nil:
			current.Performer = parseQuoted(line)

		case strings.HasPrefix(line, "INDEX 01 ") && current != nil:
			secs, err := parseCueTimestamp(strings.TrimPrefix(line, "INDEX 01 "))
			if err != nil {
				return nil, fmt.Errorf("cue sheet %s: %w", path, err)
			}
			current.StartSecs = secs
		}
	}
	if current != nil {
		entries = append(entries, *current)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cue sheet %s: %w", path, err)
	}

	// Each entry's end is the next entry's start; the last entry's end
	// stays 0 (to end of file) for the caller to resolve.
	for i := 0; i < len(entries)-1; i++ {
		entries[i].EndSecs = entries[i+1].StartSecs
	}

	return entries, nil
}

func parseQuoted(line string) string {
	start := strings.IndexByte(line, '"')
	end := strings.LastIndexByte(line, '"')
	if start < 0 || end <= start {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			return fields[len(fields)-1]
		}
		return ""
	}
	return line[start+1 : end]
}

func parseCueTimestamp(ts string) (int, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid cue timestamp %q", ts)
	}
	mm, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid cue timestamp %q: %w", ts, err)
	}
	ss, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid cue timestamp %q: %w", ts, err)
	}
	return mm*60 + ss, nil
}
