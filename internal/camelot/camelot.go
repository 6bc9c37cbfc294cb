// Package camelot provides the static Camelot-wheel key map and the
// compatibility rule the recommendation pipeline uses to filter
// candidates by musical key.
package camelot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Code is a Camelot wheel coordinate, "<1..12><A|B>".
type Code struct {
	Number int
	Letter byte // 'A' (minor) or 'B' (major)
}

// String renders the code in its canonical form, e.g. "8A".
func (c Code) String() string {
	return fmt.Sprintf("%d%c", c.Number, c.Letter)
}

var codeRegex = regexp.MustCompile(`^(\d{1,2})([AB])$`)

// ParseCode parses a canonical Camelot string like "8A" or "12B".
func ParseCode(s string) (Code, bool) {
	m := codeRegex.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if len(m) != 3 {
		return Code{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > 12 {
		return Code{}, false
	}
	return Code{Number: n, Letter: m[2][0]}, true
}

// keyEntry pairs every enharmonic spelling of a key with its Camelot code.
type keyEntry struct {
	camelot Code
	major   string // canonical "<Root>M" spelling, e.g. "BM"
	minor   string // canonical "<root>m" spelling, e.g. "G#m"
}

// wheel is the standard 12-point Camelot wheel: relative major/minor
// pairs share a number, the letter distinguishes mode.
var wheel = []keyEntry{
	{Code{1, 'A'}, "BM", "G#m"},
	{Code{2, 'A'}, "F#M", "D#m"},
	{Code{3, 'A'}, "DbM", "A#m"},
	{Code{4, 'A'}, "AbM", "Fm"},
	{Code{5, 'A'}, "EbM", "Cm"},
	{Code{6, 'A'}, "BbM", "Gm"},
	{Code{7, 'A'}, "FM", "Dm"},
	{Code{8, 'A'}, "CM", "Am"},
	{Code{9, 'A'}, "GM", "Em"},
	{Code{10, 'A'}, "DM", "Bm"},
	{Code{11, 'A'}, "AM", "F#m"},
	{Code{12, 'A'}, "EM", "C#m"},
}

// enharmonic lists alternate (flat/sharp) spellings that normalize to a
// canonical spelling before lookup.
var enharmonic = map[string]string{
	"C#M": "DbM", "D#M": "EbM", "GbM": "F#M", "G#M": "AbM", "A#M": "BbM",
	"Dbm": "C#m", "Ebm": "D#m", "F#m": "F#m", "Gbm": "F#m", "G#m": "G#m",
	"Abm": "G#m", "A#m": "A#m", "Bbm": "A#m",
}

var keyToCode = map[string]Code{}
var codeToMajor = map[Code]string{}
var codeToMinor = map[Code]string{}

func init() {
	for _, e := range wheel {
		// Each wheel entry's major and minor key share its number; the
		// letter marks the mode: 'B' for major, 'A' for minor.
		keyToCode[e.major] = Code{e.camelot.Number, 'B'}
		keyToCode[e.minor] = Code{e.camelot.Number, 'A'}
		codeToMajor[Code{e.camelot.Number, 'B'}] = e.major
		codeToMinor[Code{e.camelot.Number, 'A'}] = e.minor
	}
	for alt, canon := range enharmonic {
		if code, ok := keyToCode[canon]; ok {
			keyToCode[alt] = code
		}
	}
}

// ParseKey resolves a musical key string (e.g. "G#m", "BM", "Dbm") to its
// Camelot code. Both sharp and flat spellings are recognized.
func ParseKey(key string) (Code, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Code{}, false
	}
	if c, ok := ParseCode(key); ok {
		return c, true
	}
	if c, ok := keyToCode[key]; ok {
		return c, true
	}
	return Code{}, false
}

// KeyName returns the canonical musical spelling for a Camelot code.
func KeyName(c Code) (string, bool) {
	if c.Letter == 'B' {
		if name, ok := codeToMajor[c]; ok {
			return name, true
		}
		return "", false
	}
	if name, ok := codeToMinor[c]; ok {
		return name, true
	}
	return "", false
}

func wrap(n int) int {
	n = ((n - 1) % 12)
	if n < 0 {
		n += 12
	}
	return n + 1
}

// CompatibleSet returns the four Camelot codes considered mixable from c:
// itself, its relative major/minor (same number, other letter), and its
// two neighbors one step around the wheel (same letter).
func CompatibleSet(c Code) []Code {
	other := byte('B')
	if c.Letter == 'B' {
		other = 'A'
	}
	return []Code{
		c,
		{c.Number, other},
		{wrap(c.Number - 1), c.Letter},
		{wrap(c.Number + 1), c.Letter},
	}
}

// Compatible reports whether cand is in seed's compatible set.
func Compatible(seed, cand Code) bool {
	for _, c := range CompatibleSet(seed) {
		if c == cand {
			return true
		}
	}
	return false
}
