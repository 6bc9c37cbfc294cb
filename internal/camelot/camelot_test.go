package camelot

import "testing"

func TestParseKeyRoundTrip(t *testing.T) {
	cases := []struct {
		key  string
		code Code
	}{
		{"BM", Code{1, 'B'}},
		{"G#m", Code{1, 'A'}},
		{"Abm", Code{1, 'A'}},
		{"CM", Code{8, 'B'}},
		{"Am", Code{8, 'A'}},
		{"Dbm", Code{12, 'A'}},
	}
	for _, c := range cases {
		got, ok := ParseKey(c.key)
		if !ok {
			t.Fatalf("ParseKey(%q): not recognized", c.key)
		}
		if got != c.code {
			t.Fatalf("ParseKey(%q) = %v, want %v", c.key, got, c.code)
		}
	}
}

func TestCompatibleSetSize(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for _, letter := range []byte{'A', 'B'} {
			c := Code{n, letter}
			set := CompatibleSet(c)
			seen := map[Code]bool{}
			for _, s := range set {
				seen[s] = true
			}
			if len(seen) != 4 {
				t.Fatalf("CompatibleSet(%v) has %d distinct codes, want 4: %v", c, len(seen), set)
			}
			if !seen[c] {
				t.Fatalf("CompatibleSet(%v) does not contain itself", c)
			}
		}
	}
}

func TestCompatibleSelf(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for _, letter := range []byte{'A', 'B'} {
			c := Code{n, letter}
			if !Compatible(c, c) {
				t.Fatalf("Compatible(%v, %v) = false, want true", c, c)
			}
		}
	}
}

func TestCompatibleWheelWrap(t *testing.T) {
	// 1A should be compatible with 12A and 2A (wheel wraps at 12/1).
	if !Compatible(Code{1, 'A'}, Code{12, 'A'}) {
		t.Fatal("1A should be compatible with 12A")
	}
	if !Compatible(Code{1, 'A'}, Code{2, 'A'}) {
		t.Fatal("1A should be compatible with 2A")
	}
	if !Compatible(Code{1, 'A'}, Code{1, 'B'}) {
		t.Fatal("1A should be compatible with its relative major 1B")
	}
	if Compatible(Code{1, 'A'}, Code{6, 'A'}) {
		t.Fatal("1A should not be compatible with 6A")
	}
}
