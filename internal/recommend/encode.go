package recommend

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/stojg/musim/internal/cuesplit"
)

// EncodeOptions controls how an accepted track's catalog path is
// rendered for the HTTP response (§4.6 step 9).
type EncodeOptions struct {
	MPath      string // library-root prefix to prepend, if any
	URLEncode  bool
	FilePrefix bool
}

// EncodePath renders path per opts. Cue virtual paths are re-encoded to
// "<source>#start-end" before any prefixing/escaping.
func EncodePath(trackPath string, opts EncodeOptions) string {
	p := trackPath
	if source, start, end, ok := cuesplit.ParseVirtualPath(p); ok {
		p = source + "#" + strconv.Itoa(start) + "-" + strconv.Itoa(end)
	}

	if opts.MPath != "" {
		p = path.Join(strings.TrimRight(opts.MPath, "/"), p)
	}
	if opts.URLEncode {
		p = url.PathEscape(p)
	}
	if opts.FilePrefix {
		p = "file://" + p
	}
	return p
}
