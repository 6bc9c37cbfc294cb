// Package httpapi exposes the recommendation engine and catalog
// introspection over HTTP, using gin the way the retrieved
// Conceptual-Machines-magda-api service wires its own handlers: one
// struct per handler group holding its collaborators, methods bound to
// gin.Context.
package httpapi

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// params reads one request's options from either a GET query string
// (repeated params, scalar strings) or a POST JSON body (typed
// scalars, native arrays) per the external interface's binding rule.
type params struct {
	body map[string]json.RawMessage
	c    *gin.Context
}

func newParams(c *gin.Context) *params {
	p := &params{c: c}
	if c.Request.Method == "POST" {
		var raw map[string]json.RawMessage
		if err := c.ShouldBindJSON(&raw); err == nil {
			p.body = raw
		}
	}
	return p
}

func (p *params) strings(key string) []string {
	if p.body != nil {
		if raw, ok := p.body[key]; ok {
			var one string
			if err := json.Unmarshal(raw, &one); err == nil {
				return []string{one}
			}
			var many []string
			if err := json.Unmarshal(raw, &many); err == nil {
				return many
			}
		}
		return nil
	}
	return p.c.QueryArray(key)
}

func (p *params) string(key, def string) string {
	if p.body != nil {
		if raw, ok := p.body[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				return s
			}
		}
		return def
	}
	if v := p.c.Query(key); v != "" {
		return v
	}
	return def
}

func (p *params) int(key string, def int) int {
	if p.body != nil {
		if raw, ok := p.body[key]; ok {
			var n int
			if err := json.Unmarshal(raw, &n); err == nil {
				return n
			}
		}
		return def
	}
	v := p.c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (p *params) bool01(key string, def bool) bool {
	if p.body != nil {
		if raw, ok := p.body[key]; ok {
			var b bool
			if err := json.Unmarshal(raw, &b); err == nil {
				return b
			}
			var n int
			if err := json.Unmarshal(raw, &n); err == nil {
				return n != 0
			}
		}
		return def
	}
	v := p.c.Query(key)
	if v == "" {
		return def
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func (p *params) float(key string, def float64) float64 {
	if p.body != nil {
		if raw, ok := p.body[key]; ok {
			var f float64
			if err := json.Unmarshal(raw, &f); err == nil {
				return f
			}
		}
		return def
	}
	v := p.c.Query(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// groups reads a "genregroups" option: a list of lists of strings,
// supplied natively in JSON bodies or as ";"-delimited groups
// ("rock,pop;classical") in a GET query for lack of a nested-array
// query syntax.
func (p *params) groups(key string) [][]string {
	if p.body != nil {
		if raw, ok := p.body[key]; ok {
			var groups [][]string
			if err := json.Unmarshal(raw, &groups); err == nil {
				return groups
			}
		}
		return nil
	}
	v := p.c.Query(key)
	if v == "" {
		return nil
	}
	var out [][]string
	for _, group := range strings.Split(v, ";") {
		out = append(out, strings.Split(group, ","))
	}
	return out
}
