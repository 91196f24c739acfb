// File: dispatch/pattern.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Path pattern compilation. A pattern is a literal string, a
// parameterized string with `:name` segments, or an anchored regular
// expression (detected by a leading '^'). Compilation always anchors
// at the start; end-anchoring is applied only for terminal routes,
// since sub-dispatchers must match a prefix, not the whole path.
//
// Grounded on the token-to-regex compilation in
// highlevel/server.go's convertToRegex, adapted to keep ordered
// capture-name bookkeeping and the terminal/non-terminal anchor split
// the nested-dispatcher composition model requires.

package dispatch

import (
	"regexp"
	"strings"
)

// matcher is a compiled path pattern: a regex plus the ordered list of
// capture names it produces.
type matcher struct {
	re   *regexp.Regexp
	keys []string
}

// compilePattern compiles pattern into a matcher. terminal controls
// end-anchoring: true for ordinary routes (must match the whole path),
// false for nested-dispatcher mount points (must match only a prefix).
func compilePattern(pattern string, terminal bool) (*matcher, error) {
	var body string
	var keys []string

	if strings.HasPrefix(pattern, "^") {
		body = strings.TrimPrefix(pattern, "^")
		body = strings.TrimSuffix(body, "$")
	} else if containsParam(pattern) {
		body, keys = convertToRegex(pattern)
	} else {
		body = regexp.QuoteMeta(pattern)
	}

	expr := "^" + body
	if terminal {
		expr += "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, NewInvalidArgument("dispatch: invalid pattern " + pattern + ": " + err.Error())
	}
	return &matcher{re: re, keys: keys}, nil
}

// containsParam reports whether pattern has at least one `:name` segment.
func containsParam(pattern string) bool {
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, ":") && len(part) > 1 {
			return true
		}
	}
	return false
}

// convertToRegex converts a parameterized route (`/foo/:id`) into a
// regex body and the ordered parameter names its groups capture.
// `?` makes the capture group a single optional path segment. `+` and
// `*` are greedy multi-segment captures — one-or-more and zero-or-more
// whole `/`-separated segments respectively, not just one segment's
// worth of non-slash characters — so `:rest+` on `/foo/:rest+` matches
// `a/b/c` as well as `a`. An optional (`?` or `*`) segment includes its
// leading `/`, so `/foo/:id?` matches `/foo` with `id` absent.
func convertToRegex(pattern string) (regex string, keys []string) {
	var b strings.Builder

	for _, part := range strings.Split(pattern, "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ":") {
			name := part[1:]
			quant := ""
			if n := len(name); n > 0 {
				switch name[n-1] {
				case '?', '+', '*':
					quant = string(name[n-1])
					name = name[:n-1]
				}
			}
			keys = append(keys, name)
			switch quant {
			case "?":
				b.WriteString(`(?:/([^/]+))?`)
			case "+":
				b.WriteString(`/([^/]+(?:/[^/]+)*)`)
			case "*":
				b.WriteString(`(?:/([^/]+(?:/[^/]+)*))?`)
			default:
				b.WriteString(`/([^/]+)`)
			}
			continue
		}
		b.WriteString("/" + regexp.QuoteMeta(part))
	}
	regex = b.String()
	if !strings.HasPrefix(regex, "/") {
		// Leading optional segment: the bare root path also matches.
		regex = "(?:" + regex + "|/)"
	}
	return regex, keys
}

// match runs the matcher against path. On success it returns the
// captured parameters keyed by name (absent keys are omitted, not
// empty strings) and the prefix consumed (useful for non-terminal
// nested-dispatcher routes).
func (m *matcher) match(path string) (params map[string]string, consumed string, ok bool) {
	loc := m.re.FindStringSubmatchIndex(path)
	if loc == nil {
		return nil, "", false
	}
	consumed = path[loc[0]:loc[1]]

	if len(m.keys) == 0 {
		return nil, consumed, true
	}
	params = make(map[string]string, len(m.keys))
	for i, key := range m.keys {
		gi := 2 * (i + 1)
		if gi+1 >= len(loc) || loc[gi] < 0 {
			continue // unmatched optional key: absent, not empty string
		}
		params[key] = path[loc[gi]:loc[gi+1]]
	}
	return params, consumed, true
}
