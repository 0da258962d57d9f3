// Package compose fills message templates with per-recipient values.
package compose

import (
	"regexp"
	"strings"
)

var tokenRegexp = regexp.MustCompile(`\{\{\s*([\p{L}\p{N}_.\- ]+?)\s*\}\}`)

// Render replaces {{key}} tokens in tmpl with values[key]. Keys match
// case-sensitively after trimming whitespace; tokens without a value are
// left as written.
func Render(tmpl string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return tokenRegexp.ReplaceAllStringFunc(tmpl, func(tok string) string {
		key := tokenRegexp.FindStringSubmatch(tok)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return tok
	})
}

// Tokens lists the distinct keys referenced by tmpl in order of first use.
func Tokens(tmpl string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, m := range tokenRegexp.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// Missing returns the keys referenced by tmpl that values does not supply.
func Missing(tmpl string, values map[string]string) []string {
	var out []string
	for _, k := range Tokens(tmpl) {
		if _, ok := values[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
