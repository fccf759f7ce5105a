// Package env expands ${env.KEY} references in configuration text.
package env

import (
	"os"
	"strings"
	"unicode"
)

const prefix = "${env."

// LookupFunc resolves an environment variable; override in tests.
var LookupFunc = os.Getenv

// Expand replaces every ${env.KEY} in text with the value of KEY, or "" when
// unset. Keys may hold letters, digits and '_' only; a malformed reference is
// kept literally and an unterminated one ends expansion.
func Expand(text string) string {
	if !strings.Contains(text, prefix) {
		return text
	}
	var out strings.Builder
	rest := text
	for {
		start := strings.Index(rest, prefix)
		if start < 0 {
			out.WriteString(rest)
			return out.String()
		}
		out.WriteString(rest[:start])
		keyStart := start + len(prefix)
		end := strings.IndexByte(rest[keyStart:], '}')
		if end < 0 {
			out.WriteString(rest[start:])
			return out.String()
		}
		key := rest[keyStart : keyStart+end]
		if !isKey(key) {
			out.WriteString(prefix)
			rest = rest[keyStart:]
			continue
		}
		out.WriteString(LookupFunc(key))
		rest = rest[keyStart+end+1:]
	}
}

func isKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
