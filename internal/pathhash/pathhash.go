// Package pathhash computes the path hash stored in binder hash tables.
package pathhash

import (
	"strings"
	"unicode/utf16"
)

// Compute returns the hash of name: lowercased, backslashes converted to
// forward slashes, a leading slash added if missing, then folded over its
// UTF-16 code units as h = h*37 + c with uint32 wraparound.
func Compute(name string) uint32 {
	s := strings.ReplaceAll(strings.ToLower(name), `\`, "/")
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	var h uint32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*37 + uint32(c)
	}
	return h
}
