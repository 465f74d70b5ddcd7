// Package urlcanon rewrites raw request targets into canonical paths.
package urlcanon

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Root is what an empty canonical path is stored as.
const Root = "/"

// Canonicalize reduces a raw request target to a lowercase, percent-encoded
// path. It never fails: input with nothing usable yields "".
//
// Query strings, fragments and ;params are dropped. The result never contains
// "--" or "//", and never starts or ends with "-" or ends with "/".
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	path := splitPath(percentDecode(raw))

	path = collapse(path, '/')
	path = strings.TrimRight(path, "/")
	path = strings.ReplaceAll(path, "|", "-")
	path = hyphenateSpaces(path)
	path = collapse(path, '-')
	path = strings.Map(keepRune, path)
	path = strings.ToLower(tidy(path))

	return escape(path)
}

// Column canonicalizes every url in place and rewrites empty results to Root.
// It returns how many were rewritten.
func Column(urls []string) int {
	rewritten := 0
	for i, u := range urls {
		c := Canonicalize(u)
		if c == "" {
			c = Root
			rewritten++
		}
		urls[i] = c
	}
	return rewritten
}

// tidy re-applies the structural rules until nothing changes. Dropping
// characters can bring separators or hyphens next to each other again.
func tidy(path string) string {
	for {
		next := collapse(path, '/')
		next = strings.TrimRight(next, "/")
		next = collapse(next, '-')
		next = strings.Trim(next, "-")
		if next == path {
			return path
		}
		path = next
	}
}

// collapse replaces runs of c with a single c.
func collapse(s string, c byte) string {
	double := string([]byte{c, c})
	if !strings.Contains(s, double) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// hyphenateSpaces turns each run of whitespace into one hyphen.
func hyphenateSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if isSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// isSpace matches Unicode whitespace plus the ASCII information separators,
// which str.isspace-style matchers also treat as space.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// keepRune drops everything outside word characters, '-', '/' and the
// U+0080..U+FFFF block. Non-Latin path segments survive.
func keepRune(r rune) rune {
	switch {
	case r == '-' || r == '/' || r == '_':
		return r
	case r < utf8.RuneSelf:
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return -1
	case r <= 0xFFFF:
		return r
	case unicode.IsLetter(r) || unicode.IsNumber(r):
		return r
	default:
		return -1
	}
}
