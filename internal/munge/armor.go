package munge

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// Prefix and Suffix are the fixed ASCII markers bracketing the base64
// interior of a credential (spec §3). The suffix is advisory: decode
// locates it by a reverse scan but tolerates its absence.
const (
	Prefix = "MUNGE:"
	Suffix = ":"
)

// Armor base64-encodes raw (outer || mac || inner-wire) and brackets it
// with Prefix/Suffix, terminated with a newline.
func Armor(raw []byte) string {
	var b strings.Builder
	b.Grow(len(Prefix) + base64.StdEncoding.EncodedLen(len(raw)) + len(Suffix) + 1)
	b.WriteString(Prefix)
	b.WriteString(base64.StdEncoding.EncodeToString(raw))
	b.WriteString(Suffix)
	b.WriteByte('\n')
	return b.String()
}

// Unarmor reverses Armor: it skips leading whitespace, requires Prefix,
// locates Suffix by a reverse scan (tolerating its absence), and
// base64-decodes the interior. Whitespace inside the base64 region is
// tolerated; any other non-alphabet byte is a decode error.
func Unarmor(s string) ([]byte, error) {
	s = strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(s, Prefix) {
		return nil, NewError(BadCred, "missing credential prefix")
	}
	interior := s[len(Prefix):]
	interior = strings.TrimRight(interior, " \t\r\n")
	if idx := strings.LastIndex(interior, Suffix); idx >= 0 {
		interior = interior[:idx]
	}
	interior = stripWhitespace(interior)
	raw, err := decodeBase64Lenient(interior)
	if err != nil {
		return nil, WrapError(BadCred, "malformed base64", err)
	}
	return raw, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// decodeBase64Lenient accepts at most two '=' padding characters and fails
// with a distinct error on any other non-alphabet byte, matching the
// base64_decode contract of spec §4.1.
func decodeBase64Lenient(s string) ([]byte, error) {
	pad := 0
	for i := len(s) - 1; i >= 0 && s[i] == '='; i-- {
		pad++
	}
	if pad > 2 {
		return nil, NewError(BadCred, "too many base64 padding characters")
	}
	body := s[:len(s)-pad]
	if bytes.ContainsAny([]byte(body), "=") {
		return nil, NewError(BadCred, "padding character inside base64 body")
	}
	return base64.StdEncoding.DecodeString(s)
}
