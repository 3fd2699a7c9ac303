package kithttp

import (
	"crypto/rand"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const digits = "0123456789"

// randomDigits returns a random string of n decimal digits. Connection ids
// default to ten of these; on the vanishingly unlikely failure of the system
// randomness source it falls back to a UUID-derived string.
func randomDigits(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		u := uuid.New()
		for i := range buf {
			buf[i] = digits[int(u[i%len(u)])%len(digits)]
		}
		return string(buf)
	}
	for i, b := range buf {
		buf[i] = digits[int(b)%len(digits)]
	}
	return string(buf)
}

// lowerFirst lowercases the first rune of s.
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// camelToPath turns a Go method name prefix into a URL path: each upper-case
// hump starts a new segment. "UserInfo" becomes "/user/info".
func camelToPath(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('/')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return "/" + b.String()
}
