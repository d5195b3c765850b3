// Package idgen builds human-readable document ids.
package idgen

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// SuffixLen is the length of the random suffix on community ids.
const SuffixLen = 4

// Slug lowercases name, keeps ASCII letters and digits, and turns runs of
// anything else into a single hyphen.
func Slug(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, c := range name {
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return "community"
	}
	return b.String()
}

// CommunityID returns "<slug>-<4 random base36 chars>".
func CommunityID(name string) string {
	return Slug(name) + "-" + RandomBase36(SuffixLen)
}

// RandomBase36 returns n characters drawn uniformly from [0-9a-z].
func RandomBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[randIntn(len(base36))]
	}
	return string(b)
}

func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}
