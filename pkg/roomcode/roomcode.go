// Package roomcode generates the short human-shareable codes that
// identify rooms. The alphabet excludes easily-confused characters
// (I, O, 0, 1) so codes survive being read out loud.
package roomcode

import (
	"crypto/rand"
	"strings"
)

const (
	Length   = 6
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func Generate() string {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		// no entropy source means no usable code
		panic("roomcode: " + err.Error())
	}

	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}

	return string(buf)
}

// Normalize maps user input to the canonical form: codes are
// case-insensitive at entry.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsValid(code string) bool {
	if len(code) != Length {
		return false
	}

	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return false
		}
	}

	return true
}
