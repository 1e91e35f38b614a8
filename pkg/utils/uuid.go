package utils

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID returns a random RFC 4122 v4 identifier.
func GenerateUUID() string {
	return uuid.NewString()
}

// RandomName returns n random lowercase ASCII letters.
func RandomName(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + rand.Intn(26)))
	}
	return b.String()
}
