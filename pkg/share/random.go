package share

import (
	"math/rand/v2"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultRandomLength is the length of the random part of generated names.
const DefaultRandomLength = 32

// RandomName returns prefix + n random alphanumerics + postfix.
// n <= 0 selects DefaultRandomLength.
func RandomName(prefix string, n int, postfix string) string {
	if n <= 0 {
		n = DefaultRandomLength
	}
	b := make([]byte, 0, len(prefix)+n+len(postfix))
	b = append(b, prefix...)
	for range n {
		b = append(b, alphabet[rand.IntN(len(alphabet))])
	}
	b = append(b, postfix...)
	return string(b)
}
