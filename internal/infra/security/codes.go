package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strconv"
)

const maxCodeLength = 18

// GenerateNumericCode returns a uniformly random integer in [10^(n-1), 10^n-1]
// rendered as an n-digit string, so codes never start with zero.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 || length > maxCodeLength {
		return "", fmt.Errorf("code length must be between 1 and %d", maxCodeLength)
	}

	low := pow10(length - 1)
	if length == 1 {
		low = 0
	}
	span := pow10(length) - low

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	return strconv.FormatInt(low+n.Int64(), 10), nil
}

// CodesEqual compares two codes in constant time.
func CodesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
