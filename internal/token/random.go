package token

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

// RandomValue generates a token value of the given length from an
// alphanumeric alphabet.
func RandomValue(length int) (string, error) {
	if length <= 0 || length > MaxValueLength {
		return "", fmt.Errorf("token length must be between 1 and %d", MaxValueLength)
	}

	// Reject bytes past the largest multiple of len(alphabet) to avoid modulo bias.
	const limit = 256 - 256%len(alphabet)

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// MaskValue hides all but the first characters of a token value for logging.
func MaskValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:8] + "***"
}
