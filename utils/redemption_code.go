package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet deliberately drops 0/O/1/I so codes survive being read out
// loud over a bar. Codes are matched case-insensitively, so only upper case
// is generated.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateRedemptionCode returns a random code with a length drawn from
// [minLen, maxLen]. Collisions among live tokens are handled by the caller
// (insert-if-absent, regenerate on conflict).
func GenerateRedemptionCode(minLen, maxLen int) (string, error) {
	if minLen < 1 || maxLen < minLen {
		return "", fmt.Errorf("invalid code length bounds [%d,%d]", minLen, maxLen)
	}

	length := minLen
	if maxLen > minLen {
		span, err := rand.Int(rand.Reader, big.NewInt(int64(maxLen-minLen+1)))
		if err != nil {
			return "", fmt.Errorf("failed to pick code length: %w", err)
		}
		length = minLen + int(span.Int64())
	}

	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out), nil
}
