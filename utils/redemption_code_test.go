package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRedemptionCodeBounds(t *testing.T) {
	seenLengths := map[int]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateRedemptionCode(6, 8)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(code), 6)
		assert.LessOrEqual(t, len(code), 8)
		seenLengths[len(code)] = true

		for _, c := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, c), "unexpected character %q in code %s", c, code)
		}
	}
	// With 200 draws every length in [6,8] should have come up.
	assert.Len(t, seenLengths, 3)
}

func TestGenerateRedemptionCodeFixedLength(t *testing.T) {
	code, err := GenerateRedemptionCode(6, 6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestGenerateRedemptionCodeInvalidBounds(t *testing.T) {
	_, err := GenerateRedemptionCode(0, 8)
	assert.Error(t, err)

	_, err = GenerateRedemptionCode(8, 6)
	assert.Error(t, err)
}

func TestCodeAlphabetExcludesAmbiguousCharacters(t *testing.T) {
	for _, c := range "0O1I" {
		assert.False(t, strings.ContainsRune(codeAlphabet, c))
	}
}
