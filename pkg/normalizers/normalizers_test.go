package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name  string
		fn    Normalizer
		input string
		want  string
	}{
		{"trim", Trim, "  a@x.com \t", "a@x.com"},
		{"lowercase", Lowercase, "A@X.COM", "a@x.com"},
		{"email", NormalizeEmail, "  Doc@Hill.Valley ", "doc@hill.valley"},
		{"phone keeps plus", NormalizePhone, " +1 (555) 010-2030", "+15550102030"},
		{"phone drops inner plus", NormalizePhone, "12+34", "1234"},
		{"digits only", DigitsOnly, "+1-555", "1555"},
		{"remove whitespace", RemoveWhitespace, "12 34\t56", "123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.input))
		})
	}
}

func TestNewChain(t *testing.T) {
	chain, err := NewChain("trim", "lowercase")
	require.NoError(t, err)
	assert.Equal(t, "mcfly@hill.valley", chain.Apply("  McFly@Hill.Valley "))

	empty, err := NewChain()
	require.NoError(t, err)
	assert.Equal(t, " as-is ", empty.Apply(" as-is "))

	_, err = NewChain("trim", "soundex")
	assert.ErrorContains(t, err, "soundex")
}

func TestNames(t *testing.T) {
	assert.Contains(t, Names(), "nphone")
	assert.Len(t, Names(), len(registry))
}
