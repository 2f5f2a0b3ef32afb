package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/internal/address/models"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"abbreviations expand", "12 Main St.", "12 main street"},
		{"directions expand", "N Park Rd", "north park road"},
		{"whitespace collapses", "  Flat   4B \t Tower ", "flat 4b tower"},
		{"kept punctuation", "Plot #7/2-A", "plot #7/2-a"},
		{"dropped punctuation", "O'Neil, Ave!", "o neil avenue"},
		{"diacritics fold", "Cañón Lane", "canon lane"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input))
		})
	}
}

func TestPostalCode(t *testing.T) {
	assert.Equal(t, "560001", PostalCode(" 560 001 "))
	assert.Equal(t, "sw1a1aa", PostalCode("SW1A 1AA"))
}

func TestAddress(t *testing.T) {
	raw := models.Components{
		HouseNumber: "221B",
		Street:      "Baker St",
		Locality:    "Marylebone",
		State:       "Karnataka",
		PostalCode:  "560 001",
	}

	normalized, canonical, digest := Address(raw)
	assert.Equal(t, "221b, baker street, marylebone, karnataka, 560001", canonical)
	assert.Len(t, digest, 64)

	t.Run("idempotent on normalized input", func(t *testing.T) {
		again, canonicalAgain, digestAgain := Address(normalized)
		assert.Equal(t, normalized, again)
		assert.Equal(t, canonical, canonicalAgain)
		assert.Equal(t, digest, digestAgain)
	})

	t.Run("formatting variants share a digest", func(t *testing.T) {
		_, _, other := Address(models.Components{
			HouseNumber: " 221b ",
			Street:      "BAKER  STREET",
			Locality:    "marylebone",
			State:       "karnataka",
			PostalCode:  "560001",
		})
		assert.Equal(t, digest, other)
	})

	t.Run("digest is stable across calls", func(t *testing.T) {
		require.Equal(t, Digest(canonical), Digest(canonical))
		assert.NotEqual(t, Digest(canonical), Digest(canonical+" "))
	})
}
