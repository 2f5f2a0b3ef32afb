package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntropy(t *testing.T) {
	assert.Zero(t, entropy([]rune("aaaa")))
	assert.InDelta(t, 1.0, entropy([]rune("abab")), 1e-9)
	assert.InDelta(t, 2.0, entropy([]rune("abcd")), 1e-9)
}

func TestEntropyCheckBands(t *testing.T) {
	assert.Equal(t, "low_entropy", entropyCheck([]rune("abababab"), 0.5))
	assert.Empty(t, entropyCheck([]rune("abab"), 0.5), "short names are not held to the lower bound")
	assert.Equal(t, "high_entropy", entropyCheck([]rune("abcdefghijklmnopqrstuvwxy"), 0.5))
	assert.Empty(t, entropyCheck([]rune("priyasharma"), ngramShare([]string{"priyasharma"})))
}

// Short noise cannot reach the absolute bound; all-distinct letters with
// no common n-grams are rejected instead.
func TestEntropyCheckShortNoise(t *testing.T) {
	noise := []string{"qzxuvjwo"}
	assert.Less(t, entropy(letterStream(noise)), maxEntropy)
	assert.Zero(t, ngramShare(noise))
	assert.Equal(t, "high_entropy", entropyCheck(letterStream(noise), ngramShare(noise)))

	for _, name := range [][]string{{"fitzgerald"}, {"dmitry", "kuznetsov"}, {"jackson", "brightwolf"}} {
		assert.Empty(t, entropyCheck(letterStream(name), ngramShare(name)), name)
	}
	assert.Empty(t, entropyCheck([]rune("qzxuvjw"), 0), "below the noise length")
}

func TestTokensFoldDiacritics(t *testing.T) {
	assert.Equal(t, []string{"jose", "obrien"}, tokens("José O'Brien"))
	assert.Equal(t, []string{"mary", "jane"}, tokens("Mary-Jane"))
}

func TestNgramShare(t *testing.T) {
	assert.InDelta(t, 1.0, ngramShare([]string{"john"}), 1e-9)
	assert.Zero(t, ngramShare([]string{"x"}))
	assert.Less(t, ngramShare([]string{"qzvx"}), 0.2)
}

func TestPhoneticCheckExemptsInitials(t *testing.T) {
	flag, _ := phoneticCheck([]string{"k", "ramesh"})
	assert.Empty(t, flag)
}
