package phonetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoundex(t *testing.T) {
	cases := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Rubin":    "R150",
		"Ashcraft": "A261",
		"Tymczak":  "T522",
		"Pfister":  "P236",
		"Lee":      "L000",
		"":         "",
		"123":      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Soundex(in), "Soundex(%q)", in)
	}
}

func TestSoundexIgnoresCaseAndPunctuation(t *testing.T) {
	assert.Equal(t, Soundex("O'Brien"), Soundex("obrien"))
}

func TestJaroWinkler(t *testing.T) {
	assert.InDelta(t, 0.961, JaroWinkler("martha", "marhta"), 0.001)
	assert.InDelta(t, 0.840, JaroWinkler("dwayne", "duane"), 0.001)
	assert.InDelta(t, 0.813, JaroWinkler("dixon", "dicksonx"), 0.001)
	assert.Equal(t, 1.0, JaroWinkler("priya", "priya"))
	assert.Equal(t, 0.0, JaroWinkler("abc", ""))
	assert.Equal(t, 0.0, JaroWinkler("abc", "xyz"))
}

func TestJaroIsSymmetric(t *testing.T) {
	assert.InDelta(t, Jaro("kumar", "kumaar"), Jaro("kumaar", "kumar"), 1e-12)
}
