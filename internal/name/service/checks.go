package service

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"rollguard/internal/name/models"
)

const (
	minLength = 2
	maxLength = 60

	minEntropyLetters = 6
	minEntropy        = 1.5
	maxEntropy        = 4.3

	// noiseMinLetters and noiseEntropyMargin bound the near-maximal entropy
	// test for streams too short to reach maxEntropy.
	noiseMinLetters    = 8
	noiseEntropyMargin = 0.25

	maxVowelRatio = 3.0
)

var junkPatterns = []string{
	"test", "asdf", "qwerty", "dummy", "sample", "fake", "null", "none",
	"xxx", "zzz", "abc", "unknown", "na",
}

// junkExact are rejected only when they are the whole name, since they
// also begin real names.
var junkExact = map[string]bool{"abc": true, "na": true, "none": true, "unknown": true}

// ruleCheck applies the length, character set, repetition and junk rules.
// It returns the rejecting flag or "".
func ruleCheck(name string) string {
	letters := 0
	for _, r := range name {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if n := len([]rune(name)); n < minLength || n > maxLength || letters < minLength {
		return models.FlagInvalidLength
	}

	for _, r := range name {
		if unicode.IsDigit(r) {
			return models.FlagContainsDigits
		}
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' && r != '.' {
			return models.FlagInvalidCharacter
		}
	}

	runes := []rune(strings.ToLower(name))
	for i := 2; i < len(runes); i++ {
		if unicode.IsLetter(runes[i]) && runes[i] == runes[i-1] && runes[i] == runes[i-2] {
			return models.FlagRepeatedChars
		}
	}

	compact := strings.Join(tokens(name), "")
	for _, junk := range junkPatterns {
		if junkExact[junk] {
			if compact == junk {
				return models.FlagJunkPattern
			}
			continue
		}
		if strings.HasPrefix(compact, junk) || strings.HasSuffix(compact, junk) {
			return models.FlagJunkPattern
		}
	}
	return ""
}

// phoneticCheck requires a consonant in every token of two or more letters,
// a vowel (y included) in every token longer than two letters and a bounded
// vowel:consonant ratio. Single-letter initials are exempt.
func phoneticCheck(toks []string) (flag string, penalty float64) {
	vowels, consonants := 0, 0
	for _, tok := range toks {
		tv, tc, ty := 0, 0, 0
		for _, r := range tok {
			switch {
			case isVowel(r):
				tv++
			case r == 'y':
				ty++
			case unicode.IsLetter(r):
				tc++
			}
		}
		vowels += tv
		consonants += tc + ty
		n := len([]rune(tok))
		if n < 2 {
			continue
		}
		if tc+ty == 0 {
			return models.FlagNoConsonant, 0
		}
		if n > 2 && tv+ty == 0 {
			return models.FlagNoVowel, 0
		}
	}
	if consonants == 0 || float64(vowels)/float64(consonants) > maxVowelRatio {
		return models.FlagVowelRatio, 0
	}

	switch ratio := float64(vowels) / float64(consonants); {
	case ratio > 2 || ratio < 0.15:
		return "", 0.5
	case ratio > 1.5 || ratio < 0.25:
		return "", 0.2
	default:
		return "", 0
	}
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// entropy is the Shannon entropy in bits of the letter distribution.
func entropy(letters []rune) float64 {
	if len(letters) == 0 {
		return 0
	}
	counts := map[rune]int{}
	for _, r := range letters {
		counts[r]++
	}
	total := float64(len(letters))
	h := 0.0
	for _, c := range counts {
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}

// entropyCheck rejects repetitive and random letter streams. A stream of n
// letters carries at most log2(n) bits, so maxEntropy only binds past about
// 20 letters. Shorter streams count as noise when nearly every letter is
// distinct and share is zero, meaning none of their n-grams are common in
// names.
func entropyCheck(letters []rune, share float64) string {
	h := entropy(letters)
	n := len(letters)
	if n >= minEntropyLetters && h < minEntropy {
		return models.FlagLowEntropy
	}
	if h > maxEntropy {
		return models.FlagHighEntropy
	}
	if n >= noiseMinLetters && share == 0 && h >= math.Log2(float64(n))-noiseEntropyMargin {
		return models.FlagHighEntropy
	}
	return ""
}

// tokens folds diacritics, lower-cases name and splits it on spaces, hyphens
// and periods. Apostrophes are dropped so O'Brien becomes obrien.
func tokens(name string) []string {
	lower := strings.ToLower(strings.ReplaceAll(fold(name), "'", ""))
	return strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '-' || r == '.'
	})
}

func letterStream(toks []string) []rune {
	var out []rune
	for _, tok := range toks {
		for _, r := range tok {
			if unicode.IsLetter(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// diversity scores the share of distinct letters, saturating at one half.
func diversity(letters []rune) float64 {
	if len(letters) == 0 {
		return 0
	}
	distinct := map[rune]struct{}{}
	for _, r := range letters {
		distinct[r] = struct{}{}
	}
	return math.Min(1, float64(len(distinct))/float64(len(letters))/0.5)
}

func lengthScore(letters int) float64 {
	switch {
	case letters >= 3 && letters <= 25:
		return 1
	case letters == 2:
		return 0.6
	default:
		return 0.7
	}
}

func tokenCountScore(n int) float64 {
	switch {
	case n >= 1 && n <= 3:
		return 1
	case n == 4:
		return 0.7
	default:
		return 0.4
	}
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
