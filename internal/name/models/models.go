package models

import "fmt"

// Role scopes a name to the frequency corpus it is checked against.
type Role string

const (
	RoleFirstName    Role = "first_name"
	RoleLastName     Role = "last_name"
	RoleParentName   Role = "parent_name"
	RoleGuardianName Role = "guardian_name"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleFirstName, RoleLastName, RoleParentName, RoleGuardianName:
		return r, nil
	default:
		return "", fmt.Errorf("unknown name role %q", s)
	}
}

// Corpora returns the frequency tables consulted for r, in order. Parent and
// guardian names fall back to the first and last name corpora.
func (r Role) Corpora() []Role {
	switch r {
	case RoleParentName, RoleGuardianName:
		return []Role{r, RoleFirstName, RoleLastName}
	default:
		return []Role{r}
	}
}

// ValidationResult buckets a name score.
type ValidationResult string

const (
	ResultPassed   ValidationResult = "passed"
	ResultFlagged  ValidationResult = "flagged"
	ResultRejected ValidationResult = "rejected"
)

const (
	PassThreshold = 0.8
	FlagThreshold = 0.5
)

// ResultForScore maps a composite score onto its bucket.
func ResultForScore(score float64) ValidationResult {
	switch {
	case score >= PassThreshold:
		return ResultPassed
	case score >= FlagThreshold:
		return ResultFlagged
	default:
		return ResultRejected
	}
}

// Rejection flags. Any of these short-circuits scoring to zero.
const (
	FlagInvalidLength    = "invalid_length"
	FlagContainsDigits   = "contains_digits"
	FlagInvalidCharacter = "invalid_characters"
	FlagRepeatedChars    = "repeated_characters"
	FlagJunkPattern      = "junk_pattern"
	FlagNoConsonant      = "no_consonant"
	FlagNoVowel          = "no_vowel"
	FlagVowelRatio       = "vowel_ratio"
	FlagLowEntropy       = "low_entropy"
	FlagHighEntropy      = "high_entropy"
)

// Advisory flags attached to names that were scored.
const (
	FlagUncommonNgrams   = "uncommon_ngrams"
	FlagNotInDictionary  = "not_in_dictionary"
	FlagFuzzyMatch       = "fuzzy_dictionary_match"
	FlagUnusualTokenSize = "unusual_token_count"
)

// Result is the outcome of ValidateName.
type Result struct {
	Name             string           `json:"name"`
	Role             Role             `json:"role"`
	Score            float64          `json:"score"`
	Valid            bool             `json:"valid"`
	ValidationResult ValidationResult `json:"validation_result"`
	Flags            []string         `json:"flags"`
	PhoneticCode     string           `json:"phonetic_code"`
	Matches          []Match          `json:"matches,omitempty"`
}

// Match records how one token was found in the frequency corpus.
type Match struct {
	Token      string  `json:"token"`
	Candidate  string  `json:"candidate"`
	Corpus     Role    `json:"corpus"`
	Similarity float64 `json:"similarity"`
	Exact      bool    `json:"exact"`
}

// Frequency is one row of the name-frequency table.
type Frequency struct {
	Role      Role
	Name      string
	Frequency int
}
