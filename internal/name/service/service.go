// Package service scores submitted personal names.
//
// A name passes through rule checks, a phonetic sanity check, an entropy
// band and an n-gram plausibility measure before it is looked up in the
// role's frequency corpus. Any of the first three stages can reject the name
// outright with a zero score.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"rollguard/internal/name/metrics"
	"rollguard/internal/name/models"
	"rollguard/internal/name/phonetic"
	"rollguard/internal/sentinel"
	dErrors "rollguard/pkg/domain-errors"
)

const (
	weightLength    = 0.10
	weightTokens    = 0.10
	weightPhonetic  = 0.15
	weightFrequency = 0.35
	weightDiversity = 0.15
	weightPattern   = 0.15

	// uncommonNgramShare is the n-gram share below which a name is flagged.
	uncommonNgramShare = 0.2
	// patternSaturation is the n-gram share that earns the full bonus.
	patternSaturation = 0.6

	defaultFuzzyThreshold = 0.85
	defaultCandidateLimit = 200
)

// Lookup is the role-scoped frequency corpus.
type Lookup interface {
	Frequency(ctx context.Context, role models.Role, name string) (int, error)
	Candidates(ctx context.Context, role models.Role, initial string, limit int) ([]string, error)
}

// Service scores names against the frequency corpus.
type Service struct {
	lookup         Lookup
	fuzzyThreshold float64
	candidateLimit int
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithFuzzyThreshold sets the Jaro-Winkler similarity a token needs to count
// as a dictionary match. Default is 0.85.
func WithFuzzyThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t <= 1 {
			s.fuzzyThreshold = t
		}
	}
}

// WithCandidateLimit bounds the fuzzy candidates considered per token.
func WithCandidateLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.candidateLimit = n
		}
	}
}

func New(lookup Lookup, opts ...Option) *Service {
	s := &Service{
		lookup:         lookup,
		fuzzyThreshold: defaultFuzzyThreshold,
		candidateLimit: defaultCandidateLimit,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateName scores name for role. Rejections are reported in the result;
// an error means the role is unknown or the corpus could not be read.
func (s *Service) ValidateName(ctx context.Context, name string, role models.Role) (*models.Result, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
	}

	trimmed := strings.Join(strings.Fields(name), " ")
	toks := tokens(trimmed)
	result := &models.Result{
		Name:  trimmed,
		Role:  role,
		Flags: []string{},
	}
	if len(toks) > 0 {
		result.PhoneticCode = phonetic.Soundex(toks[0])
	}

	if flag := ruleCheck(trimmed); flag != "" {
		return s.reject(result, flag), nil
	}
	flag, phoneticPenalty := phoneticCheck(toks)
	if flag != "" {
		return s.reject(result, flag), nil
	}
	letters := letterStream(toks)
	share := ngramShare(toks)
	if flag := entropyCheck(letters, share); flag != "" {
		return s.reject(result, flag), nil
	}

	if share < uncommonNgramShare {
		result.Flags = append(result.Flags, models.FlagUncommonNgrams)
	}

	freq, err := s.dictionaryScore(ctx, role, toks, result)
	if err != nil {
		return nil, err
	}
	if len(toks) > 3 {
		result.Flags = append(result.Flags, models.FlagUnusualTokenSize)
	}

	score := weightLength*lengthScore(len(letters)) +
		weightTokens*tokenCountScore(len(toks)) +
		weightPhonetic*(1-phoneticPenalty) +
		weightFrequency*freq +
		weightDiversity*diversity(letters) +
		weightPattern*math.Min(1, share/patternSaturation)

	result.Score = math.Round(math.Max(0, math.Min(1, score))*10000) / 10000
	result.ValidationResult = models.ResultForScore(result.Score)
	result.Valid = result.ValidationResult != models.ResultRejected
	if s.metrics != nil {
		s.metrics.IncValidation(string(role), string(result.ValidationResult))
	}
	return result, nil
}

func (s *Service) reject(result *models.Result, flag string) *models.Result {
	result.Score = 0
	result.Valid = false
	result.ValidationResult = models.ResultRejected
	result.Flags = append(result.Flags, flag)
	if s.metrics != nil {
		s.metrics.IncRejection(flag)
		s.metrics.IncValidation(string(result.Role), string(models.ResultRejected))
	}
	return result
}

// dictionaryScore averages per-token corpus evidence: 1 for an exact hit,
// the similarity for a fuzzy hit and 0 otherwise. Initials are skipped.
func (s *Service) dictionaryScore(ctx context.Context, role models.Role, toks []string, result *models.Result) (float64, error) {
	var total float64
	considered := 0
	missing, fuzzy := false, false
	for _, tok := range toks {
		if len([]rune(tok)) < 2 {
			continue
		}
		considered++
		match, err := s.matchToken(ctx, role, tok)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read name corpus")
		}
		if match == nil {
			missing = true
			continue
		}
		if !match.Exact {
			fuzzy = true
			if s.metrics != nil {
				s.metrics.IncFuzzyMatch()
			}
		}
		result.Matches = append(result.Matches, *match)
		total += match.Similarity
	}
	if missing {
		result.Flags = append(result.Flags, models.FlagNotInDictionary)
	}
	if fuzzy {
		result.Flags = append(result.Flags, models.FlagFuzzyMatch)
	}
	if considered == 0 {
		return 0, nil
	}
	return total / float64(considered), nil
}

func (s *Service) matchToken(ctx context.Context, role models.Role, tok string) (*models.Match, error) {
	corpora := role.Corpora()
	for _, corpus := range corpora {
		_, err := s.lookup.Frequency(ctx, corpus, tok)
		if err == nil {
			return &models.Match{Token: tok, Candidate: tok, Corpus: corpus, Similarity: 1, Exact: true}, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
	}

	var best *models.Match
	for _, corpus := range corpora {
		candidates, err := s.lookup.Candidates(ctx, corpus, string([]rune(tok)[:1]), s.candidateLimit)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			sim := phonetic.JaroWinkler(tok, c)
			if sim < s.fuzzyThreshold || (best != nil && sim <= best.Similarity) {
				continue
			}
			best = &models.Match{Token: tok, Candidate: c, Corpus: corpus, Similarity: math.Round(sim*10000) / 10000}
		}
	}
	return best, nil
}
