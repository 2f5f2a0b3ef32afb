package models

import (
	"errors"
	"math"
	"sort"
	"time"
)

// Step adds Penalty when a ratio is below (or above, depending on the
// factor) Cut.
type Step struct {
	Cut     float64
	Penalty float64
}

// Thresholds parameterise the risk model.
type Thresholds struct {
	Low    int
	Medium int
	High   int

	BaseLow    float64
	BaseMedium float64
	BaseHigh   float64

	// SurnameSteps apply when distinct surnames / group size is below Cut.
	// The first matching step wins, so order them by ascending Cut.
	SurnameSteps []Step
	// DOBSteps apply when the most common birth date's share exceeds Cut.
	// Order them by descending Cut.
	DOBSteps []Step

	VelocityWindow  time.Duration
	VelocityLimit   int
	VelocityPenalty float64

	CriticalCut float64
	HighCut     float64
	MediumCut   float64
}

// DefaultThresholds returns the production risk model.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:    6,
		Medium: 12,
		High:   20,

		BaseLow:    0.2,
		BaseMedium: 0.4,
		BaseHigh:   0.6,

		SurnameSteps: []Step{{Cut: 0.2, Penalty: 0.3}, {Cut: 0.4, Penalty: 0.2}, {Cut: 0.6, Penalty: 0.1}},
		DOBSteps:     []Step{{Cut: 0.5, Penalty: 0.25}, {Cut: 0.3, Penalty: 0.15}},

		VelocityWindow:  7 * 24 * time.Hour,
		VelocityLimit:   10,
		VelocityPenalty: 0.2,

		CriticalCut: 0.8,
		HighCut:     0.6,
		MediumCut:   0.4,
	}
}

// Validate checks the count tiers are increasing.
func (t Thresholds) Validate() error {
	if t.Low < 1 || t.Medium <= t.Low || t.High <= t.Medium {
		return errors.New("cluster thresholds must satisfy 1 <= low < medium < high")
	}
	if t.VelocityWindow <= 0 || t.VelocityLimit <= 0 {
		return errors.New("velocity window and limit must be positive")
	}
	return nil
}

// Level buckets a score.
func (t Thresholds) Level(score float64) RiskLevel {
	switch {
	case score >= t.CriticalCut:
		return RiskCritical
	case score >= t.HighCut:
		return RiskHigh
	case score >= t.MediumCut:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Assess scores a group. Groups below the low tier score zero.
func (t Thresholds) Assess(g Group) (float64, RiskLevel, Factors) {
	n := len(g.Members)
	var f Factors
	switch {
	case n >= t.High:
		f.Base = t.BaseHigh
	case n >= t.Medium:
		f.Base = t.BaseMedium
	case n >= t.Low:
		f.Base = t.BaseLow
	default:
		return 0, RiskLow, f
	}

	surnames := map[string]struct{}{}
	dobs := map[string]int{}
	times := make([]time.Time, 0, n)
	for _, m := range g.Members {
		surnames[m.LastName] = struct{}{}
		dobs[m.DateOfBirth]++
		times = append(times, m.RegisteredAt)
	}

	f.SurnameDiversity = round(float64(len(surnames)) / float64(n))
	for _, step := range t.SurnameSteps {
		if f.SurnameDiversity < step.Cut {
			f.SurnamePenalty = step.Penalty
			break
		}
	}

	top := 0
	for _, c := range dobs {
		top = max(top, c)
	}
	f.DOBConcentration = round(float64(top) / float64(n))
	for _, step := range t.DOBSteps {
		if f.DOBConcentration > step.Cut {
			f.DOBPenalty = step.Penalty
			break
		}
	}

	f.PeakVelocity = peakWithin(times, t.VelocityWindow)
	if f.PeakVelocity > t.VelocityLimit {
		f.VelocityPenalty = t.VelocityPenalty
	}

	score := round(math.Min(1, f.Base+f.SurnamePenalty+f.DOBPenalty+f.VelocityPenalty))
	return score, t.Level(score), f
}

// peakWithin returns the largest number of times falling inside any window
// of length w.
func peakWithin(times []time.Time, w time.Duration) int {
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	peak, lo := 0, 0
	for hi := range times {
		for times[hi].Sub(times[lo]) > w {
			lo++
		}
		peak = max(peak, hi-lo+1)
	}
	return peak
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
