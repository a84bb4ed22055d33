package penalty

import (
	"math"
	"time"
)

const (
	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskHigh     = "High"
	RiskCritical = "Critical"

	LevelBronze   = "Bronze"
	LevelSilver   = "Silver"
	LevelGold     = "Gold"
	LevelPlatinum = "Platinum"
)

// RepeatMultiplier scales a rule's weight by how many times the same plate
// has committed the same violation. occurrence is 1-based and includes the
// event being recorded. The fourth occurrence has no tier of its own and
// falls back to the base multiplier.
func RepeatMultiplier(occurrence int) float64 {
	switch {
	case occurrence == 2:
		return 1.25
	case occurrence == 3:
		return 1.5
	case occurrence >= 5:
		return 2.0
	default:
		return 1.0
	}
}

// Score computes the points and expiry for a new event created at ts.
func Score(rule Rule, priorCount int, ts time.Time) (multiplier, points float64, expiry time.Time) {
	multiplier = RepeatMultiplier(priorCount + 1)
	points = rule.Weight * multiplier
	expiry = ts.Add(time.Duration(rule.ExpiryDays) * 24 * time.Hour)
	return multiplier, points, expiry
}

// RiskLevel thresholds are checked in ascending order and the last match wins.
func RiskLevel(activePoints float64) string {
	risk := RiskLow
	if activePoints > 10 {
		risk = RiskModerate
	}
	if activePoints > 20 {
		risk = RiskHigh
	}
	if activePoints > 30 {
		risk = RiskCritical
	}
	return risk
}

// ContributorLevel derives a tier from the number of reward submissions.
func ContributorLevel(submissions int) string {
	level := LevelBronze
	if submissions >= 5 {
		level = LevelSilver
	}
	if submissions >= 15 {
		level = LevelGold
	}
	if submissions >= 30 {
		level = LevelPlatinum
	}
	return level
}

// SplitPenalty turns points into money and apportions it 60/25/15 between
// government, reward pool and system. Each share is rounded on its own, so
// the shares need not add up to Total.
func SplitPenalty(points, ratePerPoint float64) PenaltySplit {
	amount := points * ratePerPoint
	return PenaltySplit{
		Government: Round2(amount * 0.60),
		Reward:     Round2(amount * 0.25),
		System:     Round2(amount * 0.15),
		Total:      Round2(amount),
	}
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
