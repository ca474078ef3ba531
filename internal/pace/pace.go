// Package pace derives pacing feedback from committed question records.
package pace

import (
	"math"
	"time"

	"rater-tracker-service/internal/domain"
)

// DefaultTargetMinutes is the per-question pace target used when a session
// carries no override.
const DefaultTargetMinutes = 5.5

// Pace is the tier assigned to an average handle time against a target.
type Pace struct {
	Label string
	Emoji string
	Score int
}

// NoQuestions is the tier reported when a session has no countable questions.
var NoQuestions = Pace{Label: "No questions", Emoji: "😴", Score: 0}

// Compute buckets avgActiveSeconds against the target (minutes per question).
// Tier bounds are closed-open on the ratio of average to target. Callers are
// responsible for the zero-question case; an average of zero with committed
// questions is a real (absurdly fast) pace.
func Compute(avgActiveSeconds, targetMinutes float64) Pace {
	if targetMinutes <= 0 {
		return NoQuestions
	}

	if avgActiveSeconds < 0 {
		avgActiveSeconds = 0
	}
	ratio := avgActiveSeconds / (targetMinutes * 60)

	var label, emoji string
	switch {
	case ratio < 0.5:
		label, emoji = "way too fast", "🚀"
	case ratio < 0.7:
		label, emoji = "fast", "⚡"
	case ratio < 0.9:
		label, emoji = "slightly fast", "🙂"
	case ratio < 1.1:
		label, emoji = "on target", "🎯"
	case ratio < 1.3:
		label, emoji = "a bit slow", "🐢"
	default:
		label, emoji = "slow", "🐌"
	}

	return Pace{Label: label, Emoji: emoji, Score: score(ratio)}
}

// score decays smoothly and symmetrically away from ratio 1, so near-target
// pacing lands near 100 with no cliff at the tier bounds.
func score(ratio float64) int {
	s := int(math.Round(100 * math.Exp(-1.2*math.Abs(ratio-1))))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Countable filters ghost records out of an aggregate. Ghosts stay in the
// ledger for audit but must not drag averages to zero.
func Countable(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.Ghost {
			continue
		}
		out = append(out, q)
	}
	return out
}

// AverageActiveSeconds is the mean active time across the given records,
// 0 when empty.
func AverageActiveSeconds(questions []domain.Question) float64 {
	if len(questions) == 0 {
		return 0
	}
	var total float64
	for _, q := range questions {
		total += q.ActiveSeconds
	}
	return total / float64(len(questions))
}

// HourlyActivity buckets active seconds into the 24 hours of a day by each
// record's start timestamp in loc. All 24 buckets are always present.
func HourlyActivity(questions []domain.Question, loc *time.Location) []domain.HourlyBucket {
	buckets := make([]domain.HourlyBucket, 24)
	for h := range buckets {
		buckets[h].Hour = h
	}
	for _, q := range questions {
		h := q.StartedAt.In(loc).Hour()
		buckets[h].TotalQuestions++
		buckets[h].ActiveSeconds += q.ActiveSeconds
	}
	return buckets
}
