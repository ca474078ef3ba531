package pace

import (
	"testing"
	"time"

	"rater-tracker-service/internal/domain"
)

func TestComputeTiers(t *testing.T) {
	target := 5.5 // 330 seconds

	cases := []struct {
		avg   float64
		label string
	}{
		{100, "way too fast"},  // ratio ~0.30
		{198, "fast"},          // ratio 0.60
		{264, "slightly fast"}, // ratio 0.80
		{330, "on target"},     // ratio 1.00
		{396, "a bit slow"},    // ratio 1.20
		{500, "slow"},          // ratio ~1.52
	}
	for _, tc := range cases {
		got := Compute(tc.avg, target)
		if got.Label != tc.label {
			t.Fatalf("avg=%v: expected %q, got %q", tc.avg, tc.label, got.Label)
		}
		if got.Emoji == "" {
			t.Fatalf("avg=%v: expected emoji tag", tc.avg)
		}
	}
}

func TestComputeTierBoundsAreClosedOpen(t *testing.T) {
	target := 1.0 // 60 seconds, so avg == ratio*60

	cases := []struct {
		ratio float64
		label string
	}{
		{0.5, "fast"},
		{0.7, "slightly fast"},
		{0.9, "on target"},
		{1.1, "a bit slow"},
		{1.3, "slow"},
	}
	for _, tc := range cases {
		got := Compute(tc.ratio*60, target)
		if got.Label != tc.label {
			t.Fatalf("ratio=%v: expected %q, got %q", tc.ratio, tc.label, got.Label)
		}
	}
}

func TestOnTargetScoresFull(t *testing.T) {
	got := Compute(330, 5.5)
	if got.Label != "on target" || got.Score != 100 {
		t.Fatalf("expected on target with score 100, got %+v", got)
	}
}

func TestScoreIsSymmetric(t *testing.T) {
	target := 1.0
	for _, d := range []float64{0.05, 0.1, 0.25, 0.5} {
		fast := Compute((1-d)*60, target)
		slow := Compute((1+d)*60, target)
		if fast.Score != slow.Score {
			t.Fatalf("d=%v: expected symmetric scores, got %d vs %d", d, fast.Score, slow.Score)
		}
		if fast.Score <= 0 || fast.Score >= 100 {
			t.Fatalf("d=%v: expected score in (0,100), got %d", d, fast.Score)
		}
	}
}

func TestNoQuestionsTier(t *testing.T) {
	if got := Compute(120, 0); got != NoQuestions {
		t.Fatalf("expected no-questions tier for zero target, got %+v", got)
	}
	// Zero average with a valid target is a real pace, not the empty tier.
	if got := Compute(0, 5.5); got.Label != "way too fast" {
		t.Fatalf("expected way too fast for zero average, got %+v", got)
	}
}

func TestCountableFiltersGhosts(t *testing.T) {
	questions := []domain.Question{
		{Index: 1, RawSeconds: 60, ActiveSeconds: 45},
		{Index: 2, RawSeconds: 0, ActiveSeconds: 0, Ghost: true},
		{Index: 3, RawSeconds: 90, ActiveSeconds: 90},
	}
	got := Countable(questions)
	if len(got) != 2 {
		t.Fatalf("expected 2 countable records, got %d", len(got))
	}
	if avg := AverageActiveSeconds(got); avg != 67.5 {
		t.Fatalf("expected avg 67.5, got %v", avg)
	}
	if avg := AverageActiveSeconds(nil); avg != 0 {
		t.Fatalf("expected avg 0 for empty, got %v", avg)
	}
}

func TestHourlyActivityUsesLocation(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 17:00 UTC on Jan 1 is 10:00 in Denver (MST).
	questions := []domain.Question{
		{StartedAt: time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC), ActiveSeconds: 45},
		{StartedAt: time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC), ActiveSeconds: 15},
	}

	buckets := HourlyActivity(questions, denver)
	if len(buckets) != 24 {
		t.Fatalf("expected 24 buckets, got %d", len(buckets))
	}
	if b := buckets[10]; b.TotalQuestions != 2 || b.ActiveSeconds != 60 {
		t.Fatalf("expected both questions in the 10am bucket, got %+v", b)
	}
	if b := buckets[17]; b.TotalQuestions != 0 {
		t.Fatalf("expected UTC hour bucket empty, got %+v", b)
	}
}
