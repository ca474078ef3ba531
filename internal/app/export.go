package app

import (
	"encoding/csv"
	"fmt"
	"strings"

	"rater-tracker-service/internal/domain"
	"rater-tracker-service/internal/pace"
)

var csvHeaders = []string{
	"date",
	"session_count",
	"total_active_seconds",
	"total_raw_seconds",
	"daily_pace_label",
	"daily_pace_emoji",
}

// DaySummaryCSV renders one day summary as a CSV document.
func DaySummaryCSV(day domain.DaySummary) (string, error) {
	return rowsToCSV([][]string{dayRow(day)})
}

// WeekReportCSV renders a weekly report as CSV with a trailing totals row.
func WeekReportCSV(report domain.WeekReport) (string, error) {
	rows := make([][]string, 0, len(report.Days)+1)
	for _, day := range report.Days {
		rows = append(rows, dayRow(day))
	}
	rows = append(rows, []string{
		"TOTAL",
		fmt.Sprintf("%d", report.Totals.TotalSessions),
		formatSeconds(report.Totals.TotalActiveSeconds),
		formatSeconds(report.Totals.TotalRawSeconds),
		"",
		"",
	})
	return rowsToCSV(rows)
}

func dayRow(day domain.DaySummary) []string {
	tier := dayTier(day)
	return []string{
		day.Date.Format("2006-01-02"),
		fmt.Sprintf("%d", day.TotalSessions),
		formatSeconds(day.TotalActiveSeconds),
		formatSeconds(day.TotalRawSeconds),
		tier.Label,
		tier.Emoji,
	}
}

// dayTier rates the whole day by its average handle time against the
// default target, mirroring the per-session tiering.
func dayTier(day domain.DaySummary) pace.Pace {
	if day.TotalQuestions == 0 {
		return pace.NoQuestions
	}
	avg := day.TotalActiveSeconds / float64(day.TotalQuestions)
	return pace.Compute(avg, pace.DefaultTargetMinutes)
}

func formatSeconds(secs float64) string {
	return fmt.Sprintf("%.1f", secs)
}

func rowsToCSV(rows [][]string) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(csvHeaders); err != nil {
		return "", err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}
