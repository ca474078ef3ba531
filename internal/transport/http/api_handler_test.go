package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rater-tracker-service/internal/app"
	"rater-tracker-service/internal/domain"
)

func setupAPI(t *testing.T) (*httptest.Server, *app.TrackerService, string) {
	t.Helper()
	service := newTestService()

	ctx := context.Background()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var sessionID string
	for _, step := range []struct {
		typ domain.EventType
		at  time.Duration
	}{
		{domain.EventNext, 0},
		{domain.EventNext, 330 * time.Second},
		{domain.EventExit, 660 * time.Second},
	} {
		res, err := service.HandleEvent(ctx, "u1", app.EventInput{
			Type:      step.typ,
			Timestamp: start.Add(step.at),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", step.typ, err)
		}
		sessionID = res.SessionID
	}

	handler := NewAPIHandler(service, nil, time.UTC, testLogger())
	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service, sessionID
}

func TestSessionSummaryEndpoint(t *testing.T) {
	server, _, sessionID := setupAPI(t)

	resp, err := http.Get(server.URL + "/sessions/" + sessionID + "/summary")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := readBody(t, resp)
	for _, want := range []string{`"totalQuestions":2`, `"paceLabel":"on target"`, `"score":100`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in body: %s", want, body)
		}
	}
}

func TestSessionSummaryNotFound(t *testing.T) {
	server, _, _ := setupAPI(t)

	resp, err := http.Get(server.URL + "/sessions/missing/summary")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDaySummaryEndpoint(t *testing.T) {
	server, _, _ := setupAPI(t)

	resp, err := http.Get(server.URL + "/summary/day?userId=u1&date=2024-01-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	for _, want := range []string{`"totalSessions":1`, `"totalQuestions":2`, `"hourlyActivity"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in body: %s", want, body)
		}
	}

	resp2, err := http.Get(server.URL + "/summary/day?date=2024-01-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing userId, got %d", resp2.StatusCode)
	}
}

func TestExportWeekCSVEndpoint(t *testing.T) {
	server, _, _ := setupAPI(t)

	resp, err := http.Get(server.URL + "/export/week.csv?userId=u1&start=2024-01-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %s", ct)
	}
	body := readBody(t, resp)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 9 || !strings.HasPrefix(lines[0], "date,") {
		t.Fatalf("expected header + 7 days + totals, got %d lines", len(lines))
	}
}

func TestDeleteSessionEndpoint(t *testing.T) {
	server, _, sessionID := setupAPI(t)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/sessions/"+sessionID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	// Idempotent: a second delete is still a success.
	resp2, err := http.DefaultClient.Do(req.Clone(context.Background()))
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on repeat, got %d", resp2.StatusCode)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}
