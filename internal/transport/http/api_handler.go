package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"rater-tracker-service/internal/app"
	"rater-tracker-service/internal/domain"
)

// DaySummaryProvider serves day summaries, either straight from the service
// or through the Redis cache.
type DaySummaryProvider interface {
	DaySummary(ctx context.Context, userID string, date time.Time, loc *time.Location) (domain.DaySummary, error)
}

// APIHandler exposes the summary, report, export and deletion operations as
// plain JSON/CSV endpoints.
type APIHandler struct {
	service   *app.TrackerService
	summaries DaySummaryProvider
	loc       *time.Location
	log       *logrus.Logger
}

func NewAPIHandler(service *app.TrackerService, summaries DaySummaryProvider, loc *time.Location, log *logrus.Logger) *APIHandler {
	if summaries == nil {
		summaries = service
	}
	if loc == nil {
		loc = time.UTC
	}
	return &APIHandler{service: service, summaries: summaries, loc: loc, log: log}
}

// Register wires the handler's routes onto mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions/{id}/summary", h.sessionSummary)
	mux.HandleFunc("DELETE /sessions/{id}", h.deleteSession)
	mux.HandleFunc("DELETE /sessions/{id}/questions/last", h.deleteLastQuestion)
	mux.HandleFunc("GET /summary/day", h.daySummary)
	mux.HandleFunc("GET /summary/week", h.weekReport)
	mux.HandleFunc("GET /export/day.csv", h.exportDayCSV)
	mux.HandleFunc("GET /export/week.csv", h.exportWeekCSV)
}

func (h *APIHandler) sessionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.SessionSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, summary)
}

func (h *APIHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) deleteLastQuestion(w http.ResponseWriter, r *http.Request) {
	removed, ok, err := h.service.DeleteLastQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, removed)
}

func (h *APIHandler) daySummary(w http.ResponseWriter, r *http.Request) {
	userID, date, loc, err := h.summaryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := h.summaries.DaySummary(r.Context(), userID, date, loc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, summary)
}

func (h *APIHandler) weekReport(w http.ResponseWriter, r *http.Request) {
	userID, start, loc, err := h.summaryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, err := h.service.WeekReport(r.Context(), userID, start, loc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, report)
}

func (h *APIHandler) exportDayCSV(w http.ResponseWriter, r *http.Request) {
	userID, date, loc, err := h.summaryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := h.summaries.DaySummary(r.Context(), userID, date, loc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := app.DaySummaryCSV(summary)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCSV(w, out)
}

func (h *APIHandler) exportWeekCSV(w http.ResponseWriter, r *http.Request) {
	userID, start, loc, err := h.summaryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, err := h.service.WeekReport(r.Context(), userID, start, loc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := app.WeekReportCSV(report)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCSV(w, out)
}

// summaryQuery parses the shared userId/date/tz query parameters. The date
// defaults to today and the timezone to the configured default.
func (h *APIHandler) summaryQuery(r *http.Request) (string, time.Time, *time.Location, error) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		return "", time.Time{}, nil, errors.New("missing userId")
	}

	loc := h.loc
	if tz := r.URL.Query().Get("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", time.Time{}, nil, errors.New("unknown tz")
		}
		loc = parsed
	}

	date := time.Now().In(loc)
	for _, key := range []string{"date", "start"} {
		if raw := r.URL.Query().Get(key); raw != "" {
			parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
			if err != nil {
				return "", time.Time{}, nil, errors.New("invalid " + key + ", want YYYY-MM-DD")
			}
			date = parsed
		}
	}
	return userID, date, loc, nil
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("write response failed")
	}
}

func (h *APIHandler) writeCSV(w http.ResponseWriter, out string) {
	w.Header().Set("Content-Type", "text/csv")
	if _, err := w.Write([]byte(out)); err != nil {
		h.log.WithError(err).Warn("write csv failed")
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTimestamp):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	http.Error(w, err.Error(), status)
}
