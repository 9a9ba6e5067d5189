package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nyashahama/bornify-backend/internal/calendar"
)

// ─── POST /api/cron/trigger ───────────────────────────────────────────────────

// handleCronTrigger runs one reminder pass and returns its summary. The pass
// is detached from the request context: a scheduler that hangs up early
// does not stop a run that has already begun sending.
//
// A failed run (sender not configured, user list unavailable, overlap) is a
// 500; per-user failures inside a successful run are not.
func (s *Server) handleCronTrigger(w http.ResponseWriter, r *http.Request) {
	sum := s.reminders.RunToday(context.WithoutCancel(r.Context()))

	status := http.StatusOK
	if !sum.Success {
		status = http.StatusInternalServerError
	}
	respond(w, status, sum)
}

// ─── GET /api/cron/runs ───────────────────────────────────────────────────────

type runResponse struct {
	ID             string          `json:"id"`
	RunDate        calendar.Date   `json:"run_date"`
	StartedAt      time.Time       `json:"started_at"`
	DurationMS     int64           `json:"duration_ms"`
	Success        bool            `json:"success"`
	UsersChecked   int             `json:"users_checked"`
	Sent           int             `json:"sent"`
	Failed         int             `json:"failed"`
	SkippedRecords int             `json:"skipped_records"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Failures       json.RawMessage `json:"failures,omitempty"`
}

// handleListRuns returns the most recent persisted runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			respondErr(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRecentRuns(r.Context(), limit)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list runs: %w", err))
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp := runResponse{
			ID:             run.ID.String(),
			RunDate:        run.RunDate,
			StartedAt:      run.StartedAt,
			DurationMS:     run.DurationMS,
			Success:        run.Success,
			UsersChecked:   run.UsersChecked,
			Sent:           run.Sent,
			Failed:         run.Failed,
			SkippedRecords: run.SkippedRecords,
			ErrorMessage:   run.ErrorMessage.String,
		}
		if run.Failures.Valid {
			resp.Failures = json.RawMessage(run.Failures.RawMessage)
		}
		out = append(out, resp)
	}
	respond(w, http.StatusOK, out)
}
