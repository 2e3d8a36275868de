package http

import (
	"net/http"
	"strings"

	"poupa/internal/core"
	applog "poupa/internal/log"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, userID string) {
	rng, err := ParseRangeQuery(r.URL.Query(), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dash, err := s.deps.Dashboard.Summary(r.Context(), userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(dash).Write(w)
}

// handleCreateReport generates a report synchronously. Both dates are
// required and start must not be after end.
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request, userID string) {
	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.StartDate) == "" || strings.TrimSpace(req.EndDate) == "" {
		writeError(w, r, core.ErrMissingDateRange)
		return
	}
	rng, err := core.ParseDateRange(strings.TrimSpace(req.StartDate), strings.TrimSpace(req.EndDate), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := s.deps.Reports.Generate(r.Context(), userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.countReport()

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Report generated",
		applog.FieldUserID, userID,
		applog.FieldRange, rng.String())
	NewJSONResponse().Body(report).Write(w)
}
