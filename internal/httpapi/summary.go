package httpapi

import (
	"net/http"
	"time"

	"go.healthexport.dev/ingest/httpserver"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := authContextFrom(r.Context())

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if t, ok := queryTime(r, "start_date"); ok {
		start = t
	}
	if t, ok := queryTime(r, "end_date"); ok {
		end = t
	}

	summary, err := s.query.Summarize(r.Context(), authCtx.User.ID, start, end)
	if err != nil {
		httpserver.RenderError(w, http.StatusInternalServerError, err)
		return
	}

	httpserver.RenderJSON(w, http.StatusOK, summary)
}
