package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"go.healthexport.dev/ingest/httpserver"
	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/internal/query"
)

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := authContextFrom(r.Context())
	family := metric.Family(chi.URLParam(r, "family"))

	params := query.Params{
		Family:    family,
		UserID:    authCtx.User.ID,
		Page:      queryInt(r, "page", 1),
		Limit:     queryInt(r, "limit", 0),
		Ascending: r.URL.Query().Get("order") == "asc",
	}
	if start, ok := queryTime(r, "start_date"); ok {
		params.StartDate = &start
	}
	if end, ok := queryTime(r, "end_date"); ok {
		params.EndDate = &end
	}

	page, err := s.query.Query(r.Context(), params)
	if err != nil {
		httpserver.RenderError(w, http.StatusInternalServerError, err)
		return
	}

	httpserver.RenderJSON(w, http.StatusOK, page)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryTime(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
