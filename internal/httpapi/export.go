package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"go.healthexport.dev/ingest/httpserver"
	"go.healthexport.dev/ingest/internal/metric"
	"go.healthexport.dev/ingest/internal/query"
)

// handleExport renders one family's page as either JSON or a flat
// CSV; rich report formatting is out of scope, only the endpoint's
// two wire shapes are built.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if format != "json" && format != "csv" {
		httpserver.RenderError(w, http.StatusBadRequest, fmt.Errorf("export: unsupported format %q", format))
		return
	}

	familyParam := r.URL.Query().Get("family")
	if familyParam == "" {
		httpserver.RenderError(w, http.StatusBadRequest, fmt.Errorf("export: family query parameter is required"))
		return
	}

	authCtx, _ := authContextFrom(r.Context())
	params := query.Params{
		Family: metric.Family(familyParam),
		UserID: authCtx.User.ID,
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 0),
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

	if format == "json" {
		httpserver.RenderJSON(w, http.StatusOK, page)
		return
	}

	writeCSV(w, page)
}

func writeCSV(w http.ResponseWriter, page *query.Page) {
	w.Header().Set("content-type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if len(page.Rows) == 0 {
		return
	}

	columns := make([]string, 0, len(page.Rows[0]))
	for column := range page.Rows[0] {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	if err := writer.Write(columns); err != nil {
		return
	}

	for _, row := range page.Rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = fmt.Sprintf("%v", row[column])
		}
		if err := writer.Write(record); err != nil {
			return
		}
	}
}
