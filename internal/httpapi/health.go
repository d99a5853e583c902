package httpapi

import (
	"net/http"

	"go.healthexport.dev/ingest/httpserver"
	"go.healthexport.dev/ingest/pg"
)

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	err := s.conn.WithConn(r.Context(), func(conn pg.Conn) error {
		var one int
		return conn.QueryRow(r.Context(), "SELECT 1").Scan(&one)
	})
	if err != nil {
		dbStatus = "unavailable"
	}

	status := http.StatusOK
	overall := "ok"
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	httpserver.RenderJSON(w, status, healthResponse{Status: overall, Database: dbStatus})
}
