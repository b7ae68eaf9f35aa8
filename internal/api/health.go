package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
	Table     healthTable    `json:"referenceTable"`
}

type healthServices struct {
	Database string `json:"database"`
}

type healthTable struct {
	Version string `json:"version"`
	Entries int    `json:"entries"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if s.pool == nil {
		dbStatus = "not configured"
	} else if err := s.pool.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
	}

	table := s.tables.Current()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus},
		Table:     healthTable{Version: table.Version, Entries: table.Len()},
	})
}
