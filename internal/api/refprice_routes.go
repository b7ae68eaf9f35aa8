package api

import (
	"net/http"

	"github.com/ordistat/ordistat-backend/internal/pricing"
)

type referencePriceResponse struct {
	Success bool            `json:"success"`
	Version string          `json:"version"`
	Count   int             `json:"count"`
	Data    []pricing.Entry `json:"data"`
}

// handleReferencePrices exposes a window of the working price table.
// Both bounds are optional; either one, when present, must be a day.
func (s *Server) handleReferencePrices(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start != "" && !validateDate(start) {
		writeError(w, http.StatusBadRequest, "invalid start date, expected YYYY-MM-DD")
		return
	}
	if end != "" && !validateDate(end) {
		writeError(w, http.StatusBadRequest, "invalid end date, expected YYYY-MM-DD")
		return
	}

	table := s.tables.Current()
	entries := table.Window(start, end)

	writeJSON(w, http.StatusOK, referencePriceResponse{
		Success: true,
		Version: table.Version,
		Count:   len(entries),
		Data:    entries,
	})
}
