package api

import (
	"fmt"
	"net/http"

	"github.com/ordistat/ordistat-backend/internal/models"
)

type rankingResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Data    []models.RankedSlug `json:"data"`
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultRankingLimit)

	ranked, err := s.rankings.Rank(r.Context(), s.minSamples, limit)
	if err != nil {
		fmt.Printf("[API] rankings: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to load rankings")
		return
	}
	if ranked == nil {
		ranked = []models.RankedSlug{}
	}

	writeJSON(w, http.StatusOK, rankingResponse{
		Success: true,
		Count:   len(ranked),
		Data:    ranked,
	})
}
