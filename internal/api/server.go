package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordistat/ordistat-backend/internal/coordinator"
	"github.com/ordistat/ordistat-backend/internal/models"
	"github.com/ordistat/ordistat-backend/internal/pricing"
	"github.com/ordistat/ordistat-backend/internal/repository"
)

const (
	maxQueryLimit       = 1000
	defaultRankingLimit = 25
)

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// seriesResolver is the slice of the coordinator the handlers use.
type seriesResolver interface {
	Resolve(ctx context.Context, slug string, useGapFill bool) (*models.SeriesBundle, error)
	ResolveAsset(ctx context.Context, slug, kind, contentType string, useGapFill bool, produce func(*models.SeriesBundle) ([]byte, error)) (*models.CachedAsset, error)
}

type rankingSource interface {
	Rank(ctx context.Context, minSamples, limit int) ([]models.RankedSlug, error)
}

type tableSource interface {
	Current() *pricing.Table
}

type Server struct {
	pool       *pgxpool.Pool
	coord      seriesResolver
	rankings   rankingSource
	tables     tableSource
	httpServer *http.Server
	apiKey     string
	minSamples int
}

func NewServer(pool *pgxpool.Pool, coord *coordinator.Coordinator, tables *pricing.Registry, port int, apiKey, corsOrigin string, rankingMinSamples int) *Server {
	if rankingMinSamples <= 0 {
		rankingMinSamples = 4
	}
	s := &Server{
		pool:       pool,
		coord:      coord,
		rankings:   repository.NewBundleRepo(pool),
		tables:     tables,
		apiKey:     apiKey,
		minSamples: rankingMinSamples,
	}

	mux := http.NewServeMux()

	// Collection routes
	mux.HandleFunc("GET /v1/collections/{slug}", s.handleCollection)
	mux.HandleFunc("GET /v1/collections/{slug}/csv", s.handleCollectionCSV)

	// Listing routes
	mux.HandleFunc("GET /v1/rankings", s.handleRankings)
	mux.HandleFunc("GET /v1/reference-prices", s.handleReferencePrices)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.authMiddleware(corsMiddleware(mux, corsOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	fmt.Printf("[API] REST API server started on http://localhost%s\n", s.httpServer.Addr)
	fmt.Printf("[API] Health check: http://localhost%s/health\n", s.httpServer.Addr)
	if s.apiKey != "" {
		fmt.Println("[API] Authentication: enabled (Bearer token)")
	} else {
		fmt.Println("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func parseBool(r *http.Request, key string) bool {
	return r.URL.Query().Get(key) == "true"
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
