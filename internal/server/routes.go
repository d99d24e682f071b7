package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mileslinfeng/MilesRI/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Earnings
	mux.HandleFunc("GET /summary/{symbol}", s.handleSummaryGet)
	mux.HandleFunc("DELETE /summary/{symbol}", s.handleSummaryDelete)
	mux.HandleFunc("GET /history/{symbol}", s.handleHistoryGet)
	mux.HandleFunc("POST /refresh/{symbol}", s.handleRefresh)

	// Watchlist
	mux.HandleFunc("GET /watchlist", s.handleWatchlistList)
	mux.HandleFunc("POST /watchlist", s.handleWatchlistAdd)
	mux.HandleFunc("DELETE /watchlist/{symbol}", s.handleWatchlistRemove)

	// Calendar
	mux.HandleFunc("GET /calendar", s.handleCalendar)
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		common.BuildInfo
		Uptime string `json:"uptime"`
	}{
		BuildInfo: common.CurrentBuild(),
		Uptime:    time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}
