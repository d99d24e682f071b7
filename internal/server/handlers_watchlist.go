package server

import (
	"net/http"

	"github.com/mileslinfeng/MilesRI/internal/models"
)

type watchlistAddRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleWatchlistList(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.WatchlistService.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"data": items,
	})
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var req watchlistAddRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	item, created, err := s.app.WatchlistService.Add(r.Context(), req.Symbol)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, struct {
		OK      bool                  `json:"ok"`
		Data    *models.WatchlistItem `json:"data"`
		Created bool                  `json:"created"`
	}{true, item, created})
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	removed, err := s.app.WatchlistService.Remove(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !removed {
		WriteErrorWithCode(w, http.StatusNotFound, "Symbol not on watchlist", "not_found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"removed": true,
	})
}
