package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/models"
	"github.com/mileslinfeng/MilesRI/internal/services/earnings"
)

// Cache-Control max-age by response source
const (
	maxAgeFresh  = 300 * time.Second
	maxAgeCached = 60 * time.Second
	maxAgeStale  = 30 * time.Second
)

func (s *Server) handleSummaryGet(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.EarningsService.GetSummary(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	SetMaxAge(w, maxAgeFor(res.Source))
	WriteJSON(w, statusFor(res.Source), res)
}

func (s *Server) handleSummaryDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.app.EarningsService.Invalidate(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"deleted": deleted,
	})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r, "limit")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_limit")
		return
	}

	res, err := s.app.EarningsService.GetHistory(r.Context(), r.PathValue("symbol"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	SetMaxAge(w, maxAgeFor(res.Source))
	WriteJSON(w, statusFor(res.Source), res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.RefreshService.Refresh(r.Context(), r.PathValue("symbol"))
	if err != nil {
		var cooldown *earnings.CooldownError
		if errors.As(err, &cooldown) {
			secs := int(math.Ceil(cooldown.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:  err.Error(),
				Code:   "refresh_cooldown",
				Symbol: cooldown.Symbol,
			})
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, statusFor(res.Source), res)
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *earnings.UpstreamError
	switch {
	case errors.Is(err, common.ErrInvalidSymbol):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_symbol")
	case errors.Is(err, common.ErrInvalidLimit):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_limit")
	case errors.Is(err, common.ErrInvalidRange):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_range")
	case errors.As(err, &upstream):
		WriteJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:  common.ErrUpstreamUnavailable.Error(),
			Code:   "upstream_unavailable",
			Symbol: upstream.Symbol,
			Kind:   upstream.Kind,
		})
	case errors.Is(err, common.ErrUpstreamUnavailable):
		WriteErrorWithCode(w, http.StatusBadGateway, common.ErrUpstreamUnavailable.Error(), "upstream_unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		WriteErrorWithCode(w, http.StatusGatewayTimeout, "Request timed out", "timeout")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// statusFor returns 206 for responses rescued from the stale disk copy.
func statusFor(source string) int {
	if source == models.SourceStaleDisk {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

func maxAgeFor(source string) time.Duration {
	switch source {
	case models.SourceFresh:
		return maxAgeFresh
	case models.SourceStaleDisk:
		return maxAgeStale
	}
	return maxAgeCached
}
