package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/models"
	"github.com/mileslinfeng/MilesRI/internal/services/earnings"
)

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func summaryResult(source string) *models.SummaryResult {
	eps := 1.57
	return &models.SummaryResult{
		OK:     true,
		Data:   &models.Summary{Symbol: "AAPL", ReportedEPS: &eps, SignalCode: models.SignalBeat},
		Cached: source != models.SourceFresh,
		Source: source,
	}
}

// --- summary ---

func TestSummaryGet_FreshAndCachedHeaders(t *testing.T) {
	tests := []struct {
		source       string
		wantStatus   int
		cacheControl string
	}{
		{models.SourceFresh, http.StatusOK, "public, max-age=300"},
		{models.SourceMemory, http.StatusOK, "public, max-age=60"},
		{models.SourceDisk, http.StatusOK, "public, max-age=60"},
		{models.SourceInflight, http.StatusOK, "public, max-age=60"},
		{models.SourceStaleDisk, http.StatusPartialContent, "public, max-age=30"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			srv, fakes := newTestServer(t)
			fakes.earnings.summary = summaryResult(tt.source)

			rec := serve(t, srv, http.MethodGet, "/summary/aapl", "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.cacheControl, rec.Header().Get("Cache-Control"))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			resp := decode(t, rec.Body.Bytes())
			assert.Equal(t, true, resp["ok"])
			assert.Equal(t, tt.source, resp["source"])
			assert.Equal(t, tt.source != models.SourceFresh, resp["cached"])
			data := resp["data"].(map[string]interface{})
			assert.Equal(t, "AAPL", data["symbol"])
		})
	}
}

func TestSummaryGet_PassesRawSymbol(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.earnings.summary = summaryResult(models.SourceFresh)

	rec := serve(t, srv, http.MethodGet, "/summary/brk.b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"brk.b"}, fakes.earnings.symbols)
}

func TestSummaryGet_InvalidSymbolIs400(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(t, srv, http.MethodGet, "/summary/AA$PL", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec.Body.Bytes())
	assert.Equal(t, false, resp["ok"])
	assert.Equal(t, "invalid_symbol", resp["code"])
}

func TestSummaryGet_UpstreamExhaustedIs502(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.earnings.err = &earnings.UpstreamError{Symbol: "AAPL", Kind: common.KindSummary, Err: errors.New("all providers failed")}

	rec := serve(t, srv, http.MethodGet, "/summary/AAPL", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decode(t, rec.Body.Bytes())
	assert.Equal(t, false, resp["ok"])
	assert.Equal(t, "AAPL", resp["symbol"])
	assert.Equal(t, common.KindSummary, resp["kind"])
	assert.Equal(t, common.ErrUpstreamUnavailable.Error(), resp["error"])
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestSummaryGet_UnexpectedErrorIs500(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.earnings.err = errors.New("disk on fire")

	rec := serve(t, srv, http.MethodGet, "/summary/AAPL", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestSummaryDelete_ReturnsDeletedFiles(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.earnings.deleted = []string{"AAPL.history.json", "AAPL.summary.json"}

	rec := serve(t, srv, http.MethodDelete, "/summary/AAPL", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec.Body.Bytes())
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, []interface{}{"AAPL.history.json", "AAPL.summary.json"}, resp["deleted"])
}

func TestSummary_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := serve(t, srv, http.MethodPut, "/summary/AAPL", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// --- history ---

func TestHistoryGet_LimitForwarded(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.earnings.history = &models.HistoryResult{OK: true, Data: []models.HistoryRow{}, Source: models.SourceFresh}

	rec := serve(t, srv, http.MethodGet, "/history/AAPL?limit=8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8, fakes.earnings.lastLimit)

	resp := decode(t, rec.Body.Bytes())
	assert.Equal(t, []interface{}{}, resp["data"])
}

func TestHistoryGet_NoLimitIsZero(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.earnings.history = &models.HistoryResult{OK: true, Data: []models.HistoryRow{}, Source: models.SourceMemory}
	fakes.earnings.lastLimit = -1

	rec := serve(t, srv, http.MethodGet, "/history/AAPL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, fakes.earnings.lastLimit)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestHistoryGet_MalformedLimitIs400(t *testing.T) {
	for _, limit := range []string{"abc", "-3", "1.5"} {
		t.Run(limit, func(t *testing.T) {
			srv, fakes := newTestServer(t)
			rec := serve(t, srv, http.MethodGet, "/history/AAPL?limit="+limit, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_limit", decode(t, rec.Body.Bytes())["code"])
			assert.Empty(t, fakes.earnings.symbols, "service must not be called")
		})
	}
}

func TestHistoryGet_StaleIs206(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.earnings.history = &models.HistoryResult{
		OK: true, Data: []models.HistoryRow{}, Cached: true,
		Source: models.SourceStaleDisk, Warning: "Upstream failed; served stale",
	}

	rec := serve(t, srv, http.MethodGet, "/history/AAPL", "")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "Upstream failed; served stale", decode(t, rec.Body.Bytes())["warning"])
}

// --- refresh ---

func TestRefresh_Success(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.refresh.res = summaryResult(models.SourceFresh)

	rec := serve(t, srv, http.MethodPost, "/refresh/AAPL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, models.SourceFresh, decode(t, rec.Body.Bytes())["source"])
}

func TestRefresh_CooldownIs429WithRetryAfter(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.refresh.err = &earnings.CooldownError{Symbol: "AAPL", RetryAfter: 29*time.Minute + 500*time.Millisecond}

	rec := serve(t, srv, http.MethodPost, "/refresh/AAPL", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, fmt.Sprint(29*60+1), rec.Header().Get("Retry-After"))

	resp := decode(t, rec.Body.Bytes())
	assert.Equal(t, "refresh_cooldown", resp["code"])
	assert.Equal(t, "AAPL", resp["symbol"])
}

func TestRefresh_GetNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := serve(t, srv, http.MethodGet, "/refresh/AAPL", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// --- watchlist ---

func TestWatchlist_AddListRemove(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(t, srv, http.MethodPost, "/watchlist", `{"symbol":"msft"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode(t, rec.Body.Bytes())
	assert.Equal(t, true, resp["created"])
	assert.Equal(t, "MSFT", resp["data"].(map[string]interface{})["symbol"])

	rec = serve(t, srv, http.MethodPost, "/watchlist", `{"symbol":"MSFT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec.Body.Bytes())["created"])

	rec = serve(t, srv, http.MethodGet, "/watchlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec.Body.Bytes())["data"].([]interface{})
	require.Len(t, items, 1)

	rec = serve(t, srv, http.MethodDelete, "/watchlist/msft", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, srv, http.MethodDelete, "/watchlist/msft", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchlist_EmptyListIsArray(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := serve(t, srv, http.MethodGet, "/watchlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, decode(t, rec.Body.Bytes())["data"])
}

func TestWatchlistAdd_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", `{"symbol":`},
		{"invalid symbol", `{"symbol":"NOT A TICKER"}`},
		{"missing symbol", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			rec := serve(t, srv, http.MethodPost, "/watchlist", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

// --- calendar ---

func TestCalendar_ForwardsQuery(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.calendar.res = &models.CalendarResult{OK: true, Range: "month", Source: models.SourceFresh}

	rec := serve(t, srv, http.MethodGet, "/calendar?range=month&watchlist=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "month", fakes.calendar.lastRange)
	assert.True(t, fakes.calendar.lastWatchlist)
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))
}

func TestCalendar_DefaultsPassEmptyRange(t *testing.T) {
	srv, fakes := newTestServer(t)
	fakes.calendar.res = &models.CalendarResult{OK: true, Range: "week", Source: models.SourceMemory}

	rec := serve(t, srv, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", fakes.calendar.lastRange)
	assert.False(t, fakes.calendar.lastWatchlist)
}

func TestCalendar_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown range", fmt.Errorf("%w: %q", common.ErrInvalidRange, "decade"), http.StatusBadRequest},
		{"no source answered", fmt.Errorf("calendar week: %w", common.ErrUpstreamUnavailable), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, fakes := newTestServer(t)
			fakes.calendar.err = tt.err
			rec := serve(t, srv, http.MethodGet, "/calendar?range=decade", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

// --- system ---

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec.Body.Bytes())["status"])

	rec = serve(t, srv, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec.Body.Bytes())
	assert.Equal(t, common.CurrentBuild().Version, body["version"])
	assert.Contains(t, body, "go_version")
	assert.Contains(t, body, "uptime")

	rec = serve(t, srv, http.MethodPost, "/api/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := serve(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
