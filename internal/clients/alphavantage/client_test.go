package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const earningsFixture = `{
  "symbol": "IBM",
  "quarterlyEarnings": [
    {"fiscalDateEnding": "2025-06-30", "reportedDate": "2025-07-23", "reportedEPS": "2.8", "estimatedEPS": "2.64", "surprise": "0.16", "surprisePercentage": "6.0606"},
    {"fiscalDateEnding": "2025/03/31", "reportedDate": "2025-04-23", "reportedEPS": "1.6", "estimatedEPS": "None", "surprise": "None", "surprisePercentage": "None"},
    {"fiscalDateEnding": "2024-12-31", "reportedDate": "2025-01-29", "reportedEPS": "3.92", "estimatedEPS": "3.77", "surprise": "0.15", "surprisePercentage": "None"},
    {"fiscalDateEnding": "", "reportedEPS": "1"}
  ]
}`

func TestFetchEPSHistory_ParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "EARNINGS", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(earningsFixture))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(0))
	res := client.FetchEPSHistory(context.Background(), "IBM")

	require.True(t, res.OK)
	assert.Equal(t, "alphavantage", res.Source)
	require.Len(t, res.Rows, 3, "row without fiscal date is dropped")

	first := res.Rows[0]
	assert.Equal(t, "2025-06-30", first.FiscalDateEnding)
	require.NotNil(t, first.ReportedDate)
	assert.Equal(t, "2025-07-23", *first.ReportedDate)
	assert.Equal(t, 2.8, *first.ReportedEPS)
	assert.Equal(t, 6.0606, *first.SurprisePercent)

	// "None" placeholders become nil, never zero
	second := res.Rows[1]
	assert.Equal(t, "2025-03-31", second.FiscalDateEnding)
	assert.Nil(t, second.EstimatedEPS)
	assert.Nil(t, second.SurprisePercent)

	// Missing provider surprise is derived from EPS values
	third := res.Rows[2]
	require.NotNil(t, third.SurprisePercent)
	assert.Equal(t, 3.9788, *third.SurprisePercent)
}

func TestFetchEPSHistory_ThrottleNoticeIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Information": "rate limit reached"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(0))
	res := client.FetchEPSHistory(context.Background(), "IBM")
	assert.False(t, res.OK)
	assert.Empty(t, res.Rows)
}

func TestFetchEPSHistory_UnknownSymbolAnswersEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(0))
	res := client.FetchEPSHistory(context.Background(), "ZZZZ")
	assert.True(t, res.OK)
	assert.Empty(t, res.Rows)
}

func TestFetchEPSHistory_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(0))
	res := client.FetchEPSHistory(context.Background(), "IBM")
	assert.False(t, res.OK)
}

func TestFetchEPSHistory_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(earningsFixture))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(0), WithTimeout(20*time.Millisecond))
	res := client.FetchEPSHistory(context.Background(), "IBM")
	assert.False(t, res.OK)
}

func TestFetchEPSHistory_NoKeyMakesNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	res := client.FetchEPSHistory(context.Background(), "IBM")
	assert.False(t, res.OK)
	assert.False(t, called)
}
