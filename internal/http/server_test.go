package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbook/internal/cache"
	"budgetbook/internal/core"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/storage"
)

type testServer struct {
	srv  *Server
	repo *storage.SQLiteRepository
}

func newTestServer(t *testing.T, today time.Time) testServer {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	settings := services.NewSettingsResolver(repo, "€", cache.Nop[core.Settings]{})
	ledger := services.NewLedger(repo, settings, services.NewAdminOrOwner("root"),
		services.WithClock(func() time.Time { return today }))

	logger := log.New(log.Config{Level: slog.LevelError, Format: "text", Output: &bytes.Buffer{}})
	srv, err := NewServer(Config{Addr: ":0", RateLimitPerMinute: 1000}, ledger, repo, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return testServer{srv: srv, repo: repo}
}

func (ts testServer) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(headerUser, user)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk gone") }

func TestHealth_DatabaseDown(t *testing.T) {
	srv, err := NewServer(Config{RateLimitPerMinute: 10}, nil, failingPinger{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk gone")
}

func TestNewServer_InvalidTrustedProxy(t *testing.T) {
	_, err := NewServer(Config{TrustedProxies: []string{"not-a-cidr"}}, nil, nil, nil)
	assert.Error(t, err)
}

func TestRuleLifecycle(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodPost, "/api/rules", "alice",
		`{"title":"Milk","unit_price":"2.5","default_quantity":"2","frequency":"monthly","start_date":"2024-01-31"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decodeBody[core.RecurringRule](t, rec)
	assert.Equal(t, "alice", rule.Creator)
	assert.Equal(t, core.DayOfMonth, rule.MonthlyMode)

	rec = ts.do(t, http.MethodGet, "/api/expenses/month?year=2024&month=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[core.MonthSummary](t, rec)
	require.Contains(t, summary.ByDate, "2024-02-29")
	assert.Equal(t, "5", summary.Total.String())
	assert.Equal(t, "€", summary.Settings.Currency)

	rec = ts.do(t, http.MethodPatch, "/api/rules/"+itoa(rule.ID), "bob", `{"unit_price":"3"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/rules/"+itoa(rule.ID), "alice", `{"unit_price":"3"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/expenses/month?year=2024&month=3", "", "")
	summary = decodeBody[core.MonthSummary](t, rec)
	assert.Equal(t, "6", summary.Total.String())

	rec = ts.do(t, http.MethodGet, "/api/rules", "", "")
	rules := decodeBody[[]core.RecurringRule](t, rec)
	require.Len(t, rules, 1)
	assert.Equal(t, "2024-03-31", rules[0].LastGeneratedDate.String())

	rec = ts.do(t, http.MethodDelete, "/api/rules/"+itoa(rule.ID)+"?cascade=true", "root", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/expenses/month?year=2024&month=3", "", "")
	summary = decodeBody[core.MonthSummary](t, rec)
	assert.Empty(t, summary.ByDate)
	assert.Nil(t, summary.TopCategory)
}

func TestMonthSummary_Params(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		query  string
		status int
		year   int
		month  int
	}{
		{name: "defaults to today", query: "", status: http.StatusOK, year: 2024, month: 4},
		{name: "explicit", query: "?year=2023&month=12", status: http.StatusOK, year: 2023, month: 12},
		{name: "month out of range", query: "?month=13", status: http.StatusBadRequest},
		{name: "not a number", query: "?year=abc", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/expenses/month"+tt.query, "", "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				resp := decodeBody[ErrorResponse](t, rec)
				assert.NotEmpty(t, resp.Error)
				return
			}
			summary := decodeBody[core.MonthSummary](t, rec)
			assert.Equal(t, tt.year, summary.Year)
			assert.Equal(t, tt.month, summary.Month)
		})
	}
}

func TestWritesRequireActor(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodPost, "/api/entries", "", `{"title":"Bread","amount":"2"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/recurring/generate", "  ", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad id", http.MethodPatch, "/api/rules/abc", `{}`, http.StatusBadRequest},
		{"unknown rule", http.MethodPatch, "/api/rules/99", `{"title":"x"}`, http.StatusNotFound},
		{"unknown entry", http.MethodDelete, "/api/entries/99", "", http.StatusNotFound},
		{"malformed json", http.MethodPost, "/api/rules", `{"title":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/rules", `{"title":"x","colour":"red"}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/rules", `{"title":"x","start_date":"15/04/2024"}`, http.StatusBadRequest},
		{"empty title", http.MethodPost, "/api/rules", `{"title":"  "}`, http.StatusBadRequest},
		{"bad cascade flag", http.MethodDelete, "/api/rules/1?cascade=maybe", "", http.StatusBadRequest},
		{"empty bulk delete", http.MethodPost, "/api/entries/bulk-delete", `{"ids":[]}`, http.StatusBadRequest},
		{"non admin settings", http.MethodPut, "/api/settings", `{"currency":"$"}`, http.StatusForbidden},
		{"unknown route", http.MethodGet, "/api/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, "alice", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestEntries(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodPost, "/api/entries", "alice",
		`{"date":"2024-04-03","title":"Bread","unit_price":"1.5","quantity":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bread := decodeBody[core.Entry](t, rec)
	assert.Equal(t, "alice", bread.Payer)
	assert.Equal(t, "3", bread.Amount.String())

	rec = ts.do(t, http.MethodPost, "/api/entries", "alice",
		`{"date":"2024-04-04","title":"Taxi","amount":"12","payer":"bob"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/entries", "bob",
		`{"date":"2024-04-04","title":"Taxi","amount":"12","category":"Travel"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	taxi := decodeBody[core.Entry](t, rec)

	rec = ts.do(t, http.MethodPatch, "/api/entries/"+itoa(bread.ID), "alice", `{"amount":"4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "4", decodeBody[core.Entry](t, rec).Amount.String())

	rec = ts.do(t, http.MethodGet, "/api/expenses/month?year=2024&month=4", "", "")
	summary := decodeBody[core.MonthSummary](t, rec)
	assert.Equal(t, "16", summary.Total.String())
	require.NotNil(t, summary.TopCategory)
	assert.Equal(t, "Travel", *summary.TopCategory)

	rec = ts.do(t, http.MethodPost, "/api/entries/bulk-delete", "alice",
		`{"ids":[`+itoa(bread.ID)+`,`+itoa(taxi.ID)+`,999]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[BulkDeleteResponse](t, rec).Deleted)

	rec = ts.do(t, http.MethodDelete, "/api/entries/"+itoa(taxi.ID), "bob", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodGet, "/api/settings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"currency":"€","categories":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/api/settings", "admin",
		`{"currency":" $ ","categories":["Food"," ","Travel "]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"currency":"$","categories":["Food","Travel"]}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/settings", "", "")
	assert.JSONEq(t, `{"currency":"$","categories":["Food","Travel"]}`, rec.Body.String())
}

func TestGenerate(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodPost, "/api/rules", "alice",
		`{"title":"Paper","unit_price":"1","start_date":"2024-01-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/recurring/generate", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"generated":10,"today":"2024-01-10"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/recurring/generate", "alice", "")
	assert.JSONEq(t, `{"generated":0,"today":"2024-01-10"}`, rec.Body.String())
}

func TestRateLimitOnWrites(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "rl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ledger := services.NewLedger(repo, services.NewSettingsResolver(repo, "", nil), services.NewAdminOrOwner(""))

	srv, err := NewServer(Config{RateLimitPerMinute: 2}, ledger, repo, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "198.51.100.7:1234"
		req.Header.Set(headerUser, "alice")
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/recurring/generate"))
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/recurring/generate"))
	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, "/api/recurring/generate"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/settings"))
}

func TestCORS(t *testing.T) {
	srv, err := NewServer(Config{CORSAllowedOrigins: []string{"https://app.example"}, RateLimitPerMinute: 10}, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodOptions, "/api/rules", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
