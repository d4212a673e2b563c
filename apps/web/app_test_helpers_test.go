package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const testSigningSecret = "0123456789abcdef"

var testNow = time.Date(2024, time.May, 1, 12, 30, 0, 123_000_000, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *Config {
	return &Config{
		Env:              "test",
		StoreDriver:      storeDriverMemory,
		StoreScope:       storeScopeDevice,
		AppSigningSecret: testSigningSecret,
		DisplayTimezone:  "UTC",
		OverlayTimeout:   time.Second,
		ShutdownTimeout:  time.Second,
	}
}

func newTestApp(t *testing.T, kv KeyValueStore) *App {
	t.Helper()
	return newTestAppWithClock(t, kv, clockwork.NewFakeClockAt(testNow))
}

func newTestAppWithClock(t *testing.T, kv KeyValueStore, clock clockwork.Clock) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if kv == nil {
		kv = newMemoryKeyValueStore()
	}
	cfg := newTestConfig()
	return newApp(cfg, kv, clock, discardLogger(), NewMetricsForTesting(), newOverlaySource(cfg))
}

// testClient keeps cookies between requests like a browser would.
type testClient struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newTestClient(t *testing.T, handler http.Handler) *testClient {
	return &testClient{t: t, handler: handler, cookies: map[string]*http.Cookie{}}
}

func (tc *testClient) get(target string) *httptest.ResponseRecorder {
	return tc.do(http.MethodGet, target, nil)
}

func (tc *testClient) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	return tc.do(http.MethodPost, target, form)
}

func (tc *testClient) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	tc.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, cookie := range tc.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	tc.handler.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(tc.cookies, cookie.Name)
			continue
		}
		tc.cookies[cookie.Name] = cookie
	}
	return rec
}

func (tc *testClient) cookie(name string) *http.Cookie {
	return tc.cookies[name]
}

func (tc *testClient) openAdminGate() {
	tc.t.Helper()
	rec := tc.postForm("/admin/login", url.Values{"password": {adminSecret}})
	if rec.Code != http.StatusSeeOther {
		tc.t.Fatalf("admin login: expected 303, got %d", rec.Code)
	}
}

// countingStore wraps a store and counts writes.
type countingStore struct {
	KeyValueStore
	mu   sync.Mutex
	sets int
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.KeyValueStore.Set(ctx, key, value)
}

func (s *countingStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

var errBackendDown = errors.New("backend down")

// failingStore fails reads and/or writes on demand.
type failingStore struct {
	KeyValueStore
	failGet bool
	failSet bool
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errBackendDown
	}
	return s.KeyValueStore.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errBackendDown
	}
	return s.KeyValueStore.Set(ctx, key, value)
}

func (s *failingStore) Ping(ctx context.Context) error {
	if s.failGet {
		return errBackendDown
	}
	return s.KeyValueStore.Ping(ctx)
}

// stringOverlaySource serves a fixed KML document.
type stringOverlaySource struct {
	body string
	err  error
}

func (s stringOverlaySource) Open(context.Context) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func strPtr(value string) *string {
	return &value
}
