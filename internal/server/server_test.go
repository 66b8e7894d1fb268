package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/predictledger/internal/auth"
	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/custody"
	"github.com/alanyoungcy/predictledger/internal/server/handler"
	"github.com/alanyoungcy/predictledger/internal/service"
	"github.com/alanyoungcy/predictledger/internal/store/memory"
)

const testStart = 1_700_000_000

var testTokens = map[string]string{
	"tok-admin": "admin",
	"tok-alice": "alice",
	"tok-bob":   "bob",
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubLimiter struct {
	mu    sync.Mutex
	calls map[string]int
	limit int
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[key]++
	return l.calls[key] <= l.limit, nil
}

type testServer struct {
	srv    *httptest.Server
	oracle *crypto.Attestor
}

func newTestServer(t *testing.T, limiter *stubLimiter) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	att, err := crypto.GenerateAttestor()
	if err != nil {
		t.Fatalf("GenerateAttestor: %v", err)
	}
	core := service.NewCore(service.Ports{
		Host:     memory.New(),
		Transfer: custody.NewLedger(),
		Auth:     auth.NewContextAuthorizer(),
		Clock:    fixedClock{now: time.Unix(testStart, 0).UTC()},
	}, service.Config{DefaultAsset: "usdc"}, logger)
	if err := core.Initialize(auth.WithPrincipal(context.Background(), "admin"), "admin"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	handlers := Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Status:    &handler.StatusHandler{Mode: "server", Backend: "memory", StartedAt: time.Now()},
		Markets:   handler.NewMarketHandler(core, logger),
		Positions: handler.NewPositionHandler(core, logger),
		Accounts:  handler.NewAccountHandler(core, "usdc", logger),
	}
	cfg := Config{Tokens: testTokens, RateLimit: 1, RateWindow: time.Minute}
	var h http.Handler
	if limiter != nil {
		h = NewHandler(cfg, handlers, nil, limiter, logger)
	} else {
		h = NewHandler(cfg, handlers, nil, nil, logger)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, oracle: att}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (s *testServer) expect(t *testing.T, method, path, token string, body any, want int) map[string]any {
	t.Helper()
	status, out := s.do(t, method, path, token, body)
	if status != want {
		t.Fatalf("%s %s: status = %d, want %d (body %v)", method, path, status, want, out)
	}
	return out
}

func TestServer_FullLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	s.expect(t, "POST", "/api/accounts/alice/mint", "tok-admin", map[string]any{"amount": "1000"}, http.StatusOK)

	m := s.expect(t, "POST", "/api/markets", "tok-admin", map[string]any{
		"question":   "Will it rain tomorrow?",
		"end_time":   testStart + 86_400,
		"oracle_key": s.oracle.PublicKey().String(),
	}, http.StatusCreated)
	id, _ := m["id"].(string)
	if id != "1" {
		t.Fatalf("market id = %v, want 1", m["id"])
	}
	if m["creator"] != "admin" {
		t.Errorf("creator = %v, want admin", m["creator"])
	}

	dep := s.expect(t, "POST", "/api/markets/1/deposits", "tok-alice", map[string]any{"amount": "100"}, http.StatusOK)
	if dep["user"] != "alice" || dep["total"] != "100" {
		t.Errorf("deposit response = %v", dep)
	}

	s.expect(t, "POST", "/api/markets/1/positions", "tok-admin", map[string]any{
		"user": "alice", "yes_delta": "100", "no_delta": "30", "price_bps": 5000,
	}, http.StatusOK)

	pos := s.expect(t, "GET", "/api/markets/1/positions/alice", "tok-bob", nil, http.StatusOK)
	if pos["yes_shares"] != "100" || pos["no_shares"] != "30" {
		t.Errorf("position = %v", pos)
	}

	preview := s.expect(t, "GET", "/api/markets/1/positions/alice/payout", "tok-alice", nil, http.StatusOK)
	if preview["resolved"] != false {
		t.Errorf("preview before resolution = %v", preview)
	}

	sig := hex.EncodeToString(s.oracle.Attest("1", true))
	res := s.expect(t, "POST", "/api/markets/1/resolve", "tok-bob", map[string]any{
		"outcome": "yes", "signature": sig,
	}, http.StatusOK)
	if res["status"] != "resolved" {
		t.Errorf("resolve status = %v", res["status"])
	}

	out := s.expect(t, "POST", "/api/markets/1/settlements", "tok-alice", nil, http.StatusOK)
	if out["payout"] != "100" {
		t.Errorf("payout = %v, want 100", out["payout"])
	}

	bal := s.expect(t, "GET", "/api/accounts/alice/balance", "tok-alice", nil, http.StatusOK)
	if bal["balance"] != "1000" || bal["asset"] != "usdc" {
		t.Errorf("balance = %v", bal)
	}

	errBody := s.expect(t, "POST", "/api/markets/1/settlements", "tok-alice", nil, http.StatusConflict)
	if errBody["code"] != float64(11) || errBody["category"] != "position" {
		t.Errorf("second settle error = %v", errBody)
	}

	stats := s.expect(t, "GET", "/api/markets/1/stats", "tok-bob", nil, http.StatusOK)
	if len(stats) == 0 {
		t.Error("empty stats")
	}
}

func TestServer_ErrorStatuses(t *testing.T) {
	s := newTestServer(t, nil)
	s.expect(t, "POST", "/api/markets", "tok-admin", map[string]any{
		"question":   "Q?",
		"end_time":   testStart + 60,
		"oracle_key": s.oracle.PublicKey().String(),
	}, http.StatusCreated)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"unknown market", "GET", "/api/markets/99", "tok-bob", nil, http.StatusNotFound},
		{"no position", "GET", "/api/markets/1/positions/carol", "tok-bob", nil, http.StatusNotFound},
		{"non-admin create", "POST", "/api/markets", "tok-bob", map[string]any{
			"question": "Q?", "end_time": testStart + 60, "oracle_key": s.oracle.PublicKey().String(),
		}, http.StatusForbidden},
		{"acting for someone else", "POST", "/api/markets/1/deposits", "tok-bob", map[string]any{
			"user": "alice", "amount": "10",
		}, http.StatusForbidden},
		{"fractional amount", "POST", "/api/markets/1/deposits", "tok-bob", map[string]any{"amount": "1.5"}, http.StatusBadRequest},
		{"unfunded deposit", "POST", "/api/markets/1/deposits", "tok-bob", map[string]any{"amount": "10"}, http.StatusUnprocessableEntity},
		{"settle before resolution", "POST", "/api/markets/1/settlements", "tok-bob", nil, http.StatusConflict},
		{"bad outcome", "POST", "/api/markets/1/resolve", "tok-bob", map[string]any{"outcome": "maybe", "signature": "00"}, http.StatusBadRequest},
		{"bad signature", "POST", "/api/markets/1/resolve", "tok-bob", map[string]any{"outcome": "yes", "signature": "zz"}, http.StatusForbidden},
		{"unknown field", "POST", "/api/markets/1/deposits", "tok-bob", map[string]any{"amount": "1", "extra": true}, http.StatusBadRequest},
		{"missing amount", "POST", "/api/markets/1/withdrawals", "tok-bob", map[string]any{}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s.expect(t, tc.method, tc.path, tc.token, tc.body, tc.want)
		})
	}
}

func TestServer_Authentication(t *testing.T) {
	s := newTestServer(t, nil)

	s.expect(t, "GET", "/api/health", "", nil, http.StatusOK)
	s.expect(t, "GET", "/api/status", "", nil, http.StatusUnauthorized)
	s.expect(t, "GET", "/api/status", "wrong", nil, http.StatusUnauthorized)

	req, _ := http.NewRequest("GET", s.srv.URL+"/api/status", nil)
	req.Header.Set("X-API-Key", "tok-bob")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("X-API-Key status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_RateLimitPerPrincipal(t *testing.T) {
	limiter := &stubLimiter{calls: map[string]int{}, limit: 2}
	s := newTestServer(t, limiter)

	for range 2 {
		s.expect(t, "GET", "/api/status", "tok-alice", nil, http.StatusOK)
	}
	s.expect(t, "GET", "/api/status", "tok-alice", nil, http.StatusTooManyRequests)
	// Another principal has its own window.
	s.expect(t, "GET", "/api/status", "tok-bob", nil, http.StatusOK)

	if limiter.calls["ratelimit:api:principal:alice"] != 3 {
		t.Errorf("alice calls = %d, want 3", limiter.calls["ratelimit:api:principal:alice"])
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodOptions, s.srv.URL+"/api/markets", nil)
	req.Header.Set("Origin", "https://example.org")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); !strings.EqualFold(got, "https://example.org") {
		t.Errorf("Allow-Origin = %q", got)
	}
}
