package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/vpnclient/internal/auth"
	"github.com/loykin/vpnclient/internal/config"
	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/lifecycle"
	mng "github.com/loykin/vpnclient/internal/manager"
	"github.com/loykin/vpnclient/internal/metrics"
	"github.com/loykin/vpnclient/internal/store"
	"github.com/loykin/vpnclient/pkg/client"
)

var t0 = time.Date(2024, 12, 7, 10, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T, base string, st store.EventStore) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := mng.NewManager(st, mng.Options{
		Simulator: lifecycle.Always(true),
		Now:       func() time.Time { return t0 },
	})
	return NewRouter(mgr, base, nil).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSanitizeBase(t *testing.T) {
	for in, want := range map[string]string{"": "", "/": "", "api": "/api", "/api/": "/api", " /v1 ": "/v1"} {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusEmptyLog(t *testing.T) {
	h := setupRouter(t, "/api", store.NewMemory())
	rec := doReq(t, h, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[client.StatusResponse](t, rec)
	if resp.Status != "NONE" || resp.Message != "No events found" || resp.Since != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestUpThenDown(t *testing.T) {
	st := store.NewMemory()
	h := setupRouter(t, "", st)

	rec := doReq(t, h, http.MethodPost, "/up")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	up := decode[client.OperationResponse](t, rec)
	if up.Skipped || up.Status != "UP" || up.ID == "" || up.Message != "Starting...\r\nStatus: UP" {
		t.Fatalf("unexpected up response %+v", up)
	}

	again := decode[client.OperationResponse](t, doReq(t, h, http.MethodPost, "/up"))
	if !again.Skipped || again.Message != "Already UP" || again.ID != "" {
		t.Fatalf("unexpected second up %+v", again)
	}

	status := decode[client.StatusResponse](t, doReq(t, h, http.MethodGet, "/status"))
	if status.Status != "UP" || status.UptimeSeconds != 0 || status.Since == nil {
		t.Fatalf("unexpected status %+v", status)
	}

	down := decode[client.OperationResponse](t, doReq(t, h, http.MethodPost, "/down"))
	if down.Status != "DOWN" || down.Message != "Stopping...\r\nStatus: DOWN" {
		t.Fatalf("unexpected down %+v", down)
	}
	events, _ := st.All(context.Background())
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
}

func TestDownOnEmptyLogIsSkipped(t *testing.T) {
	st := store.NewMemory()
	h := setupRouter(t, "", st)
	resp := decode[client.OperationResponse](t, doReq(t, h, http.MethodPost, "/down"))
	if !resp.Skipped || resp.Message != "Already DOWN" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if events, _ := st.All(context.Background()); len(events) != 0 {
		t.Fatalf("log must stay empty, got %v", events)
	}
}

func TestHistory(t *testing.T) {
	st := store.NewMemory(
		event.New(event.Starting, t0),
		event.New(event.Up, t0.Add(time.Second)),
		event.New(event.Stopping, t0.Add(48*time.Hour)),
		event.New(event.Failed, t0.Add(48*time.Hour)),
	)
	h := setupRouter(t, "/api", st)

	resp := decode[client.HistoryResponse](t, doReq(t, h, http.MethodGet, "/api/history?to=2024-12-07&sort=desc"))
	if len(resp.Events) != 2 || resp.Events[0].Status != "UP" || resp.Events[0].Time != "2024-12-07T10:00:01" {
		t.Fatalf("unexpected history %+v", resp)
	}
	if resp.Message != "Status: UP, Timestamp: 2024-12-07T10:00:01\nStatus: STARTING, Timestamp: 2024-12-07T10:00:00" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	resp = decode[client.HistoryResponse](t, doReq(t, h, http.MethodGet, "/api/history?status=DOWN"))
	if len(resp.Events) != 0 || resp.Message != "No events found" {
		t.Fatalf("expected empty result, got %+v", resp)
	}
}

func TestHistoryValidation(t *testing.T) {
	h := setupRouter(t, "", store.NewMemory())
	cases := map[string]string{
		"/history?from=2024-1-1":  `invalid date "2024-1-1": text could not be parsed`,
		"/history?status=STATUS":  "no such status: STATUS",
		"/history?sort=sideways":  "invalid sort order",
		"/history?to=not-a-date":  `invalid date "not-a-date"`,
		"/history?status=up&to=x": `invalid date "x"`,
	}
	for path, want := range cases {
		rec := doReq(t, h, http.MethodGet, path)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
		if resp := decode[client.ErrorResponse](t, rec); !strings.Contains(resp.Error, want) {
			t.Fatalf("%s: error %q does not contain %q", path, resp.Error, want)
		}
	}
}

func TestStorageErrorIs500(t *testing.T) {
	st := store.NewMemory()
	st.FailAppendAfter(0, errors.New("disk full"))
	h := setupRouter(t, "", st)
	rec := doReq(t, h, http.MethodPost, "/up")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestUpSurvivesClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	mgr := mng.NewManager(st, mng.Options{
		Simulator: lifecycle.SimulatorFunc(func(ctx context.Context, _ event.Status) bool { return ctx.Err() == nil }),
		Now:       func() time.Time { return t0 },
	})
	h := NewRouter(mgr, "", nil).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/up", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decode[client.OperationResponse](t, rec); resp.Status != "UP" {
		t.Fatalf("expected UP after disconnect, got %+v", resp)
	}
	events, _ := st.All(context.Background())
	if len(events) != 2 || events[1].Status != event.Up {
		t.Fatalf("unexpected log %v", events)
	}
}

func TestMetricsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	mgr := mng.NewManager(store.NewMemory(), mng.Options{Now: func() time.Time { return t0 }})
	h := NewRouter(mgr, "/api", reg).Handler()

	_ = doReq(t, h, http.MethodPost, "/api/up")
	rec := doReq(t, h, http.MethodGet, "/api/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vpnclient_up 1") {
		t.Fatalf("metrics output missing vpnclient_up 1:\n%s", rec.Body.String())
	}

	if rec := doReq(t, setupRouter(t, "", store.NewMemory()), http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics must be disabled without gatherer, got %d", rec.Code)
	}
}

func TestNewServerServesAndShutsDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := mng.NewManager(store.NewMemory(), mng.Options{})
	srv, err := NewServer("127.0.0.1:0", NewRouter(mgr, "/api", nil), nil, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	resp, err := http.Get(srv.URL() + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "No events found") {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-srv.Done(); err != nil {
		t.Fatalf("serve returned %v", err)
	}
}

func TestLoginRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pw, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := auth.NewAuthService(config.AuthConfig{
		Enabled:  true,
		TokenTTL: time.Hour,
		Users:    []config.UserConfig{{Username: "ops", PasswordHash: string(pw), Roles: []string{"operator"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewRouter(mng.NewManager(store.NewMemory(), mng.Options{}), "/api", nil).WithAuth(svc).Handler()

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := login(`{"username":"ops","password":"pw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	tok := decode[client.TokenResponse](t, rec)
	if tok.Type != "Bearer" || tok.Token == "" {
		t.Fatalf("unexpected token: %+v", tok)
	}

	if rec := login(`{"username":"ops","password":"nope"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := login(`{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := login(`{"method":"jwt","token":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodGet, "/api/status"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
}
