package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/vpnclient/internal/auth"
	"github.com/loykin/vpnclient/internal/history"
	mng "github.com/loykin/vpnclient/internal/manager"
	"github.com/loykin/vpnclient/internal/metrics"
	"github.com/loykin/vpnclient/internal/status"
	"github.com/loykin/vpnclient/pkg/client"
)

// Router provides embeddable HTTP handlers over one event log.
// Endpoints:
//
//	GET  {basePath}/status
//	GET  {basePath}/history   query: from=YYYY-MM-DD&to=YYYY-MM-DD&status=UP&sort=asc|desc
//	POST {basePath}/up
//	POST {basePath}/down
//	GET  {basePath}/metrics   only when a gatherer is set
//	POST {basePath}/auth/login only with WithAuth
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
	gatherer prometheus.Gatherer
	auth     *auth.AuthService
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/up, ...
// A nil gatherer disables the metrics route.
func NewRouter(mgr *mng.Manager, basePath string, g prometheus.Gatherer) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath), gatherer: g}
}

// WithAuth requires Basic or Bearer credentials on every route except login.
func (r *Router) WithAuth(svc *auth.AuthService) *Router {
	r.auth = svc
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	if r.auth != nil {
		group.POST("/auth/login", r.handleLogin)
	}

	mw := auth.NewMiddleware(r.auth)
	read := func(resource string) gin.HandlerFunc { return mw.GinRequirePermission(resource, auth.ActionRead) }
	api := group.Group("", mw.GinAuth())
	api.GET("/status", read(auth.ResourceConnection), r.handleStatus)
	api.GET("/history", read(auth.ResourceHistory), r.handleHistory)
	api.POST("/up", mw.GinRequirePermission(auth.ResourceConnection, auth.ActionWrite), r.handleUp)
	api.POST("/down", mw.GinRequirePermission(auth.ResourceConnection, auth.ActionWrite), r.handleDown)
	if r.gatherer != nil {
		api.GET("/metrics", read(auth.ResourceMetrics), gin.WrapH(metrics.Handler(r.gatherer)))
	}
	return g
}

// Server is a running HTTP server for a Router.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	scheme string
	errCh  chan error
	logger *slog.Logger
}

// NewServer listens on addr and serves the router in the background.
// A non-nil tlsCfg switches the listener to HTTPS.
func NewServer(addr string, r *Router, tlsCfg *tls.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	scheme := "http"
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
		scheme = "https"
	}
	s := &Server{
		srv: &http.Server{
			Handler:           r.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ln:     ln,
		scheme: scheme,
		errCh:  make(chan error, 1),
		logger: logger,
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.errCh <- err
	}()
	logger.Info("HTTP API listening", "addr", ln.Addr().String(), "base", r.basePath, "scheme", scheme)
	return s, nil
}

// Addr is the bound listen address, useful with port 0.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// URL is the scheme and bound address, without base path.
func (s *Server) URL() string { return s.scheme + "://" + s.Addr() }

// Done delivers the serve error, nil after a clean shutdown.
func (s *Server) Done() <-chan error { return s.errCh }

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// --- Handlers ---

// handleLogin exchanges a username and password, from a JSON body or Basic auth,
// for a Bearer token.
func (r *Router) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if user, pass, ok := c.Request.BasicAuth(); ok {
		req = auth.LoginRequest{Method: auth.AuthMethodBasic, Username: user, Password: pass}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, client.ErrorResponse{Error: "invalid login request: " + err.Error()})
		return
	}
	if req.Method != "" && req.Method != auth.AuthMethodBasic {
		writeJSON(c, http.StatusBadRequest, client.ErrorResponse{Error: "unsupported auth method: " + string(req.Method)})
		return
	}

	res, err := r.auth.Authenticate(c.Request.Context(), req)
	if err != nil || !res.Success {
		writeJSON(c, http.StatusUnauthorized, client.ErrorResponse{Error: auth.ErrInvalidCredentials.Error()})
		return
	}
	writeJSON(c, http.StatusOK, client.TokenResponse{
		Type:      res.Token.Type,
		Token:     res.Token.Value,
		ExpiresAt: res.Token.ExpiresAt,
	})
}

func (r *Router) handleStatus(c *gin.Context) {
	rep, err := r.mgr.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := client.StatusResponse{Status: rep.Kind.String(), UptimeSeconds: rep.Uptime, Message: rep.String()}
	if rep.Kind != status.NoEvents {
		since := rep.Since
		resp.Since = &since
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleHistory(c *gin.Context) {
	q, err := history.Params{
		From:   c.Query("from"),
		To:     c.Query("to"),
		Status: c.Query("status"),
		Sort:   c.Query("sort"),
	}.Query()
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := r.mgr.History(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := client.HistoryResponse{Events: make([]client.HistoryEntry, 0, len(res.Entries)), Message: res.String()}
	for _, e := range res.Entries {
		resp.Events = append(resp.Events, client.HistoryEntry{Status: e.Status.String(), Timestamp: e.Timestamp, Time: e.FormattedTimestamp()})
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleUp(c *gin.Context) {
	r.handleOperation(c, r.mgr.Up)
}

func (r *Router) handleDown(c *gin.Context) {
	r.handleOperation(c, r.mgr.Down)
}

// handleOperation runs to completion even if the client goes away, so a dropped
// connection cannot turn a successful start or stop into FAILED.
func (r *Router) handleOperation(c *gin.Context, run func(context.Context) (mng.Result, error)) {
	res, err := run(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := client.OperationResponse{Skipped: res.Skipped, Message: res.String()}
	if res.Skipped {
		resp.Status = res.Target.String()
	} else {
		resp.ID = res.Outcome.ID
		resp.Status = res.Outcome.Terminal.String()
	}
	writeJSON(c, http.StatusOK, resp)
}
