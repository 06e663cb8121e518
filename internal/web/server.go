// Package web provides the HTTP listeners of the bridge: the operator
// surface (status page, metrics, login, frontend channel) and the agent
// listener.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sweeney/telemetry-bridge/internal/credentials"
	"github.com/sweeney/telemetry-bridge/internal/status"
)

// Authenticator checks operator credentials.
type Authenticator interface {
	CheckPassword(ctx context.Context, username, password string) (credentials.Profile, error)
}

// Options configures the frontend Server. Nil fields disable the routes
// that need them.
type Options struct {
	Tracker        *status.Tracker
	Channel        http.Handler
	Auth           Authenticator
	LoginPerMinute int
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Logger         *zap.SugaredLogger
}

// Server serves one HTTP listener.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	auth       Authenticator
	limiter    *loginLimiter
	log        *zap.SugaredLogger
}

// New creates the frontend server on addr.
func New(addr string, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		tracker: opts.Tracker,
		auth:    opts.Auth,
		limiter: newLoginLimiter(opts.LoginPerMinute),
		log:     log.Named("web"),
	}

	mux := http.NewServeMux()
	if s.tracker != nil {
		mux.HandleFunc("/", s.handleIndex)
		mux.HandleFunc("/index.html", s.handleIndex)
		mux.HandleFunc("/index.json", s.handleJSON)
	}
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.auth != nil {
		mux.HandleFunc("/api/login", s.handleLogin)
	}
	if opts.Channel != nil {
		mux.Handle("/ws", opts.Channel)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: withCORS(opts.AllowedOrigins, mux),
	}
	return s
}

// NewAgent creates the agent listener on addr. It only serves the agent
// channel at /ws.
func NewAgent(addr string, channel http.Handler, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", channel)
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log.Named("web"),
	}
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Errorw("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
