package web

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/sweeney/telemetry-bridge/internal/credentials"
)

const (
	maxLoginBody = 4 << 10
	limiterIdle  = 10 * time.Minute
	limiterPrune = 1024
	msgBadInput  = "Invalid input."
	msgDenied    = "Invalid username or password"
	msgTooMany   = "Too many login attempts"
	msgInternal  = "Internal server error"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}
	ip := clientIP(r)
	if !s.limiter.allow(ip, time.Now()) {
		s.log.Warnw("login rate limited", "remote", ip)
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: msgTooMany})
		return
	}

	var req loginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody))
	if err := dec.Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msgBadInput})
		return
	}

	profile, err := s.auth.CheckPassword(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		s.log.Infow("login", "user", profile.Username, "remote", ip)
		writeJSON(w, http.StatusOK, profile)
	case errors.Is(err, credentials.ErrDenied):
		s.log.Infow("login denied", "user", req.Username, "remote", ip)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgDenied})
	default:
		s.log.Errorw("login failed", "user", req.Username, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternal})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		data = []byte(`{"error":"` + msgInternal + `"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// loginLimiter keeps one token bucket per client address. A limit of zero
// or less disables it.
type loginLimiter struct {
	perMinute int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLoginLimiter(perMinute int) *loginLimiter {
	return &loginLimiter{perMinute: perMinute, clients: make(map[string]*clientLimiter)}
}

func (l *loginLimiter) allow(ip string, now time.Time) bool {
	if l.perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.clients) >= limiterPrune {
		for k, c := range l.clients {
			if now.Sub(c.seen) > limiterIdle {
				delete(l.clients, k)
			}
		}
	}
	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.clients[ip] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}
