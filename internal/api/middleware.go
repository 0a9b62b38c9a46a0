package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cookiebox/internal/auth"
	"cookiebox/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// logMiddleware logs and measures each request. The path label is the matched
// route pattern so ids never reach metric labels.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		path := r.Pattern
		if i := strings.IndexByte(path, ' '); i >= 0 {
			path = path[i+1:]
		}
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())
		s.Log.Info("http request", "remote", remoteIP(r), "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration_ms", dur.Milliseconds())
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.Log.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
				writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "", r.URL.Path)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type principalKey struct{}

// requireAdmin admits admin bearer tokens and basic credentials. Browser
// websocket clients cannot set headers, so an access_token query parameter is
// accepted as a bearer token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pr, err := s.Auth.Authenticate(r)
		if errors.Is(err, auth.ErrNoCredentials) {
			if tok := r.URL.Query().Get("access_token"); tok != "" {
				pr, err = s.Auth.VerifyToken(tok)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrForbidden):
			writeProblem(w, http.StatusForbidden, "Forbidden", err.Error(), r.URL.Path)
			return
		default:
			w.Header().Set("WWW-Authenticate", `Basic realm="cookiebox admin"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, pr)))
	})
}

func principalFrom(ctx context.Context) auth.Principal {
	pr, _ := ctx.Value(principalKey{}).(auth.Principal)
	return pr
}

type limiterEntry struct {
	limiter *rate.Limiter
	last    time.Time
}

// ipLimiter hands out one token bucket per client address.
type ipLimiter struct {
	rps   rate.Limit
	burst int
	mu    sync.Mutex
	ips   map[string]*limiterEntry
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{rps: rate.Limit(rps), burst: burst, ips: map[string]*limiterEntry{}}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.ips[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.ips[ip] = e
	}
	e.last = now
	return e.limiter.AllowN(now, 1)
}

// sweep forgets clients idle for longer than maxIdle.
func (l *ipLimiter) sweep(now time.Time, maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for ip, e := range l.ips {
		if now.Sub(e.last) > maxIdle {
			delete(l.ips, ip)
			n++
		}
	}
	return n
}

// RunJanitor sweeps idle rate limiter entries until ctx is done.
func (s *Server) RunJanitor(ctx context.Context) {
	if s.Limiter == nil {
		return
	}
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Limiter.sweep(now, 30*time.Minute); n > 0 {
				s.Log.Debug("rate limiter sweep", "removed", n)
			}
		}
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Limiter.allow(remoteIP(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
