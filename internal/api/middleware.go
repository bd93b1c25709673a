package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/mailpipe/pkg/id"
	"github.com/dmitrymomot/mailpipe/pkg/logger"
)

// RequestIDHeaders are checked in order for an upstream request ID.
var RequestIDHeaders = []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID"}

type requestIDKey struct{}

// withRequestID reuses an upstream request ID or generates one, stores it in
// the request context and echoes it back.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqID string
		for _, h := range RequestIDHeaders {
			if v := r.Header.Get(h); v != "" {
				reqID = v
				break
			}
		}
		if reqID == "" {
			reqID = id.New()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

// RequestID returns the request ID stored by the API, or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// RequestIDExtractor adds request_id to every log entry written with a
// request context.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v := RequestID(ctx); v != "" {
			return slog.String("request_id", v), true
		}
		return slog.Attr{}, false
	}
}

const stackSize = 4096

func withRecover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]
				log.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(stack)))
				writeError(w, r, log, errPanic)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// withTimeout bounds the request context. Handlers that return after the
// deadline get a 503 instead of their own response.
func withTimeout(d time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w}
			next.ServeHTTP(tw, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !tw.written {
				log.WarnContext(r.Context(), "request timeout", slog.Duration("timeout", d))
				writeError(w, r, log, errTimeout)
			}
		})
	}
}

type timeoutWriter struct {
	http.ResponseWriter
	written bool
}

func (w *timeoutWriter) WriteHeader(code int) {
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// withBearerToken rejects requests whose Authorization header does not carry
// token. An empty token disables the check.
func withBearerToken(token string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, r, log, errUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterStore keeps one token bucket per client address.
type limiterStore struct {
	limiters sync.Map // map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	lastAccess time.Time
}

func (s *limiterStore) get(key string) *rate.Limiter {
	now := s.now()
	if v, ok := s.limiters.Load(key); ok {
		e := v.(*limiterEntry)
		e.mu.Lock()
		e.lastAccess = now
		e.mu.Unlock()
		return e.limiter
	}
	v, _ := s.limiters.LoadOrStore(key, &limiterEntry{
		limiter:    rate.NewLimiter(s.rps, s.burst),
		lastAccess: now,
	})
	return v.(*limiterEntry).limiter
}

// sweep drops limiters idle for longer than ttl.
func (s *limiterStore) sweep(ttl time.Duration) {
	threshold := s.now().Add(-ttl)
	s.limiters.Range(func(k, v any) bool {
		e := v.(*limiterEntry)
		e.mu.Lock()
		stale := e.lastAccess.Before(threshold)
		e.mu.Unlock()
		if stale {
			s.limiters.Delete(k)
		}
		return true
	})
}

func (s *limiterStore) sweepLoop(ctx context.Context, every, ttl time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ttl)
		}
	}
}

// withRateLimit enforces rps per client IP. rps <= 0 disables it.
func withRateLimit(ctx context.Context, rps float64, burst int, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		store := &limiterStore{rps: rate.Limit(rps), burst: max(burst, 1), now: time.Now}
		go store.sweepLoop(ctx, 5*time.Minute, time.Hour)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := store.get(clientIP(r))
			if !lim.Allow() {
				res := lim.Reserve()
				retryAfter := int(res.Delay().Seconds())
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				writeError(w, r, log, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
