package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
)

const operatorHeader = "X-Operator-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("operator", r.Header.Get(operatorHeader)),
			zap.String("from", r.RemoteAddr),
			zap.Duration("dur", time.Since(start)))
	})
}

type operatorKey struct{}

func withOperator(ctx context.Context, op service.Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

func operatorFrom(ctx context.Context) service.Operator {
	op, _ := ctx.Value(operatorKey{}).(service.Operator)
	return op
}

// operatorLimiter hands out one token bucket per operator.
type operatorLimiter struct {
	limit rate.Limit
	burst int

	mu   sync.Mutex
	byOp map[string]*rate.Limiter
}

func newOperatorLimiter(perMinute float64, burst int) *operatorLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &operatorLimiter{
		limit: rate.Limit(perMinute / 60),
		burst: burst,
		byOp:  make(map[string]*rate.Limiter),
	}
}

func (l *operatorLimiter) allow(operatorID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.byOp[operatorID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byOp[operatorID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// authenticated resolves the caller from the operator header and, for
// mutating requests, applies the per-operator rate limit.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(operatorHeader)
		if id == "" {
			s.writeError(w, r, http.StatusUnauthorized, "no_operator", operatorHeader+" header is required")
			return
		}
		op, err := s.operators.Lookup(id)
		if err != nil {
			s.writeError(w, r, http.StatusUnauthorized, "unknown_operator", "operator is not registered")
			return
		}
		if mutating(r.Method) && !s.limiter.allow(op.ID) {
			s.writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next(w, r.WithContext(withOperator(r.Context(), op)))
	}
}
