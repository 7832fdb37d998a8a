package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"
	maxVisitors     = 10000
	visitorTTL      = 10 * time.Minute
)

type requestIDKey struct{}

// RequestIDFromCtx возвращает идентификатор запроса, выставленный requestID.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID берет X-Request-ID клиента или генерирует новый.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// accessLog пишет одну строку на запрос.
func accessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Infof("%s %s %d %dB %s request_id=%s",
				r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), RequestIDFromCtx(r.Context()))
		})
	}
}

// rateLimit ограничивает частоту запросов с одного IP. rps <= 0 отключает ограничение.
// Неактивные IP вытесняются из LRU по TTL.
func rateLimit(rps float64, burst int, log logger.Logger) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst = max(burst, 1)

	visitors := expirable.NewLRU[string, *rate.Limiter](maxVisitors, nil, visitorTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			limiter, ok := visitors.Get(ip)
			if !ok {
				limiter = rate.NewLimiter(rate.Limit(rps), burst)
				visitors.Add(ip, limiter)
			}

			if !limiter.Allow() {
				log.Warnf("rate limit exceeded: ip=%s path=%s", ip, r.URL.Path)
				w.Header().Set("Retry-After", "1")
				WriteError(w, e.ErrTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
