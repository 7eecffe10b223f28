package layers

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kilianp07/ghsdash/core/logger"
	"github.com/kilianp07/ghsdash/core/metrics"
)

// Options tunes the router middleware.
type Options struct {
	// RateLimit is the sustained requests per second allowed per client.
	// Zero disables limiting.
	RateLimit float64
	Burst     int
	Log       logger.Logger
	Recorder  metrics.RequestRecorder
}

// NewRouter registers the layer routes and middleware on a new router.
// Additional routes added to the router share the middleware.
func NewRouter(cat Catalog, opts Options) *mux.Router {
	h := &handlers{cat: cat}
	r := mux.NewRouter()
	r.Use(loggingMiddleware(opts.Log))
	r.Use(metricsMiddleware(opts.Recorder))
	if opts.RateLimit > 0 {
		r.Use(newClientLimiter(opts.RateLimit, opts.Burst).middleware)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.health).Methods(http.MethodGet)
	api.HandleFunc("/legend", h.legend).Methods(http.MethodGet)
	api.HandleFunc("/map", h.mapSpec).Methods(http.MethodGet)
	api.HandleFunc("/layers/{name}", h.features).Methods(http.MethodGet)
	api.HandleFunc("/layers/{name}/features/{id}", h.feature).Methods(http.MethodGet)
	api.HandleFunc("/layers/{name}/top", h.top).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if cr := mux.CurrentRoute(r); cr != nil {
		if tpl, err := cr.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if log == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debugw("request", map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.code,
				"duration": time.Since(start).String(),
				"remote":   r.RemoteAddr,
			})
		})
	}
}

func metricsMiddleware(recorder metrics.RequestRecorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			_ = recorder.RecordRequest(metrics.RequestEvent{
				Route:    routeTemplate(r),
				Code:     rec.code,
				Duration: time.Since(start),
			})
		})
	}
}

const (
	// limiterIdle is how long a client bucket survives without requests.
	limiterIdle = 3 * time.Minute
	// limiterSweep is the minimum interval between idle sweeps.
	limiterSweep = time.Minute
)

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP. Buckets idle for
// longer than limiterIdle are evicted, swept lazily on lookup.
type clientLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = int(rps) + 1
	}
	return &clientLimiter{
		buckets: map[string]*clientBucket{},
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (c *clientLimiter) get(client string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.lastSweep) >= limiterSweep {
		for k, b := range c.buckets {
			if now.Sub(b.lastSeen) > limiterIdle {
				delete(c.buckets, k)
			}
		}
		c.lastSweep = now
	}
	b, ok := c.buckets[client]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(c.rps, c.burst)}
		c.buckets[client] = b
	}
	b.lastSeen = now
	return b.lim
}

func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

func (c *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !c.get(host).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
