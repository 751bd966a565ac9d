package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/httpmw"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is reset when the entry is evicted
	logged bool
}

// IPLimiter holds one token bucket per client address.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int
	now         func() time.Time

	onFirstDenied func(ip string)
	onDenied      func(ip string)
	onCapacity    func()
}

type Option func(*IPLimiter)

// WithRate refills perSecond tokens a second into a bucket of size burst.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL sets how long an idle address is remembered.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) { l.ttl = d }
}

// WithMaxVisitors caps the number of tracked addresses. New addresses are
// refused while the table is full.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxVisitors = n }
}

// WithOnFirstDenied runs once per tracked address, on its first denial.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onFirstDenied = fn }
}

// WithOnDenied runs on every denial.
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onDenied = fn }
}

// WithOnCapacity runs whenever a new address is refused because the table
// is full.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.onCapacity = fn }
}

// New builds a limiter and starts its eviction loop, which stops with ctx.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:    make(map[string]*visitor),
		perSecond:   20,
		burst:       40,
		ttl:         5 * time.Minute,
		maxVisitors: 10000,
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(ctx)
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			l.mu.Unlock()
			if l.onCapacity != nil {
				l.onCapacity()
			}
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[ip] = v
	}
	now := l.now()
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)
	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	// hooks may be slow, never run them under the lock
	l.mu.Unlock()

	if allowed {
		return true
	}
	if first && l.onFirstDenied != nil {
		l.onFirstDenied(ip)
	}
	if l.onDenied != nil {
		l.onDenied(ip)
	}
	return false
}

// Len returns the number of tracked addresses.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *IPLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
		}
	}
}

func (l *IPLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(l.now())
		}
	}
}

// Middleware answers 429 for requests over the limit. It keys on the
// address httpmw.ClientIP resolved, so it must run inside that middleware.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(httpmw.ClientIPFromContext(r.Context())) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"RATE_LIMITED","message":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
