package httpx

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/parking/pkg/slogx"
	"golang.org/x/time/rate"
)

// Tier is one token bucket budget: Requests spread over Window, with up to
// Burst spent at once.
type Tier struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

func (t Tier) Validate() error {
	if t.Requests <= 0 || t.Window <= 0 || t.Burst <= 0 {
		return fmt.Errorf("rate limit tier needs positive requests, window and burst (got %d/%s burst %d)",
			t.Requests, t.Window, t.Burst)
	}
	return nil
}

func (t Tier) limit() rate.Limit {
	return rate.Limit(float64(t.Requests) / t.Window.Seconds())
}

// refill is how long an untouched bucket takes to fill back up.
func (t Tier) refill() time.Duration {
	return time.Duration(float64(t.Burst) / float64(t.limit()) * float64(time.Second))
}

// RateLimits are the budgets the parking routes are grouped into.
type RateLimits struct {
	Strict   Tier `yaml:"strict"`   // badge scans, per node and client IP
	Moderate Tier `yaml:"moderate"` // node status reports and admin calls
	Lenient  Tier `yaml:"lenient"`  // reads and health checks
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Strict:   Tier{Requests: 5, Window: time.Minute, Burst: 5},
		Moderate: Tier{Requests: 20, Window: time.Minute, Burst: 20},
		Lenient:  Tier{Requests: 100, Window: time.Minute, Burst: 100},
	}
}

func (l RateLimits) Validate() error {
	return errors.Join(
		wrapTier("strict", l.Strict.Validate()),
		wrapTier("moderate", l.Moderate.Validate()),
		wrapTier("lenient", l.Lenient.Validate()),
	)
}

func wrapTier(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// KeyExtractor picks the bucket a request is charged to. An empty key
// skips limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor uses the first X-Forwarded-For hop, then X-Real-IP, then
// the connection address.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// UserIDKeyExtractor returns the authenticated uid, empty for anonymous calls.
func UserIDKeyExtractor(r *http.Request) string {
	uid, _ := r.Context().Value(CtxKeyUserID).(string)
	return uid
}

// PathValueKeyExtractor keys on a route wildcard, e.g. the node id in
// /api/nodes/{id}, so one node's failed attempts do not throttle another.
func PathValueKeyExtractor(name string) KeyExtractor {
	return func(r *http.Request) string {
		return r.PathValue(name)
	}
}

// CompositeKeyExtractor joins the non-empty keys of each extractor with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

const sweepInterval = time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// buckets holds one limiter per key. Keys idle for longer than a full refill
// are dropped, since a fresh limiter would behave the same.
type buckets struct {
	tier Tier
	now  func() time.Time

	mu        sync.Mutex
	byKey     map[string]*bucket
	lastSweep time.Time
}

func newBuckets(tier Tier) *buckets {
	return &buckets{
		tier:      tier,
		now:       time.Now,
		byKey:     make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (b *buckets) get(key string) (*rate.Limiter, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastSweep) >= sweepInterval {
		idle := b.tier.refill()
		for k, bk := range b.byKey {
			if now.Sub(bk.lastSeen) > idle {
				delete(b.byKey, k)
			}
		}
		b.lastSweep = now
	}

	bk, ok := b.byKey[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(b.tier.limit(), b.tier.Burst)}
		b.byKey[key] = bk
	}
	bk.lastSeen = now
	return bk.limiter, now
}

func (b *buckets) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}

// RateLimit charges each request to the bucket picked by key and answers
// 429 with a Retry-After once the bucket is empty.
func RateLimit(tier Tier, key KeyExtractor) Middleware {
	return rateLimit(newBuckets(tier), key)
}

func rateLimit(b *buckets, key KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter, now := b.get(k)
			if limiter.AllowN(now, 1) {
				next.ServeHTTP(w, r)
				return
			}

			// Time until the next token, rounded up to whole seconds.
			missing := 1 - limiter.TokensAt(now)
			wait := time.Duration(missing / float64(b.tier.limit()) * float64(time.Second))
			retryAfter := max(int((wait+time.Second-1)/time.Second), 1)

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", k,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(b.tier.Requests))
			w.Header().Set("X-RateLimit-Window", b.tier.Window.String())
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"status":  "rate_limited",
				"message": "Too many requests. Please try again later.",
			})
		})
	}
}

func RateLimitByIP(tier Tier) Middleware {
	return RateLimit(tier, IPKeyExtractor)
}

// RateLimitByUser keys on uid and client IP; anonymous callers fall back to
// the IP alone.
func RateLimitByUser(tier Tier) Middleware {
	return RateLimit(tier, CompositeKeyExtractor(":", UserIDKeyExtractor, IPKeyExtractor))
}

// RateLimitByIPAndPathValue keys on client IP and a route wildcard.
func RateLimitByIPAndPathValue(tier Tier, name string) Middleware {
	return RateLimit(tier, CompositeKeyExtractor(":", IPKeyExtractor, PathValueKeyExtractor(name)))
}
