package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	nativecommon "github.com/LendefiMarkets/lendefi-markets-polygon/native/common"
	"github.com/LendefiMarkets/lendefi-markets-polygon/observability"
)

type contextKey string

const (
	contextKeyCaller    contextKey = "rpc.caller"
	contextKeyRequestID contextKey = "rpc.request_id"
)

// callerFrom returns the authenticated caller bound by the auth middleware.
func callerFrom(r *http.Request) (common.Address, bool) {
	caller, ok := r.Context().Value(contextKeyCaller).(common.Address)
	return caller, ok
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(contextKeyRequestID).(string)
	return id
}

// requestID tags every request with a correlation id, honouring one supplied
// by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticator validates HMAC-signed bearer tokens. The subject claim names
// the caller's account address; handlers act on behalf of that address.
type Authenticator struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
	logger    *slog.Logger
}

// NewAuthenticator builds the bearer-token middleware.
func NewAuthenticator(secret, issuer string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret:    []byte(strings.TrimSpace(secret)),
		issuer:    strings.TrimSpace(issuer),
		clockSkew: 2 * time.Minute,
		logger:    logger,
	}
}

// IssueToken mints a token for the given account. The daemon exposes this for
// operator tooling and tests; production deployments mint tokens out of band.
func (a *Authenticator) IssueToken(account common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   account.Hex(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid token and binds the caller
// address into the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token", RequestID: requestIDFrom(r)})
			return
		}
		caller, err := a.parseCaller(tokenString)
		if err != nil {
			a.logger.Warn("token rejected", "component", "rpc", "error", err.Error())
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token", RequestID: requestIDFrom(r)})
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parseCaller(tokenString string) (common.Address, error) {
	claims := &jwt.RegisteredClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.clockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, fmt.Errorf("subject %q is not an address", claims.Subject)
	}
	return common.HexToAddress(claims.Subject), nil
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// RateLimiter throttles requests per authenticated caller.
type RateLimiter struct {
	mu       sync.Mutex
	perMin   float64
	burst    int
	visitors map[common.Address]*rate.Limiter
}

// NewRateLimiter allows perMin requests per minute per caller. A zero perMin
// disables throttling.
func NewRateLimiter(perMin float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perMin:   perMin,
		burst:    burst,
		visitors: make(map[common.Address]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiterFor(caller common.Address) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.visitors[caller]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.perMin/60.0), rl.burst)
		rl.visitors[caller] = limiter
	}
	return limiter
}

// Middleware rejects callers over their request budget.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.perMin <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		caller, ok := callerFrom(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.limiterFor(caller).Allow() {
			observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", RequestID: requestIDFrom(r)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// quotaKeeper tracks per-caller request and base-volume usage per module
// epoch.
type quotaKeeper struct {
	mu     sync.Mutex
	quotas map[string]nativecommon.Quota
	usage  map[string]nativecommon.QuotaNow
	now    func() time.Time
}

func newQuotaKeeper(quotas map[string]nativecommon.Quota) *quotaKeeper {
	return &quotaKeeper{
		quotas: quotas,
		usage:  make(map[string]nativecommon.QuotaNow),
		now:    time.Now,
	}
}

// consume charges one request plus optional base-asset volume against the
// caller's module quota.
func (k *quotaKeeper) consume(module string, caller common.Address, volume uint64) error {
	if k == nil {
		return nil
	}
	quota, ok := k.quotas[module]
	if !ok {
		return nil
	}
	epochSeconds := uint64(quota.EpochSeconds)
	if epochSeconds == 0 {
		epochSeconds = 60
	}
	epoch := uint64(k.now().Unix()) / epochSeconds
	key := module + "/" + caller.Hex()

	k.mu.Lock()
	defer k.mu.Unlock()
	next, err := nativecommon.CheckQuota(quota, epoch, k.usage[key], 1, volume)
	if err != nil {
		observability.ModuleMetrics().RecordThrottle(module, "quota_exceeded")
		return err
	}
	k.usage[key] = next
	return nil
}

// metricsMiddleware records request counts and latency per module and method.
func metricsMiddleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			observability.ModuleMetrics().Observe(module, r.Method+" "+r.URL.Path, recorder.status, time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
