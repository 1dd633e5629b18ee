package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/feedledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/feedledger-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	replayedHeader         = "Idempotent-Replayed"
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	pendingIdempotencyTTL  = time.Minute
)

type idempotencyRule struct {
	method  string
	pattern string
	ttl     time.Duration // zero uses the middleware default
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, pattern: "/api/v1/feed/stock/restock"},
	{method: http.MethodPost, pattern: "/api/v1/feed/stock/consume"},
	// daily entries are re-submitted days later when a form is edited offline
	{method: http.MethodPost, pattern: "/api/v1/feed/daily-entries/reconcile", ttl: criticalIdempotencyTTL},
}

// Idempotency replays the stored response of a mutating request sent again
// with the same Idempotency-Key by the same client. While the first request
// runs the key holds a short-lived pending marker. Server errors are not
// stored so the caller can retry with the same key.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	g := &idempotencyGuard{store: store, ttl: ttl, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ruleTTL, keyed := routeTTL(r.Method, routePattern(r))
			if !keyed || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if ruleTTL == 0 {
				ruleTTL = ttl
			}
			if err := g.serve(w, r, next, ruleTTL); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
			}
		})
	}
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

// serve returns an error only when nothing has been written to w yet.
func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ttl time.Duration) error {
	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if clientKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	ctx := r.Context()
	key := g.store.IdempotencyKey(idempotencyScope(r), clientKey)
	hash := hashBody(body)

	claimed, err := g.store.SetNX(ctx, key, pendingRecord(hash), pendingIdempotencyTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if !claimed {
		return g.replay(ctx, w, key, hash)
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)

	// the handler already answered; bookkeeping failures are only logged
	persistCtx := context.WithoutCancel(ctx)
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		g.logFailure(ctx, "release idempotency claim", g.store.Del(persistCtx, key))
		return nil
	}
	payload, err := completedRecord(hash, status, capture.Header().Get("Content-Type"), capture.body.Bytes())
	if err != nil {
		g.logFailure(ctx, "encode idempotency record", err)
		g.logFailure(ctx, "release idempotency claim", g.store.Del(persistCtx, key))
		return nil
	}
	g.logFailure(ctx, "persist idempotency record", g.store.Set(persistCtx, key, payload, ttl))
	return nil
}

// replay answers from the stored record of a key someone else claimed.
func (g *idempotencyGuard) replay(ctx context.Context, w http.ResponseWriter, key, hash string) error {
	stored, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the claim expired or was released between SetNX and Get
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress").WithRetryAfter(time.Second)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	record, err := decodeRecord(stored)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record")
	}
	switch {
	case record.RequestHash != hash:
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	case record.Pending:
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress").WithRetryAfter(time.Second)
	}
	w.Header().Set(replayedHeader, "true")
	record.writeTo(w)
	return nil
}

func (g *idempotencyGuard) logFailure(ctx context.Context, msg string, err error) {
	if g.logg == nil || err == nil {
		return
	}
	g.logg.Error(ctx, msg, err)
}

// idempotencyScope keeps keys from different clients and endpoints apart.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{ClientIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

// routePattern prefers the chi pattern. A router-level Use sees a partial
// pattern ending in "/*", so the raw path is used instead.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.HasSuffix(p, "*") {
			return p
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.pattern == pattern {
			return rule.ttl, true
		}
	}
	return 0, false
}
