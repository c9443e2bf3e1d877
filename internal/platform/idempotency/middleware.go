package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/httpx"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 128
)

type clockFunc func() time.Time

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*guard)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL configures how long completed idempotency records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithLogger injects a logger for persistence errors.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock clockFunc) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

type guard struct {
	store  Store
	header string
	ttl    time.Duration
	clock  clockFunc
	logger *zap.Logger
}

// Middleware guards order mutations with an idempotency key. GET and HEAD pass through untouched.
// Keys are scoped to the authenticated actor. Server errors are not stored, so a retry with the same
// key re-executes once the backend recovers.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:  store,
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next)
		})
	}
}

// attempt is one reserved execution of a keyed request.
type attempt struct {
	key         string
	recordKey   string
	fingerprint string
	requester   string
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	at, apiErr, ok := g.begin(r)
	if !ok {
		httpx.WriteError(ctx, w, apiErr)
		return
	}

	reservation, err := g.store.Reserve(ctx, at.recordKey, at.fingerprint, g.clock().UTC(), g.ttl)
	if err != nil {
		httpx.WriteError(ctx, w, g.storeError(err))
		return
	}
	switch reservation.State {
	case ReservationStateNew:
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
		return
	default:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_unknown_state", "unexpected idempotency state", http.StatusInternalServerError))
		return
	}

	captured := newCaptureWriter()
	next.ServeHTTP(captured, r)
	g.finish(ctx, at, captured)

	if err := captured.flushTo(w); err != nil {
		g.logger.Warn("idempotency: flush response failed", zap.String("idempotency_key", at.key), zap.Error(err))
	}
}

func (g *guard) begin(r *http.Request) (attempt, httpx.Error, bool) {
	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "":
		return attempt{}, httpx.NewError("idempotency_key_required", "missing idempotency key header", http.StatusBadRequest), false
	case len(key) > maxKeyLength:
		return attempt{}, httpx.NewError("idempotency_key_invalid", "idempotency key is too long", http.StatusBadRequest), false
	}
	body, err := bufferBody(r)
	if err != nil {
		return attempt{}, httpx.NewError("idempotency_read_body_failed", "unable to read request body", http.StatusBadRequest), false
	}
	who := requester(r.Context())
	return attempt{
		key:         key,
		recordKey:   recordKey(key, who),
		fingerprint: fingerprint(r, body, who),
		requester:   who,
	}, httpx.Error{}, true
}

// finish stores the captured response, or releases the key when the handler failed with a server error.
// The order mutation has already committed when SaveResponse fails, so the response is still delivered.
func (g *guard) finish(ctx context.Context, at attempt, captured *captureWriter) {
	logger := g.logger.With(zap.String("idempotency_key", at.key), zap.String("requester", at.requester))
	if captured.status >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, at.recordKey, at.fingerprint); err != nil {
			logger.Warn("idempotency: release after server error failed", zap.Error(err))
		}
		return
	}
	resp := Response{Status: captured.status, Headers: captured.header.Clone(), Body: captured.body.Bytes()}
	if err := g.store.SaveResponse(ctx, at.recordKey, at.fingerprint, resp, g.clock().UTC(), g.ttl); err != nil {
		logger.Error("idempotency: persist response failed", zap.Error(err))
		if err := g.store.Release(ctx, at.recordKey, at.fingerprint); err != nil {
			logger.Error("idempotency: release after save failure failed", zap.Error(err))
		}
	}
}

func (g *guard) storeError(err error) httpx.Error {
	if errors.Is(err, ErrFingerprintMismatch) {
		return httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusUnprocessableEntity)
	}
	g.logger.Error("idempotency: store error", zap.Error(err))
	return httpx.NewError("idempotency_store_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable)
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requester(ctx context.Context) string {
	if actor, ok := requestctx.Actor(ctx); ok && actor.ID != "" {
		return actor.Role + ":" + actor.ID
	}
	return "anonymous"
}

// fingerprint binds a key to the order mutation it was first used for: method, path, query and body.
func fingerprint(r *http.Request, body []byte, requester string) string {
	h := sha256.New()
	for _, part := range []string{strings.ToUpper(r.Method), r.URL.Path, r.URL.RawQuery, requester} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func recordKey(key, requester string) string {
	return requester + "|" + key
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for key, values := range record.ResponseHeaders {
		header[key] = append([]string(nil), values...)
	}
	header.Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// captureWriter holds the handler response until the idempotency record is settled.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header), status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if status >= 100 {
		c.status = status
	}
}

func (c *captureWriter) Write(p []byte) (int, error) { return c.body.Write(p) }

func (c *captureWriter) flushTo(w http.ResponseWriter) error {
	dst := w.Header()
	for key, values := range c.header {
		dst[key] = values
	}
	w.WriteHeader(c.status)
	if c.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(c.body.Bytes())
	return err
}
