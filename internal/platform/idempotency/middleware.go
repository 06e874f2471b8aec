package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vibek01/ECOM-D1/internal/platform/auth"
	"github.com/vibek01/ECOM-D1/internal/platform/httpx"
	"github.com/vibek01/ECOM-D1/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
	maxBodyBytes      = 1 << 20
)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	clock      func() time.Time
	logger     *zap.Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed idempotency records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithLogger sets the fallback logger used when the request carries none.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware replays the stored response for a repeated Idempotency-Key. Requests without the header
// pass straight through. The key is scoped to the authenticated caller, so it must run after auth.
// Responses with a 5xx status or a 409 are not stored: nothing was committed, and a retry with the same
// key should run the handler again.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		clock:      time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key too long", http.StatusBadRequest))
				return
			}

			logger := requestctx.LoggerOr(ctx, cfg.logger).Named("idempotency")

			body, err := readAndReplayBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			requester := extractRequester(ctx)
			fingerprint := requestFingerprint(r, body, requester)
			scoped := scopedKey(key, requester)

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
					return
				}
				logger.Error("idempotency: reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to process idempotency key", http.StatusInternalServerError))
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			recorder := newResponseRecorder()
			func() {
				// A panicking handler must not leave the key pending until the TTL expires.
				defer func() {
					if rec := recover(); rec != nil {
						if err := store.Release(requestctx.Detach(ctx), scoped, fingerprint); err != nil {
							logger.Warn("idempotency: release failed", zap.Error(err))
						}
						panic(rec)
					}
				}()
				next.ServeHTTP(recorder, r)
			}()

			// The handler may have been cancelled with the request; bookkeeping still has to finish.
			storeCtx := requestctx.Detach(ctx)
			if retryable(recorder.Status()) {
				if err := store.Release(storeCtx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency: release failed", zap.Error(err))
				}
			} else {
				response := Response{Status: recorder.Status(), Headers: recorder.header, Body: recorder.body.Bytes()}
				if err := store.SaveResponse(storeCtx, scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
					logger.Error("idempotency: save response failed", zap.Error(err))
					if releaseErr := store.Release(storeCtx, scoped, fingerprint); releaseErr != nil {
						logger.Warn("idempotency: release failed", zap.Error(releaseErr))
					}
				}
			}

			if err := recorder.flushTo(w); err != nil {
				logger.Warn("idempotency: write response failed", zap.Error(err))
			}
		})
	}
}

// retryable reports whether a response leaves the key free for another attempt.
func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusConflict
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, requester string) string {
	var b strings.Builder
	for _, part := range []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		requester,
		sha256Hex(body),
	} {
		b.WriteString(part)
		b.WriteByte('|')
	}
	return sha256Hex([]byte(b.String()))
}

func extractRequester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func scopedKey(key, requester string) string {
	return strings.TrimSpace(key) + "|" + requester
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	for key, values := range record.ResponseHeaders {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// responseRecorder buffers the handler response so it can be stored before reaching the client.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) flushTo(w http.ResponseWriter) error {
	dst := w.Header()
	for key, values := range r.header {
		dst[key] = append([]string(nil), values...)
	}
	w.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(r.body.Bytes())
	return err
}
