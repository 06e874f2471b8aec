package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibek01/ECOM-D1/internal/platform/auth"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func newOrderRequest(body, key, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

func TestMiddleware_PassesThroughWithoutHeader(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newOrderRequest(`{"items":[]}`, "", "user-1"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rr.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run for every request without a key, got %d", calls)
	}
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":{"id":"ord_1"}}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newOrderRequest(`{"items":[1]}`, "abc-123", "user-1"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newOrderRequest(`{"items":[1]}`, "abc-123", "user-1"))

	if calls != 1 {
		t.Fatalf("expected handler to be called once, got %d", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay header to be present")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type json, got %s", got)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected response body %s, got %s", rr1.Body.String(), rr2.Body.String())
	}
}

func TestMiddleware_KeysAreScopedPerUser(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest(`{}`, "shared", "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest(`{}`, "shared", "user-2"))

	if calls != 2 {
		t.Fatalf("expected separate executions per user, got %d", calls)
	}
}

func TestMiddleware_ConflictingFingerprintReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newOrderRequest(`{"foo":"bar"}`, "same-key", "user-1"))
	if rr1.Code != http.StatusCreated {
		t.Fatalf("expected first request success, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newOrderRequest(`{"foo":"baz"}`, "same-key", "user-1"))
	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected conflict status, got %d", rr2.Code)
	}
	assertErrorResponse(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_PendingReservationReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked when reservation pending")
	}))

	req := newOrderRequest(`{"foo":"bar"}`, "pending-key", "user-1")
	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	requester := extractRequester(req.Context())
	if _, err := store.Reserve(req.Context(), scopedKey("pending-key", requester), requestFingerprint(req, body, requester), fixedTime, time.Hour); err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending reservation, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_FailedResponsesAreNotStored(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusConflict} {
		store := NewMemoryStore()
		calls := 0
		handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(status)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))

		rr1 := httptest.NewRecorder()
		handler.ServeHTTP(rr1, newOrderRequest(`{}`, "retry-key", "user-1"))
		rr2 := httptest.NewRecorder()
		handler.ServeHTTP(rr2, newOrderRequest(`{}`, "retry-key", "user-1"))

		if rr1.Code != status || rr2.Code != http.StatusCreated {
			t.Fatalf("status %d: expected retry to run the handler, got %d then %d", status, rr1.Code, rr2.Code)
		}
	}
}

func TestMiddleware_PanicReleasesReservation(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	func() {
		defer func() {
			if rec := recover(); rec != "boom" {
				t.Fatalf("expected handler panic to propagate, got %v", rec)
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest(`{}`, "panic-key", "user-1"))
	}()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "panic-key", "user-1"))
	if rr.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry after panic to run the handler, got code=%d calls=%d body=%s", rr.Code, calls, rr.Body.String())
	}
}

func TestMiddleware_ClientErrorsAreReplayed(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest(`{}`, "bad-key", "user-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "bad-key", "user-1"))

	if calls != 1 || rr.Code != http.StatusBadRequest {
		t.Fatalf("expected stored 400 to replay, calls=%d code=%d", calls, rr.Code)
	}
}

func TestMiddleware_SaveFailureReleasesReservation(t *testing.T) {
	store := &stubStore{failSave: true}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{"foo":"bar"}`, "fail-key", "user-1"))

	if rr.Code != http.StatusCreated || rr.Body.String() != "ok" {
		t.Fatalf("expected handler response to reach the client, got %d %q", rr.Code, rr.Body.String())
	}
	if !store.released {
		t.Fatalf("expected reservation to be released on failure")
	}
}

func TestMiddleware_ReserveErrorIsInternal(t *testing.T) {
	store := &stubStore{failReserve: true}
	handler := Middleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "key", "user-1"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "internal_error")
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Reserve(ctx, "a", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.Reserve(ctx, "b", "fp", fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one expired record removed, got %d", removed)
	}

	res, err := store.Reserve(ctx, "a", "other", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired key to be reusable, got %+v %v", res, err)
	}
}

type stubStore struct {
	failSave    bool
	failReserve bool
	released    bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	if s.failReserve {
		return Reservation{}, errors.New("store down")
	}
	return Reservation{State: ReservationStateNew}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorResponse(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
