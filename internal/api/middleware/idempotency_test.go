package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func countingHandler(calls *int32, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(int(n)) + `}`))
	})
}

func post(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	_, client := newClient(t)
	var calls int32
	h := Idempotency(client)(countingHandler(&calls, http.StatusCreated))

	first := post(h, "abc")
	second := post(h, "abc")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Hit"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestIdempotency_WithoutKeyPassesThrough(t *testing.T) {
	_, client := newClient(t)
	var calls int32
	h := Idempotency(client)(countingHandler(&calls, http.StatusCreated))

	post(h, "")
	post(h, "")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_InFlightKeyConflicts(t *testing.T) {
	mr, client := newClient(t)
	require.NoError(t, mr.Set("idempotency:/api/v1/products/:busy", inFlight))
	var calls int32
	h := Idempotency(client)(countingHandler(&calls, http.StatusCreated))

	rr := post(h, "busy")

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	mr, client := newClient(t)
	var calls int32
	h := Idempotency(client)(countingHandler(&calls, http.StatusInternalServerError))

	post(h, "retry-me")
	post(h, "retry-me")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.False(t, mr.Exists("idempotency:/api/v1/products/:retry-me"))
}

func TestIdempotency_ResultExpires(t *testing.T) {
	mr, client := newClient(t)
	var calls int32
	h := Idempotency(client)(countingHandler(&calls, http.StatusCreated))

	post(h, "k")
	mr.FastForward(resultTTL + time.Second)
	post(h, "k")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_RedisDownFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	var calls int32
	h := Idempotency(client)(countingHandler(&calls, http.StatusCreated))

	rr := post(h, "k")

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
