package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	lockTTL   = 10 * time.Second
	resultTTL = 24 * time.Hour
	inFlight  = "PROCESSING"
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// responseRecorder copies everything written so it can be replayed.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a POST that carried the same
// Idempotency-Key. A key whose first request is still running yields 409.
// Server errors are not stored, so the client may retry them. When Redis
// is unavailable the request goes through unprotected.
func Idempotency(client *redis.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			redisKey := "idempotency:" + r.URL.Path + ":" + key

			val, err := client.Get(ctx, redisKey).Bytes()
			switch {
			case err == nil:
				replay(w, val)
				return
			case !errors.Is(err, redis.Nil):
				slog.WarnContext(ctx, "idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := client.SetNX(ctx, redisKey, inFlight, lockTTL).Result()
			if err != nil {
				slog.WarnContext(ctx, "idempotency lock failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				conflict(w)
				return
			}

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError || rec.status == 0 {
				client.Del(ctx, redisKey)
				return
			}
			data, err := json.Marshal(storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err == nil {
				err = client.Set(ctx, redisKey, data, resultTTL).Err()
			}
			if err != nil {
				slog.WarnContext(ctx, "idempotency result not stored", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, val []byte) {
	if string(val) == inFlight {
		conflict(w)
		return
	}
	var stored storedResponse
	if err := json.Unmarshal(val, &stored); err != nil {
		conflict(w)
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("X-Idempotency-Hit", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func conflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_, _ = w.Write([]byte(`{"detail":"a request with this Idempotency-Key is already in progress"}`))
}
