package redis

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idempotency:"
	inFlightMarker    = "PROCESSING"
	lockTTL           = 30 * time.Second
)

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Idempotency replays the stored response of a POST carrying an
// Idempotency-Key already seen within ttl. A second request arriving while
// the first is still running gets 409. Only 2xx responses are stored; a
// failed request releases the key so the client can retry.
func (c *Client) Idempotency(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" || len(key) > 128 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			redisKey := idempotencyPrefix + r.URL.Path + ":" + key

			ok, err := c.rdb.SetNX(ctx, redisKey, inFlightMarker, lockTTL).Result()
			if err != nil {
				log.Printf("[redis] idempotency lock %s: %v", key, err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				c.replay(w, r, redisKey)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status > 299 || !json.Valid(rec.body.Bytes()) {
				c.rdb.Del(ctx, redisKey)
				return
			}
			data, _ := json.Marshal(storedResponse{Status: rec.status, Body: rec.body.Bytes()})
			if err := c.rdb.Set(ctx, redisKey, data, ttl).Err(); err != nil {
				log.Printf("[redis] store idempotent response %s: %v", key, err)
			}
		})
	}
}

func (c *Client) replay(w http.ResponseWriter, r *http.Request, redisKey string) {
	val, err := c.rdb.Get(r.Context(), redisKey).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		// Released between SETNX and GET; let the client retry.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "request is being processed, retry shortly"})
		return
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "please try again"})
		return
	case string(val) == inFlightMarker:
		writeJSON(w, http.StatusConflict, map[string]string{"error": "request is being processed, retry shortly"})
		return
	}
	var stored storedResponse
	if err := json.Unmarshal(val, &stored); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "request already processed"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
