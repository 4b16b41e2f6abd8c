package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/peer-lending/pkg/response"

	log "github.com/sirupsen/logrus"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	// How long a key stays locked while its first request is running.
	provisionalLockTTL = 60 * time.Second
	maxIdempotencyKey  = 255
	storeTimeout       = 2 * time.Second

	// Bodies are buffered in full to be hashed and replayed.
	maxIdempotentBody = 1 << 20
)

type idempEntry struct {
	InProgress bool      `json:"in_progress"`
	Code       int       `json:"code"`
	Body       []byte    `json:"body"`
	BodySHA256 string    `json:"body_sha256"`
	CreatedAt  time.Time `json:"created_at"`
}

type captureWriter struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (c *captureWriter) WriteHeader(code int) {
	c.code = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a completed request that
// carried the same Idempotency-Key, route and caller. Requests without the
// header and safe methods pass straight through. It must run after Auth.
func Idempotency(rdb redis.Cmdable, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			idemKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(idemKey) > maxIdempotencyKey {
				response.BadRequest(w, "Idempotency-Key is too long")
				return
			}

			var body []byte
			if r.Body != nil {
				var err error
				if body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody)); err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						response.Error(w, http.StatusRequestEntityTooLarge, "Request body is too large")
						return
					}
					response.BadRequest(w, "Unable to read request body")
					return
				}
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)

			key := buildKey(r, idemKey)
			ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			defer cancel()

			acquired, err := provisionalSet(ctx, rdb, key, idempEntry{InProgress: true, BodySHA256: hash, CreatedAt: time.Now().UTC()})
			if err != nil {
				log.WithError(err).Error("idempotency store unavailable")
				response.Error(w, http.StatusServiceUnavailable, "Idempotency store unavailable")
				return
			}

			if !acquired {
				cur, err := loadEntry(ctx, rdb, key)
				if err != nil && !errors.Is(err, redis.Nil) {
					log.WithError(err).WithField("key", key).Warn("failed to load idempotency entry")
				}
				if cur.BodySHA256 != "" && cur.BodySHA256 != hash {
					response.Conflict(w, "Idempotency-Key reused with a different request body")
					return
				}
				if !cur.InProgress && cur.Code != 0 {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set(ReplayedHeader, "true")
					w.WriteHeader(cur.Code)
					_, _ = w.Write(cur.Body)
					return
				}
				response.Conflict(w, "A request with this Idempotency-Key is already in progress")
				return
			}

			rec := &captureWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The request context may be gone by now
			saveCtx, saveCancel := context.WithTimeout(context.Background(), storeTimeout)
			defer saveCancel()

			if rec.code >= http.StatusInternalServerError {
				// let the client retry a failed attempt
				if err := rdb.Del(saveCtx, key).Err(); err != nil {
					log.WithError(err).WithField("key", key).Warn("failed to release idempotency key")
				}
				return
			}

			final := idempEntry{Code: rec.code, Body: rec.buf.Bytes(), BodySHA256: hash, CreatedAt: time.Now().UTC()}
			if err := saveFinal(saveCtx, rdb, key, final, ttl); err != nil {
				log.WithError(err).WithField("key", key).Warn("failed to store idempotent response")
			}
		})
	}
}

func bodyHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// buildKey scopes a key to method, route template and caller.
func buildKey(r *http.Request, idemKey string) string {
	path := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			path = tpl
		}
	}

	caller := "anonymous"
	if c, ok := CallerFromContext(r.Context()); ok {
		caller = c.ID.String()
	}

	return "idemp:" + strings.ToLower(r.Method) + ":" + path + ":" + caller + ":" + idemKey
}

func provisionalSet(ctx context.Context, rdb redis.Cmdable, key string, entry idempEntry) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func loadEntry(ctx context.Context, rdb redis.Cmdable, key string) (idempEntry, error) {
	var e idempEntry
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(raw, &e)
	return e, err
}

func saveFinal(ctx context.Context, rdb redis.Cmdable, key string, entry idempEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, payload, ttl).Err()
}
