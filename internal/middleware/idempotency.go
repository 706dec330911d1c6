package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/handler"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/repository"
)

type replayStore interface {
	Lookup(ctx context.Context, userID uuid.UUID, key string) (*repository.Replay, error)
	Reserve(ctx context.Context, userID uuid.UUID, key, fingerprint string, now, expiresAt time.Time) (bool, error)
	Complete(ctx context.Context, rp *repository.Replay) (bool, error)
	Release(ctx context.Context, userID uuid.UUID, key, fingerprint string) error
}

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
	replayTTL         = 24 * time.Hour
	reservationTTL    = time.Minute
	replayWriteBudget = 5 * time.Second
	maxIdempotencyKey = 255
	maxReplayBody     = 1 << 20
)

// Idempotency makes admin mutations safe to retry. The key is reserved before
// the handler runs, so concurrent requests with the same key execute once.
// The first response is stored and replayed for repeats; the same key on a
// different request is a conflict. 5xx responses release the key.
func Idempotency(store replayStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			switch {
			case key == "":
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			case len(key) > maxIdempotencyKey:
				handler.RespondValidationError(w, []handler.FieldError{
					{Field: idempotencyHeader, Message: "must be at most 255 characters"},
				})
				return
			}

			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody))
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			log := logging.FromContext(r.Context()).With("idempotency_key", key)
			fp := fingerprint(r, body)

			now := time.Now().UTC()
			reserved, err := store.Reserve(r.Context(), userID, key, fp, now, now.Add(reservationTTL))
			if err != nil {
				log.Error("replay reservation failed", "error", err)
				handler.RespondDomainError(w, err)
				return
			}
			if !reserved {
				replayPrior(w, r, store, userID, key, fp)
				return
			}

			// The writes below outlive a client that hangs up mid-request.
			detached := context.WithoutCancel(r.Context())

			completed := false
			defer func() {
				if completed {
					return
				}
				ctx, cancel := context.WithTimeout(detached, replayWriteBudget)
				defer cancel()
				if err := store.Release(ctx, userID, key, fp); err != nil {
					log.Error("failed to release idempotency key", "error", err)
				}
			}()

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.status >= http.StatusInternalServerError {
				return
			}
			completed = true

			ctx, cancel := context.WithTimeout(detached, replayWriteBudget)
			defer cancel()

			done := time.Now().UTC()
			stored, err := store.Complete(ctx, &repository.Replay{
				UserID:      userID,
				Key:         key,
				Fingerprint: fp,
				StatusCode:  capture.status,
				Body:        capture.buf.Bytes(),
				StoredAt:    done,
				ExpiresAt:   done.Add(replayTTL),
			})
			switch {
			case err != nil:
				log.Error("failed to store replay", "error", err)
			case !stored:
				log.Warn("idempotency reservation expired before the response was stored")
			}
		})
	}
}

func replayPrior(w http.ResponseWriter, r *http.Request, store replayStore, userID uuid.UUID, key, fp string) {
	log := logging.FromContext(r.Context()).With("idempotency_key", key)

	prior, err := store.Lookup(r.Context(), userID, key)
	if err != nil {
		log.Error("replay lookup failed", "error", err)
		handler.RespondDomainError(w, err)
		return
	}

	switch {
	// Released or expired between Reserve and Lookup.
	case prior == nil:
		handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
	case prior.Fingerprint != fp:
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
	case prior.Pending:
		handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(prior.StatusCode)
		if _, err := w.Write(prior.Body); err != nil {
			log.Error("failed to write replayed response", "error", err)
		}
	}
}

// fingerprint identifies the request a key was first used for.
func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	io.WriteString(h, r.Method)
	h.Write([]byte{0})
	io.WriteString(h, r.URL.RequestURI())
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}
