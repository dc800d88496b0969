package server

import (
	"context"
	"net/http"
	"time"

	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	contextKeyUserID    contextKey = "user_id"
	contextKeyRequestID contextKey = "request_id"
)

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "GET, POST, OPTIONS"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		requestID := utils.RequestID()
		rw.Header().Set("X-Request-Id", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)

		next.ServeHTTP(rw, r.WithContext(ctx))

		s.logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http request")
	})
}

// CORS answers every preflight with an empty 200 and marks every response as
// readable from any origin.
func (s *Service) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAuth verifies the bearer token and puts the caller id on the
// request context.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.logger.Debug("request without bearer token")
			s.failure(w, r, err)
			return
		}

		userID, err := s.verifier.Verify(ctx, raw)
		if err != nil {
			s.logger.WithError(err).Warn("failed to verify bearer token")
			s.failure(w, r, types.ErrUnauthorized)
			return
		}

		s.logger.WithField("user_id", userID).Debug("authenticated user")

		ctx = context.WithValue(ctx, contextKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
