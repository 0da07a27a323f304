package api

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// statusRecorder captures the response code for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// apiKeyMiddleware enforces X-API-Key auth when the server requires it.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Server.RequireAPIKey {
			next.ServeHTTP(w, r)
			return
		}
		if s.store == nil {
			respondError(w, http.StatusServiceUnavailable, errors.New("api key auth requires storage"))
			return
		}

		secret := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if secret == "" {
			respondError(w, http.StatusUnauthorized, errors.New("missing API key"))
			return
		}
		key, err := s.store.ValidateAPIKey(secret)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		if key == nil {
			respondError(w, http.StatusUnauthorized, errors.New("invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
