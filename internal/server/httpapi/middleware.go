package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/auth"
)

const requestIDHeader = "X-Request-Id"

// requestIDMiddleware tags every request with an id, reusing the
// client's when present.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Info(r.Context(), "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", rec.Header().Get(requestIDHeader),
		)
	})
}

// authenticate validates the AccountId/Token header pair through the
// permission gate and returns the caller's account id. A false return
// means the response has already been written.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, required ...accounts.Permission) (uint64, string, bool) {
	id, err := strconv.ParseUint(r.Header.Get("AccountId"), 10, 64)
	token := r.Header.Get("Token")
	if err != nil || token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing credentials"})
		return 0, "", false
	}

	// the ledger decides validity; this only drops pairs where the
	// token demonstrably belongs to a different account
	if claimed, err := auth.GetAccountIDFromToken(token, s.secret); err == nil && claimed != id {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token does not match account"})
		return 0, "", false
	}

	if err := s.gate.Require(r.Context(), id, token, required...); err != nil {
		writeError(w, err)
		return 0, "", false
	}
	return id, token, true
}
