package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

// Authenticate turns the bearer token into a session.AuthContext once per
// request. No header means an anonymous caller; a bad token is rejected.
func Authenticate(sessions *session.Manager, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(session.WithAuth(r.Context(), session.Anonymous())))
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization header")
				return
			}

			s, err := sessions.Parse(strings.TrimSpace(raw), now())
			if err != nil {
				log.Warn().Str("request_id", middleware.GetReqID(r.Context())).Msg("Rejected invalid admin session")
				respondWithError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithAuth(r.Context(), session.Admin(s.SubjectID))))
		})
	}
}

// RequireAdmin stops non-admin callers before the handler runs.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := session.FromContext(r.Context()).RequireAdmin(); err != nil {
			respondWithError(w, http.StatusUnauthorized, "Admin session required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
