package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/studygate/studygate-lms/internal/auth/middleware"
	"github.com/studygate/studygate-lms/internal/cert"
)

// GET /courses/{courseID}/certificate — the caller's own certificate, if one
// has been issued.
func GetCertificateHandler(store *cert.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := authmw.SubjectFromContext(r.Context())
		courseID := chi.URLParam(r, "courseID")
		c, err := store.Get(r.Context(), user, courseID)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		if c == nil {
			http.Error(w, "no certificate", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c)
	}
}
