package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/studygate/studygate-lms/internal/quiz"
)

// writeQuizError maps lifecycle errors onto the HTTP taxonomy. Business-state
// conflicts come back as 409 with the reason in the body so the client can
// resolve them; they are real state, not something to retry.
func writeQuizError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quiz.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, quiz.ErrAttemptsExhausted),
		errors.Is(err, quiz.ErrNoActiveAttempt),
		errors.Is(err, quiz.ErrAlreadySubmitted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("quiz api: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
