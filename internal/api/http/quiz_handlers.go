package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/studygate/studygate-lms/internal/auth/middleware"
	"github.com/studygate/studygate-lms/internal/quiz"
)

func callerScope(r *http.Request) (org, user, courseID, itemID string) {
	return authmw.OrgFromContext(r.Context()),
		authmw.SubjectFromContext(r.Context()),
		chi.URLParam(r, "courseID"),
		chi.URLParam(r, "itemID")
}

// POST /courses/{courseID}/quizzes/{itemID}/attempts
func StartAttemptHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, user, courseID, itemID := callerScope(r)
		a, err := lc.Start(r.Context(), org, courseID, itemID, user)
		if err != nil {
			writeQuizError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a)
	}
}

// POST /courses/{courseID}/quizzes/{itemID}/attempts/retake
func RetakeAttemptHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, user, courseID, itemID := callerScope(r)
		a, err := lc.Retake(r.Context(), org, courseID, itemID, user)
		if err != nil {
			writeQuizError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a)
	}
}

type answersReq struct {
	Answers map[string]interface{} `json:"answers"`
}

// POST /courses/{courseID}/quizzes/{itemID}/attempts/answers
// Replaces the active attempt's answers wholesale.
func AutosaveHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, user, courseID, itemID := callerScope(r)
		var req answersReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, err := lc.Autosave(r.Context(), org, courseID, itemID, user, req.Answers)
		if err != nil {
			writeQuizError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a)
	}
}

// POST /courses/{courseID}/quizzes/{itemID}/attempts/submit
// The body is optional; when present its answers are flushed before grading.
func SubmitAttemptHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, user, courseID, itemID := callerScope(r)
		var req answersReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		out, err := lc.Submit(r.Context(), org, courseID, itemID, user, req.Answers)
		if err != nil {
			writeQuizError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// GET /courses/{courseID}/quizzes/{itemID}/status
func QuizStatusHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, user, courseID, itemID := callerScope(r)
		st, err := lc.Status(r.Context(), org, courseID, itemID, user)
		if err != nil {
			writeQuizError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
