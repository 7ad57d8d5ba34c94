package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/studygate/studygate-lms/internal/api/http"
	auth "github.com/studygate/studygate-lms/internal/auth/middleware"
	"github.com/studygate/studygate-lms/internal/cert"
	"github.com/studygate/studygate-lms/internal/config"
	"github.com/studygate/studygate-lms/internal/course"
	"github.com/studygate/studygate-lms/internal/db"
	"github.com/studygate/studygate-lms/internal/grading"
	"github.com/studygate/studygate-lms/internal/quiz"
	"github.com/studygate/studygate-lms/internal/rbac"
	syncx "github.com/studygate/studygate-lms/internal/sync"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	attempts := quiz.NewSQLStore(dbh, cfg.DBDriver)
	catalog := course.NewSQLGateway(dbh)
	certs := cert.NewSQLStore(dbh)
	events := syncx.NewEventRepo(dbh, cfg.SiteID)
	evaluator := cert.NewEvaluator(certs, catalog)

	lifecycle := quiz.NewLifecycle(attempts, catalog, grading.NewGrader(),
		quiz.SubmitHook{
			Name: "event-log",
			Run: func(ctx context.Context, a quiz.Attempt, r quiz.Result) error {
				data, err := json.Marshal(map[string]interface{}{
					"attempt_id":    a.ID,
					"course_id":     a.CourseID,
					"item_id":       a.ItemID,
					"user_id":       a.UserID,
					"score_percent": r.ScorePercent,
					"passed":        r.Passed,
				})
				if err != nil {
					return err
				}
				return events.Append(ctx, syncx.EventAttemptSubmitted, a.ID, string(data))
			},
		},
		quiz.SubmitHook{
			Name: "certificate-evaluation",
			Run: func(ctx context.Context, a quiz.Attempt, r quiz.Result) error {
				return evaluator.Evaluate(ctx, a.CourseID, a.UserID)
			},
		},
	)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		pr.Route("/courses/{courseID}/quizzes/{itemID}", func(qr chi.Router) {
			qr.With(rbac.Require("attempt:create")).Post("/attempts", api.StartAttemptHandler(lifecycle))
			qr.With(rbac.Require("attempt:create")).Post("/attempts/retake", api.RetakeAttemptHandler(lifecycle))
			qr.With(rbac.Require("attempt:save")).Post("/attempts/answers", api.AutosaveHandler(lifecycle))
			qr.With(rbac.Require("attempt:submit")).Post("/attempts/submit", api.SubmitAttemptHandler(lifecycle))
			qr.With(rbac.Require("quiz:status")).Get("/status", api.QuizStatusHandler(lifecycle))
		})

		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(attempts))

		pr.With(rbac.Require("certificate:view-own")).
			Get("/courses/{courseID}/certificate", api.GetCertificateHandler(certs))

		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))
	})

	log.Printf("gateway listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}
