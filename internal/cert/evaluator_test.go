package cert_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studygate/studygate-lms/internal/cert"
	"github.com/studygate/studygate-lms/internal/course"
	"github.com/studygate/studygate-lms/internal/db"
	"github.com/studygate/studygate-lms/internal/quiz"

	_ "modernc.org/sqlite" // driver for "sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	h, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	h.SetMaxOpenConns(1)
	if err := db.EnsureSchema(context.Background(), h, db.DriverSQLite); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// seedCertCourse sets up a course with two quizzes (A required, B required),
// an enabled certificate configuration, and the referenced template.
func seedCertCourse(t *testing.T, h *sql.DB) {
	t.Helper()
	now := time.Now().Unix()
	mustExec(t, h, `INSERT INTO courses (id, org_id, name, created_at) VALUES ('c1','o1','Biology',?)`, now)
	seedQuizRow(t, h, "quizA", true)
	seedQuizRow(t, h, "quizB", true)
	mustExec(t, h, `INSERT INTO certificate_templates (id, name, created_at) VALUES ('tpl1','Default',?)`, now)
	mustExec(t, h, `INSERT INTO certificate_settings (course_id, enabled, passing_grade_percent, template_id, name_position_json)
	  VALUES ('c1',1,80,'tpl1','{"x":120,"y":310}')`)
}

func seedQuizRow(t *testing.T, h *sql.DB, id string, required bool) {
	t.Helper()
	req := 0
	if required {
		req = 1
	}
	mustExec(t, h, `INSERT INTO quiz_items
	  (id, org_id, course_id, title, is_required, attempts_allowed, passing_grade_percent, time_limit_sec, questions_json, created_at)
	  VALUES (?,?,?,?,?,0,0,0,'[]',?)`, id, "o1", "c1", "Quiz "+id, req, time.Now().Unix())
}

func seedResult(t *testing.T, h *sql.DB, itemID string, score int, earned, total float64, gradedAt int64) {
	t.Helper()
	mustExec(t, h, `INSERT INTO attempt_results
	  (id, attempt_id, org_id, course_id, item_id, user_id, score_percent, passed, earned_points, total_points, breakdown_json, graded_at)
	  VALUES (?,?,?,?,?,?,?,?,?,?,'[]',?)`,
		uuid.NewString(), uuid.NewString(), "o1", "c1", itemID, "u1", score, score >= 80, earned, total, gradedAt)
}

func mustExec(t *testing.T, h *sql.DB, q string, args ...any) {
	t.Helper()
	if _, err := h.Exec(q, args...); err != nil {
		t.Fatalf("exec %q: %v", q, err)
	}
}

func newEvaluator(h *sql.DB) (*cert.Evaluator, *cert.SQLStore) {
	store := cert.NewSQLStore(h)
	return cert.NewEvaluator(store, course.NewSQLGateway(h)), store
}

func TestGatingSet(t *testing.T) {
	a := quiz.Item{ID: "a", IsRequired: true}
	b := quiz.Item{ID: "b"}
	c := quiz.Item{ID: "c", IsRequired: true}

	got := cert.GatingSet([]quiz.Item{a, b, c})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("required subset = %+v", got)
	}

	// no required flags: every quiz gates
	got = cert.GatingSet([]quiz.Item{{ID: "a"}, {ID: "b"}})
	if len(got) != 2 {
		t.Fatalf("fallback set = %+v", got)
	}

	if got := cert.GatingSet(nil); len(got) != 0 {
		t.Fatalf("empty course produced gating set %+v", got)
	}
}

func TestBestByItem(t *testing.T) {
	results := []cert.ItemResult{
		{ItemID: "a", ScorePercent: 60, EarnedPoints: 6, TotalPoints: 10, GradedAt: 100},
		{ItemID: "a", ScorePercent: 90, EarnedPoints: 9, TotalPoints: 10, GradedAt: 50},
		{ItemID: "b", ScorePercent: 70, EarnedPoints: 7, TotalPoints: 10, GradedAt: 10},
		{ItemID: "b", ScorePercent: 70, EarnedPoints: 7, TotalPoints: 10, GradedAt: 20},
	}
	best := cert.BestByItem(results)
	if best["a"].ScorePercent != 90 {
		t.Fatalf("best[a] = %+v", best["a"])
	}
	if best["b"].GradedAt != 20 {
		t.Fatalf("tie should pick the most recent: %+v", best["b"])
	}
}

func TestCoursePercent(t *testing.T) {
	gating := []quiz.Item{{ID: "a"}, {ID: "b"}}
	best := map[string]cert.ItemResult{
		"a": {ItemID: "a", EarnedPoints: 2, TotalPoints: 3},
		"b": {ItemID: "b", EarnedPoints: 3, TotalPoints: 3},
	}
	p, complete := cert.CoursePercent(gating, best)
	if !complete || p != 83 { // 5/6 rounds to 83
		t.Fatalf("percent = %d complete = %v", p, complete)
	}

	delete(best, "b")
	if _, complete := cert.CoursePercent(gating, best); complete {
		t.Fatalf("missing gating result reported complete")
	}

	p, complete = cert.CoursePercent([]quiz.Item{{ID: "z"}}, map[string]cert.ItemResult{"z": {ItemID: "z"}})
	if !complete || p != 0 {
		t.Fatalf("zero-point course: percent = %d complete = %v", p, complete)
	}
}

func TestEvaluateIssuesCertificate(t *testing.T) {
	h := openTestDB(t)
	seedCertCourse(t, h)
	seedResult(t, h, "quizA", 90, 9, 10, 100)
	seedResult(t, h, "quizB", 80, 8, 10, 110)
	ev, store := newEvaluator(h)
	ctx := context.Background()

	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	c, err := store.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	if c == nil {
		t.Fatal("no certificate issued")
	}
	if c.Status != cert.StatusValid || c.CourseScorePercent != 85 || c.TemplateID != "tpl1" {
		t.Fatalf("certificate = %+v", c)
	}
	if c.IssuedAt == 0 {
		t.Fatalf("issued_at not set: %+v", c)
	}
}

func TestEvaluateAbortsWithoutFullConfiguration(t *testing.T) {
	cases := []struct {
		name string
		stmt string
	}{
		{"no settings row", `DELETE FROM certificate_settings`},
		{"disabled", `UPDATE certificate_settings SET enabled=0`},
		{"no threshold", `UPDATE certificate_settings SET passing_grade_percent=NULL`},
		{"no template reference", `UPDATE certificate_settings SET template_id=NULL`},
		{"no name placement", `UPDATE certificate_settings SET name_position_json=''`},
		{"template missing", `DELETE FROM certificate_templates`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := openTestDB(t)
			seedCertCourse(t, h)
			seedResult(t, h, "quizA", 100, 10, 10, 100)
			seedResult(t, h, "quizB", 100, 10, 10, 110)
			mustExec(t, h, tc.stmt)
			ev, store := newEvaluator(h)

			if err := ev.Evaluate(context.Background(), "c1", "u1"); err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			c, err := store.Get(context.Background(), "u1", "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if c != nil {
				t.Fatalf("certificate issued despite %s", tc.name)
			}
		})
	}
}

func TestEvaluateRequiresEveryGatingQuiz(t *testing.T) {
	h := openTestDB(t)
	seedCertCourse(t, h)
	// perfect on quizA, quizB never attempted
	seedResult(t, h, "quizA", 100, 10, 10, 100)
	ev, store := newEvaluator(h)
	ctx := context.Background()

	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if c, _ := store.Get(ctx, "u1", "c1"); c != nil {
		t.Fatalf("certificate issued with a gating quiz unattempted: %+v", c)
	}

	seedResult(t, h, "quizB", 90, 9, 10, 110)
	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if c, _ := store.Get(ctx, "u1", "c1"); c == nil {
		t.Fatal("certificate not issued once every gating quiz has a result")
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	h := openTestDB(t)
	seedCertCourse(t, h)
	seedResult(t, h, "quizA", 70, 7, 10, 100)
	seedResult(t, h, "quizB", 70, 7, 10, 110)
	ev, store := newEvaluator(h)

	if err := ev.Evaluate(context.Background(), "c1", "u1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if c, _ := store.Get(context.Background(), "u1", "c1"); c != nil {
		t.Fatalf("certificate issued below threshold: %+v", c)
	}
}

func TestEvaluateIdempotentAndRefreshesScoreOnly(t *testing.T) {
	h := openTestDB(t)
	seedCertCourse(t, h)
	seedResult(t, h, "quizA", 90, 9, 10, 100)
	seedResult(t, h, "quizB", 80, 8, 10, 110)
	ev, store := newEvaluator(h)
	ctx := context.Background()

	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	first, _ := store.Get(ctx, "u1", "c1")
	if first == nil {
		t.Fatal("no certificate after first evaluate")
	}

	// same results again: nothing changes but updated_at
	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	second, _ := store.Get(ctx, "u1", "c1")
	if second.ID != first.ID || second.IssuedAt != first.IssuedAt {
		t.Fatalf("re-evaluation reissued the certificate: %+v vs %+v", first, second)
	}
	if second.CourseScorePercent != 85 {
		t.Fatalf("score drifted to %d", second.CourseScorePercent)
	}

	// a better quizB run lifts the stored score, issued_at stays put
	seedResult(t, h, "quizB", 100, 10, 10, 200)
	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("third evaluate: %v", err)
	}
	third, _ := store.Get(ctx, "u1", "c1")
	if third.CourseScorePercent != 95 {
		t.Fatalf("refreshed score = %d, want 95", third.CourseScorePercent)
	}
	if third.IssuedAt != first.IssuedAt || third.ID != first.ID {
		t.Fatalf("issuance identity changed on refresh: %+v vs %+v", first, third)
	}
}

func TestEvaluateNeverRevokes(t *testing.T) {
	h := openTestDB(t)
	seedCertCourse(t, h)
	seedResult(t, h, "quizA", 90, 9, 10, 100)
	seedResult(t, h, "quizB", 80, 8, 10, 110)
	ev, store := newEvaluator(h)
	ctx := context.Background()

	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	// configuration later disabled: the certificate stays
	mustExec(t, h, `UPDATE certificate_settings SET enabled=0`)
	if err := ev.Evaluate(ctx, "c1", "u1"); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	c, err := store.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c == nil || c.Status != cert.StatusValid {
		t.Fatalf("certificate revoked: %+v", c)
	}
}
