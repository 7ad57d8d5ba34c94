package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/studygate/studygate-lms/internal/db"
	"github.com/studygate/studygate-lms/internal/grading"
)

// AttemptListOpts filters ListAttempts for dashboards.
type AttemptListOpts struct {
	ItemID string
	UserID string
	Status string // optional: in_progress|submitted|abandoned
	Limit  int
	Offset int
}

// SQLStore persists attempts, results, and quiz states through database/sql.
// Works against sqlite (offline/tests) and postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const attemptCols = `id, org_id, course_id, item_id, user_id, attempt_number, status, answers_json, started_at, submitted_at`

func scanAttempt(row *sql.Row) (Attempt, error) {
	var a Attempt
	var answers string
	var submittedAt sql.NullInt64
	err := row.Scan(&a.ID, &a.OrgID, &a.CourseID, &a.ItemID, &a.UserID,
		&a.AttemptNumber, &a.Status, &answers, &a.StartedAt, &submittedAt)
	if err != nil {
		return Attempt{}, err
	}
	if submittedAt.Valid {
		v := submittedAt.Int64
		a.SubmittedAt = &v
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		a.Answers = map[string]interface{}{}
	}
	return a, nil
}

// ActiveAttempt returns the single in-progress attempt for (user, item), if any.
func (s *SQLStore) ActiveAttempt(ctx context.Context, userID, itemID string) (Attempt, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts
		  WHERE user_id=$1 AND item_id=$2 AND status='in_progress'`, userID, itemID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	return a, err
}

// SubmittedCount is the number of graded attempts for (user, item); the
// quota gate compares it against attempts_allowed.
func (s *SQLStore) SubmittedCount(ctx context.Context, userID, itemID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE user_id=$1 AND item_id=$2 AND status='submitted'`,
		userID, itemID).Scan(&n)
	return n, err
}

// CreateAttempt inserts a fresh in-progress attempt, numbering it after the
// highest existing attempt for (user, item). Insert-or-get: if a concurrent
// start already holds the in-progress slot, the unique index fires and the
// winning row is returned instead of an error.
func (s *SQLStore) CreateAttempt(ctx context.Context, orgID, courseID, itemID, userID string) (Attempt, error) {
	var maxNum int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) FROM attempts WHERE user_id=$1 AND item_id=$2`,
		userID, itemID).Scan(&maxNum); err != nil {
		return Attempt{}, err
	}

	a := Attempt{
		ID:            uuid.NewString(),
		OrgID:         orgID,
		CourseID:      courseID,
		ItemID:        itemID,
		UserID:        userID,
		AttemptNumber: maxNum + 1,
		Status:        StatusInProgress,
		Answers:       map[string]interface{}{},
		StartedAt:     time.Now().Unix(),
	}
	answers, _ := json.Marshal(a.Answers)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, org_id, course_id, item_id, user_id, attempt_number, status, answers_json, started_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.OrgID, a.CourseID, a.ItemID, a.UserID, a.AttemptNumber, a.Status, string(answers), a.StartedAt)
	if dbpkg.IsUniqueViolation(err) {
		winner, ok, rerr := s.ActiveAttempt(ctx, userID, itemID)
		if rerr != nil {
			return Attempt{}, rerr
		}
		if ok {
			return winner, nil
		}
		// The racing attempt vanished between insert and re-read; report the
		// original conflict.
		return Attempt{}, err
	}
	if err != nil {
		return Attempt{}, err
	}

	if terr := s.touchLastAttempt(ctx, s.db, a); terr != nil {
		return Attempt{}, terr
	}
	return a, nil
}

// SaveAnswers replaces the active attempt's payload wholesale
// (last-write-wins, no merge).
func (s *SQLStore) SaveAnswers(ctx context.Context, userID, itemID string, answers map[string]interface{}) (Attempt, error) {
	if answers == nil {
		answers = map[string]interface{}{}
	}
	buf, err := json.Marshal(answers)
	if err != nil {
		return Attempt{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET answers_json=$1
		  WHERE user_id=$2 AND item_id=$3 AND status='in_progress'`,
		string(buf), userID, itemID)
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Attempt{}, ErrNoActiveAttempt
	}
	a, ok, err := s.ActiveAttempt(ctx, userID, itemID)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		return Attempt{}, ErrNoActiveAttempt
	}
	if terr := s.touchLastAttempt(ctx, s.db, a); terr != nil {
		return Attempt{}, terr
	}
	return a, nil
}

// AbandonActive labels the in-progress attempt abandoned. No-op when there is
// none; retake treats failures here as best-effort.
func (s *SQLStore) AbandonActive(ctx context.Context, userID, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status='abandoned'
		  WHERE user_id=$1 AND item_id=$2 AND status='in_progress'`, userID, itemID)
	return err
}

// FinalizeSubmission performs the submit transition atomically: flush the
// final answers, flip in_progress -> submitted (conditional update), append
// the immutable result, and fold it into the quiz state. All in one
// transaction, so an attempt can never end up submitted without its result.
func (s *SQLStore) FinalizeSubmission(ctx context.Context, a Attempt, sum grading.Summary, passed bool) (Result, State, error) {
	now := time.Now().Unix()

	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return Result{}, State{}, err
	}
	breakdown, err := json.Marshal(sum.PerQuestion)
	if err != nil {
		return Result{}, State{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, State{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE attempts SET status='submitted', submitted_at=$1, answers_json=$2
		  WHERE id=$3 AND status='in_progress'`,
		now, string(answers), a.ID)
	if err != nil {
		return Result{}, State{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Result{}, State{}, ErrAlreadySubmitted
	}

	r := Result{
		ID:           uuid.NewString(),
		AttemptID:    a.ID,
		OrgID:        a.OrgID,
		CourseID:     a.CourseID,
		ItemID:       a.ItemID,
		UserID:       a.UserID,
		ScorePercent: sum.ScorePercent,
		Passed:       passed,
		EarnedPoints: sum.EarnedPoints,
		TotalPoints:  sum.TotalPoints,
		Breakdown:    sum.PerQuestion,
		GradedAt:     now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempt_results (id, attempt_id, org_id, course_id, item_id, user_id,
		   score_percent, passed, earned_points, total_points, breakdown_json, graded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.AttemptID, r.OrgID, r.CourseID, r.ItemID, r.UserID,
		r.ScorePercent, r.Passed, r.EarnedPoints, r.TotalPoints, string(breakdown), r.GradedAt); err != nil {
		return Result{}, State{}, fmt.Errorf("insert result: %w", err)
	}

	st, err := s.foldState(ctx, tx, a, r, now)
	if err != nil {
		return Result{}, State{}, fmt.Errorf("update quiz state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, State{}, err
	}
	return r, st, nil
}

// foldState applies one graded result to the (user, course, item) summary:
// best score never decreases, passed_at is written once and never cleared.
func (s *SQLStore) foldState(ctx context.Context, ex execer, a Attempt, r Result, now int64) (State, error) {
	st, err := s.getState(ctx, ex, a.UserID, a.CourseID, a.ItemID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return State{}, err
	}
	if errors.Is(err, sql.ErrNoRows) {
		st = State{UserID: a.UserID, CourseID: a.CourseID, ItemID: a.ItemID}
	}

	if r.ScorePercent > st.BestScorePercent {
		st.BestScorePercent = r.ScorePercent
	}
	if st.PassedAt == nil && r.Passed {
		st.PassedAt = &now
	}
	st.LastAttemptID = a.ID
	st.LastSubmittedAttemptID = a.ID
	st.UpdatedAt = now

	if err := s.upsertState(ctx, ex, st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (s *SQLStore) getState(ctx context.Context, ex execer, userID, courseID, itemID string) (State, error) {
	row := ex.QueryRowContext(ctx,
		`SELECT user_id, course_id, item_id, best_score_percent, passed_at,
		        last_attempt_id, last_submitted_attempt_id, updated_at
		   FROM quiz_states WHERE user_id=$1 AND course_id=$2 AND item_id=$3`,
		userID, courseID, itemID)
	var st State
	var passedAt sql.NullInt64
	err := row.Scan(&st.UserID, &st.CourseID, &st.ItemID, &st.BestScorePercent,
		&passedAt, &st.LastAttemptID, &st.LastSubmittedAttemptID, &st.UpdatedAt)
	if err != nil {
		return State{}, err
	}
	if passedAt.Valid {
		v := passedAt.Int64
		st.PassedAt = &v
	}
	return st, nil
}

// GetState returns the stored summary, or (nil, nil) when the learner has no
// state for the item yet.
func (s *SQLStore) GetState(ctx context.Context, userID, courseID, itemID string) (*State, error) {
	st, err := s.getState(ctx, s.db, userID, courseID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLStore) upsertState(ctx context.Context, ex execer, st State) error {
	var passedAt interface{}
	if st.PassedAt != nil {
		passedAt = *st.PassedAt
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO quiz_states (user_id, course_id, item_id, best_score_percent, passed_at,
		   last_attempt_id, last_submitted_attempt_id, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (user_id, course_id, item_id) DO UPDATE SET
		   best_score_percent=excluded.best_score_percent,
		   passed_at=excluded.passed_at,
		   last_attempt_id=excluded.last_attempt_id,
		   last_submitted_attempt_id=excluded.last_submitted_attempt_id,
		   updated_at=excluded.updated_at`,
		st.UserID, st.CourseID, st.ItemID, st.BestScorePercent, passedAt,
		st.LastAttemptID, st.LastSubmittedAttemptID, st.UpdatedAt)
	return err
}

// touchLastAttempt records the attempt as the most recent one touched,
// without disturbing the graded fields.
func (s *SQLStore) touchLastAttempt(ctx context.Context, ex execer, a Attempt) error {
	now := time.Now().Unix()
	st, err := s.getState(ctx, ex, a.UserID, a.CourseID, a.ItemID)
	if errors.Is(err, sql.ErrNoRows) {
		st = State{UserID: a.UserID, CourseID: a.CourseID, ItemID: a.ItemID}
	} else if err != nil {
		return err
	}
	st.LastAttemptID = a.ID
	st.UpdatedAt = now
	return s.upsertState(ctx, ex, st)
}

// ListAttempts returns attempts matching the filters, most recent first.
func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	q := `SELECT ` + attemptCols + ` FROM attempts WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		q += fmt.Sprintf(" AND %s=$%d", clause, n)
		args = append(args, v)
	}
	if opts.ItemID != "" {
		add("item_id", opts.ItemID)
	}
	if opts.UserID != "" {
		add("user_id", opts.UserID)
	}
	if opts.Status != "" {
		add("status", opts.Status)
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	q += fmt.Sprintf(" ORDER BY started_at DESC, attempt_number DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		var a Attempt
		var answers string
		var submittedAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.OrgID, &a.CourseID, &a.ItemID, &a.UserID,
			&a.AttemptNumber, &a.Status, &answers, &a.StartedAt, &submittedAt); err != nil {
			return nil, err
		}
		if submittedAt.Valid {
			v := submittedAt.Int64
			a.SubmittedAt = &v
		}
		if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
			a.Answers = map[string]interface{}{}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
