// Package course is the read-only gateway to authoring data: quiz
// definitions, required-item flags, and enrollment. Authoring itself (course
// CRUD, question editing) lives elsewhere in the platform.
package course

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/studygate/studygate-lms/internal/quiz"
)

type SQLGateway struct {
	db *sql.DB
}

func NewSQLGateway(db *sql.DB) *SQLGateway { return &SQLGateway{db: db} }

const itemCols = `id, org_id, course_id, title, is_required, attempts_allowed, passing_grade_percent, time_limit_sec, questions_json`

// GetItem loads a quiz item with its full question set, answer keys included.
// Returns quiz.ErrNotFound for an unknown item and quiz.ErrForbidden when the
// item exists but belongs to another course or organization.
func (g *SQLGateway) GetItem(ctx context.Context, orgID, courseID, itemID string) (quiz.Item, error) {
	row := g.db.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM quiz_items WHERE id=$1`, itemID)
	it, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.Item{}, quiz.ErrNotFound
	}
	if err != nil {
		return quiz.Item{}, err
	}
	if it.CourseID != courseID || it.OrgID != orgID {
		return quiz.Item{}, quiz.ErrForbidden
	}
	return it, nil
}

// ListItems returns every quiz item of a course, question sets included.
func (g *SQLGateway) ListItems(ctx context.Context, courseID string) ([]quiz.Item, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM quiz_items WHERE course_id=$1 ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quiz.Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// IsActivelyEnrolled reports whether the user holds an active enrollment in
// the course.
func (g *SQLGateway) IsActivelyEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	var ok bool
	err := g.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM course_students WHERE course_id=$1 AND student_id=$2 AND status='active')`,
		courseID, userID).Scan(&ok)
	return ok, err
}

func scanItem(scan func(dest ...any) error) (quiz.Item, error) {
	var it quiz.Item
	var questions string
	if err := scan(&it.ID, &it.OrgID, &it.CourseID, &it.Title, &it.IsRequired,
		&it.AttemptsAllowed, &it.PassingGradePercent, &it.TimeLimitSec, &questions); err != nil {
		return quiz.Item{}, err
	}
	if err := json.Unmarshal([]byte(questions), &it.Questions); err != nil {
		return quiz.Item{}, err
	}
	return it, nil
}
