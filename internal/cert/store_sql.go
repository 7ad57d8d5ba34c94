package cert

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/studygate/studygate-lms/internal/db"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// GetSettings returns (nil, nil) when the course has no certificate
// configuration at all.
func (s *SQLStore) GetSettings(ctx context.Context, courseID string) (*Settings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT course_id, enabled, passing_grade_percent, template_id, name_position_json
		   FROM certificate_settings WHERE course_id=$1`, courseID)
	var st Settings
	var passing sql.NullInt64
	var template sql.NullString
	err := row.Scan(&st.CourseID, &st.Enabled, &passing, &template, &st.NamePositionJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if passing.Valid {
		v := int(passing.Int64)
		st.PassingGradePercent = &v
	}
	if template.Valid && template.String != "" {
		v := template.String
		st.TemplateID = &v
	}
	return &st, nil
}

func (s *SQLStore) TemplateExists(ctx context.Context, templateID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM certificate_templates WHERE id=$1)`, templateID).Scan(&ok)
	return ok, err
}

// ItemResults returns every graded result the learner has in the course, for
// the in-memory best-per-item reduction.
func (s *SQLStore) ItemResults(ctx context.Context, userID, courseID string) ([]ItemResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, score_percent, earned_points, total_points, graded_at
		   FROM attempt_results WHERE user_id=$1 AND course_id=$2`, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemResult
	for rows.Next() {
		var r ItemResult
		if err := rows.Scan(&r.ItemID, &r.ScorePercent, &r.EarnedPoints, &r.TotalPoints, &r.GradedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns (nil, nil) when the learner holds no certificate for the course.
func (s *SQLStore) Get(ctx context.Context, userID, courseID string) (*Certificate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, course_id, status, course_score_percent, template_id, issued_at, updated_at
		   FROM certificates WHERE user_id=$1 AND course_id=$2`, userID, courseID)
	var c Certificate
	err := row.Scan(&c.ID, &c.UserID, &c.CourseID, &c.Status, &c.CourseScorePercent,
		&c.TemplateID, &c.IssuedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// IssueOrRefresh creates the certificate on first pass (the only moment
// issued_at is written) or refreshes the score and template reference on an
// existing one, leaving issued_at and status untouched. Insert-or-get on the
// (user, course) key keeps concurrent evaluations from erroring.
func (s *SQLStore) IssueOrRefresh(ctx context.Context, userID, courseID string, scorePercent int, templateID string) (Certificate, error) {
	existing, err := s.Get(ctx, userID, courseID)
	if err != nil {
		return Certificate{}, err
	}
	now := time.Now().Unix()

	if existing == nil {
		c := Certificate{
			ID:                 uuid.NewString(),
			UserID:             userID,
			CourseID:           courseID,
			Status:             StatusValid,
			CourseScorePercent: scorePercent,
			TemplateID:         templateID,
			IssuedAt:           now,
			UpdatedAt:          now,
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO certificates (id, user_id, course_id, status, course_score_percent, template_id, issued_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			c.ID, c.UserID, c.CourseID, c.Status, c.CourseScorePercent, c.TemplateID, c.IssuedAt, c.UpdatedAt)
		if err == nil {
			return c, nil
		}
		if !dbpkg.IsUniqueViolation(err) {
			return Certificate{}, err
		}
		// A concurrent evaluation inserted first; fall through to refresh it.
		existing, err = s.Get(ctx, userID, courseID)
		if err != nil {
			return Certificate{}, err
		}
		if existing == nil {
			return Certificate{}, errors.New("certificate vanished after conflict")
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE certificates SET course_score_percent=$1, template_id=$2, updated_at=$3
		  WHERE user_id=$4 AND course_id=$5`,
		scorePercent, templateID, now, userID, courseID); err != nil {
		return Certificate{}, err
	}
	existing.CourseScorePercent = scorePercent
	existing.TemplateID = templateID
	existing.UpdatedAt = now
	return *existing, nil
}
