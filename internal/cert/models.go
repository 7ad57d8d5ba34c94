package cert

// Certificate statuses.
const StatusValid = "valid"

// Settings is the per-course certificate configuration, authored alongside
// the course. Nil pointer fields mean "not configured", which disables
// issuance entirely.
type Settings struct {
	CourseID            string  `json:"course_id"`
	Enabled             bool    `json:"enabled"`
	PassingGradePercent *int    `json:"passing_grade_percent,omitempty"`
	TemplateID          *string `json:"template_id,omitempty"`
	NamePositionJSON    string  `json:"name_position_json,omitempty"`
}

// Certificate is the one row per (user, course). IssuedAt is written when the
// row is created and never moved; re-evaluations may only refresh the score
// and template reference.
type Certificate struct {
	ID                 string `json:"id"`
	UserID             string `json:"user_id"`
	CourseID           string `json:"course_id"`
	Status             string `json:"status"`
	CourseScorePercent int    `json:"course_score_percent"`
	TemplateID         string `json:"template_id"`
	IssuedAt           int64  `json:"issued_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// ItemResult is the slice of an attempt result the course aggregate needs.
type ItemResult struct {
	ItemID       string
	ScorePercent int
	EarnedPoints float64
	TotalPoints  float64
	GradedAt     int64
}
