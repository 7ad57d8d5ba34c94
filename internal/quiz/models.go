package quiz

import "github.com/studygate/studygate-lms/internal/grading"

// Attempt statuses. An attempt is created in_progress, moves to submitted
// exactly once, or is labeled abandoned when a retake supersedes it.
const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusAbandoned  = "abandoned"
)

type Choice struct {
	ID        string `json:"id,omitempty"`
	LabelHTML string `json:"label_html,omitempty"`
}

// Question is one entry of a quiz item's questions_json. CorrectAnswer keeps
// whatever shape the authoring side stored: bool for true_false, option id
// string for single_choice, array of option ids for multiple_choice.
type Question struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"` // true_false | single_choice | multiple_choice
	PromptHTML     string      `json:"prompt_html,omitempty"`
	Choices        []Choice    `json:"choices,omitempty"`
	Points         float64     `json:"points"`
	AnswerRequired bool        `json:"answer_required,omitempty"`
	CorrectAnswer  interface{} `json:"correct_answer,omitempty"`
}

// Item is a quiz as authored: identity plus the settings the lifecycle
// enforces. Owned by course authoring; read-only here.
type Item struct {
	ID                  string     `json:"id"`
	OrgID               string     `json:"org_id"`
	CourseID            string     `json:"course_id"`
	Title               string     `json:"title"`
	IsRequired          bool       `json:"is_required"`
	AttemptsAllowed     int        `json:"attempts_allowed"` // 0 = unlimited
	PassingGradePercent int        `json:"passing_grade_percent"`
	TimeLimitSec        int        `json:"time_limit_sec"`
	Questions           []Question `json:"questions,omitempty"`
}

// Attempt is one learner's try at a quiz item. Answers maps question id to
// the submitted value; its shape depends on the question type.
type Attempt struct {
	ID            string                 `json:"id"`
	OrgID         string                 `json:"org_id"`
	CourseID      string                 `json:"course_id"`
	ItemID        string                 `json:"item_id"`
	UserID        string                 `json:"user_id"`
	AttemptNumber int                    `json:"attempt_number"`
	Status        string                 `json:"status"`
	Answers       map[string]interface{} `json:"answers"`
	StartedAt     int64                  `json:"started_at"`
	SubmittedAt   *int64                 `json:"submitted_at,omitempty"`
}

// Result is the immutable record of one graded submission. Append-only;
// never updated or deleted.
type Result struct {
	ID           string                   `json:"id"`
	AttemptID    string                   `json:"attempt_id"`
	OrgID        string                   `json:"org_id"`
	CourseID     string                   `json:"course_id"`
	ItemID       string                   `json:"item_id"`
	UserID       string                   `json:"user_id"`
	ScorePercent int                      `json:"score_percent"`
	Passed       bool                     `json:"passed"`
	EarnedPoints float64                  `json:"earned_points"`
	TotalPoints  float64                  `json:"total_points"`
	Breakdown    []grading.QuestionResult `json:"breakdown"`
	GradedAt     int64                    `json:"graded_at"`
}

// State is the durable per (user, course, item) summary. BestScorePercent is
// monotonically non-decreasing; PassedAt is set on the first passing
// submission and never cleared.
type State struct {
	UserID                 string `json:"user_id"`
	CourseID               string `json:"course_id"`
	ItemID                 string `json:"item_id"`
	BestScorePercent       int    `json:"best_score_percent"`
	PassedAt               *int64 `json:"passed_at,omitempty"`
	LastAttemptID          string `json:"last_attempt_id,omitempty"`
	LastSubmittedAttemptID string `json:"last_submitted_attempt_id,omitempty"`
	UpdatedAt              int64  `json:"updated_at"`
}

// Status is what GetQuizStatus returns to the learner.
type Status struct {
	AttemptsAllowed int      `json:"attempts_allowed"`
	SubmittedCount  int      `json:"submitted_count"`
	ActiveAttempt   *Attempt `json:"active_attempt,omitempty"`
	State           *State   `json:"state,omitempty"`
}

// SubmitOutcome is the submit response: the graded result plus the updated
// aggregate state.
type SubmitOutcome struct {
	ScorePercent int                      `json:"score_percent"`
	Passed       bool                     `json:"passed"`
	PerQuestion  []grading.QuestionResult `json:"per_question"`
	State        State                    `json:"state"`
}
