package grading

import (
	"math"
	"sort"
)

// Q is a minimal view of a question needed for grading.
// CorrectAnswer keeps the authored JSON shape: bool for true_false, option id
// for single_choice, array of option ids for multiple_choice.
type Q struct {
	ID             string
	Type           string // true_false | single_choice | multiple_choice
	Points         float64
	AnswerRequired bool
	CorrectAnswer  interface{}
}

// QuestionResult is the outcome of grading a single question. Selected and
// Expected are normalized (bool, string, or sorted []string) so the breakdown
// is stable regardless of how the client encoded the payload.
type QuestionResult struct {
	QuestionID   string      `json:"question_id"`
	Correct      bool        `json:"correct"`
	Missing      bool        `json:"missing"`
	Points       float64     `json:"points"`
	EarnedPoints float64     `json:"earned_points"`
	Selected     interface{} `json:"selected_answer"`
	Expected     interface{} `json:"correct_answer"`
}

// Summary aggregates one full submission. ScorePercent is
// round(100*earned/total), 0 when there are no points to earn. Whether the
// submission passed is the caller's call: the threshold is quiz
// configuration, not grading logic.
type Summary struct {
	EarnedPoints float64          `json:"earned_points"`
	TotalPoints  float64          `json:"total_points"`
	ScorePercent int              `json:"score_percent"`
	PerQuestion  []QuestionResult `json:"per_question"`
}

// Strategy grades a single question. present reports whether the payload
// contained any value for the question at all.
type Strategy interface {
	Grade(q Q, response interface{}, present bool) QuestionResult
}

// Grader routes by question type to the correct Strategy and reduces the
// per-question results into a Summary. Pure: identical inputs always yield
// identical output.
type Grader interface {
	Grade(questions []Q, answers map[string]interface{}) Summary
}

type defaultGrader struct {
	strategies map[string]Strategy
}

// NewGrader installs the built-in strategies.
func NewGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			"true_false":      trueFalseStrategy{},
			"single_choice":   singleChoiceStrategy{},
			"multiple_choice": multipleChoiceStrategy{},
		},
	}
}

func (g *defaultGrader) Grade(questions []Q, answers map[string]interface{}) Summary {
	sum := Summary{PerQuestion: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		sum.TotalPoints += q.Points

		resp, present := answers[q.ID]
		var res QuestionResult
		if s, ok := g.strategies[q.Type]; ok {
			res = s.Grade(q, resp, present)
		} else {
			res = QuestionResult{QuestionID: q.ID, Missing: true, Points: q.Points}
		}

		// A required question with no usable answer never earns points, even
		// if a strategy would treat the empty submission as a match.
		if q.AnswerRequired && res.Missing {
			res.Correct = false
			res.EarnedPoints = 0
		}
		sum.EarnedPoints += res.EarnedPoints
		sum.PerQuestion = append(sum.PerQuestion, res)
	}
	if sum.TotalPoints > 0 {
		sum.ScorePercent = int(math.Round(100 * sum.EarnedPoints / sum.TotalPoints))
	}
	return sum
}

// --- Strategies ---

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(q Q, response interface{}, present bool) QuestionResult {
	// Items authored without a key default to "true".
	expected := true
	if b, ok := asBool(q.CorrectAnswer); ok {
		expected = b
	}
	res := QuestionResult{QuestionID: q.ID, Points: q.Points, Expected: expected}

	selected, ok := asBool(response)
	if !present || !ok {
		res.Missing = true
		return res
	}
	res.Selected = selected
	if selected == expected {
		res.Correct = true
		res.EarnedPoints = q.Points
	}
	return res
}

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(q Q, response interface{}, present bool) QuestionResult {
	expected, _ := asString(q.CorrectAnswer)
	res := QuestionResult{QuestionID: q.ID, Points: q.Points, Expected: expected}

	selected, ok := asString(response)
	if !present || !ok || selected == "" {
		res.Missing = true
		return res
	}
	res.Selected = selected
	if expected != "" && selected == expected {
		res.Correct = true
		res.EarnedPoints = q.Points
	}
	return res
}

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q Q, response interface{}, present bool) QuestionResult {
	expected, keyed := toStringSlice(q.CorrectAnswer)
	sort.Strings(expected)
	res := QuestionResult{QuestionID: q.ID, Points: q.Points, Expected: expected}

	selected, ok := toStringSlice(response)
	if !present || !ok {
		res.Missing = true
		return res
	}
	sort.Strings(selected)
	res.Selected = selected
	// Exact set equality: same size, same members. No partial credit. An
	// authored-empty key is matched only by an empty selection; a question
	// with no key at all never matches.
	if keyed && setEqual(toSet(expected), toSet(selected)) {
		res.Correct = true
		res.EarnedPoints = q.Points
	}
	return res
}

// --- helpers ---

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
