// Package cert decides whether a learner's course-wide quiz performance has
// earned a certificate, and issues or refreshes the certificate record.
package cert

import (
	"context"
	"math"

	"github.com/studygate/studygate-lms/internal/quiz"
)

// ItemCatalog lists a course's quiz items (for the gating set and required
// flags). Satisfied by course.SQLGateway.
type ItemCatalog interface {
	ListItems(ctx context.Context, courseID string) ([]quiz.Item, error)
}

// Evaluator runs after a successful submission, scoped to the attempt's
// course. Every step is best-effort: any missing configuration aborts
// silently, and the caller swallows errors so the recorded grade is never
// affected. Evaluating twice over the same results is a no-op.
type Evaluator struct {
	store   *SQLStore
	catalog ItemCatalog
}

func NewEvaluator(store *SQLStore, catalog ItemCatalog) *Evaluator {
	return &Evaluator{store: store, catalog: catalog}
}

// Evaluate issues or refreshes the learner's certificate when the course
// aggregate crosses the configured threshold. A nil return means either
// "done" or "nothing to do"; an existing certificate is never revoked.
func (e *Evaluator) Evaluate(ctx context.Context, courseID, userID string) error {
	settings, err := e.store.GetSettings(ctx, courseID)
	if err != nil {
		return err
	}
	if settings == nil || !settings.Enabled ||
		settings.PassingGradePercent == nil ||
		settings.TemplateID == nil ||
		settings.NamePositionJSON == "" {
		return nil
	}
	if ok, err := e.store.TemplateExists(ctx, *settings.TemplateID); err != nil || !ok {
		return err
	}

	items, err := e.catalog.ListItems(ctx, courseID)
	if err != nil {
		return err
	}
	gating := GatingSet(items)
	if len(gating) == 0 {
		return nil
	}

	results, err := e.store.ItemResults(ctx, userID, courseID)
	if err != nil {
		return err
	}
	best := BestByItem(results)

	percent, complete := CoursePercent(gating, best)
	if !complete {
		// The learner has not attempted every gating quiz yet.
		return nil
	}
	if percent < *settings.PassingGradePercent {
		return nil
	}

	_, err = e.store.IssueOrRefresh(ctx, userID, courseID, percent, *settings.TemplateID)
	return err
}

// GatingSet selects the quiz items whose completion is mandatory before a
// certificate can be evaluated: the ones flagged required, or every item when
// none is flagged. The fallback keeps courses authored before the required
// flag existed gating on all their quizzes.
func GatingSet(items []quiz.Item) []quiz.Item {
	var required []quiz.Item
	for _, it := range items {
		if it.IsRequired {
			required = append(required, it)
		}
	}
	if len(required) > 0 {
		return required
	}
	return items
}

// BestByItem reduces a learner's graded results to the best one per quiz
// item: highest score, ties broken by most recent grading.
func BestByItem(results []ItemResult) map[string]ItemResult {
	best := make(map[string]ItemResult, len(results))
	for _, r := range results {
		cur, ok := best[r.ItemID]
		if !ok || r.ScorePercent > cur.ScorePercent ||
			(r.ScorePercent == cur.ScorePercent && r.GradedAt > cur.GradedAt) {
			best[r.ItemID] = r
		}
	}
	return best
}

// CoursePercent sums each gating item's best result into the course
// aggregate. complete is false when any gating item has no result yet.
func CoursePercent(gating []quiz.Item, best map[string]ItemResult) (percent int, complete bool) {
	var earned, total float64
	for _, it := range gating {
		r, ok := best[it.ID]
		if !ok {
			return 0, false
		}
		earned += r.EarnedPoints
		total += r.TotalPoints
	}
	if total <= 0 {
		return 0, true
	}
	return int(math.Round(100 * earned / total)), true
}
