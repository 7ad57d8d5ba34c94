package quiz

import (
	"context"
	"log"

	"github.com/studygate/studygate-lms/internal/grading"
	syncx "github.com/studygate/studygate-lms/internal/sync"
)

// Catalog is the read-only authoring/enrollment surface the lifecycle needs.
type Catalog interface {
	GetItem(ctx context.Context, orgID, courseID, itemID string) (Item, error)
	IsActivelyEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

// SubmitHook is a best-effort side effect fired after a submission has been
// committed. Hooks run in order within the request, isolated by
// syncx.Swallow: their failures are logged and never surfaced.
type SubmitHook struct {
	Name string
	Run  func(ctx context.Context, a Attempt, r Result) error
}

// Lifecycle enforces the attempt state machine and the attempts-allowed
// quota. All cross-request coordination goes through the store's atomic
// operations; the controller itself holds no mutable state.
type Lifecycle struct {
	store   *SQLStore
	catalog Catalog
	grader  grading.Grader
	hooks   []SubmitHook
}

func NewLifecycle(store *SQLStore, catalog Catalog, grader grading.Grader, hooks ...SubmitHook) *Lifecycle {
	return &Lifecycle{store: store, catalog: catalog, grader: grader, hooks: hooks}
}

// Start returns the caller's in-progress attempt for the item, creating one
// when none exists. Idempotent: a second start returns the same attempt
// unchanged. Fails with ErrAttemptsExhausted once the submitted count has
// reached attempts_allowed (0 = unlimited).
func (l *Lifecycle) Start(ctx context.Context, orgID, courseID, itemID, userID string) (Attempt, error) {
	it, err := l.eligibleItem(ctx, orgID, courseID, itemID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if a, ok, err := l.store.ActiveAttempt(ctx, userID, itemID); err != nil {
		return Attempt{}, err
	} else if ok {
		return a, nil
	}
	return l.startFresh(ctx, it, userID)
}

// Retake abandons the in-progress attempt, if any, and starts a new one.
// Abandoning is best-effort; the quota gate still applies.
func (l *Lifecycle) Retake(ctx context.Context, orgID, courseID, itemID, userID string) (Attempt, error) {
	it, err := l.eligibleItem(ctx, orgID, courseID, itemID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if err := l.store.AbandonActive(ctx, userID, itemID); err != nil {
		log.Printf("retake: abandon active attempt for user=%s item=%s: %v", userID, itemID, err)
	}
	return l.startFresh(ctx, it, userID)
}

func (l *Lifecycle) startFresh(ctx context.Context, it Item, userID string) (Attempt, error) {
	if err := l.checkQuota(ctx, it, userID); err != nil {
		return Attempt{}, err
	}
	return l.store.CreateAttempt(ctx, it.OrgID, it.CourseID, it.ID, userID)
}

// Autosave replaces the active attempt's answers wholesale. Last write wins;
// there is no merge.
func (l *Lifecycle) Autosave(ctx context.Context, orgID, courseID, itemID, userID string, answers map[string]interface{}) (Attempt, error) {
	if _, err := l.catalog.GetItem(ctx, orgID, courseID, itemID); err != nil {
		return Attempt{}, err
	}
	return l.store.SaveAnswers(ctx, userID, itemID, answers)
}

// Submit freezes the active attempt, grades it, appends the immutable result,
// folds it into the quiz state, and then fires the post-commit hooks
// (event emission, certificate evaluation) with errors swallowed.
//
// finalAnswers, when non-nil, is flushed over the attempt's payload first,
// equivalent to an autosave immediately preceding submit. The quota is
// re-checked here as the hard gate for the start→submit race.
func (l *Lifecycle) Submit(ctx context.Context, orgID, courseID, itemID, userID string, finalAnswers map[string]interface{}) (SubmitOutcome, error) {
	it, err := l.catalog.GetItem(ctx, orgID, courseID, itemID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	a, ok, err := l.store.ActiveAttempt(ctx, userID, itemID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if !ok {
		return SubmitOutcome{}, ErrNoActiveAttempt
	}
	if err := l.checkQuota(ctx, it, userID); err != nil {
		return SubmitOutcome{}, err
	}
	if finalAnswers != nil {
		a.Answers = finalAnswers
	}

	sum := l.grader.Grade(gradingQuestions(it.Questions), a.Answers)
	passed := sum.ScorePercent >= it.PassingGradePercent

	r, st, err := l.store.FinalizeSubmission(ctx, a, sum, passed)
	if err != nil {
		return SubmitOutcome{}, err
	}

	for _, h := range l.hooks {
		h := h
		syncx.Swallow(h.Name, func() error { return h.Run(ctx, a, r) })
	}

	return SubmitOutcome{
		ScorePercent: sum.ScorePercent,
		Passed:       passed,
		PerQuestion:  sum.PerQuestion,
		State:        st,
	}, nil
}

// Status reports the quota, the submitted count, and the current attempt and
// aggregate state for the caller.
func (l *Lifecycle) Status(ctx context.Context, orgID, courseID, itemID, userID string) (Status, error) {
	it, err := l.catalog.GetItem(ctx, orgID, courseID, itemID)
	if err != nil {
		return Status{}, err
	}
	n, err := l.store.SubmittedCount(ctx, userID, itemID)
	if err != nil {
		return Status{}, err
	}
	out := Status{AttemptsAllowed: it.AttemptsAllowed, SubmittedCount: n}
	if a, ok, err := l.store.ActiveAttempt(ctx, userID, itemID); err != nil {
		return Status{}, err
	} else if ok {
		out.ActiveAttempt = &a
	}
	st, err := l.store.GetState(ctx, userID, courseID, itemID)
	if err != nil {
		return Status{}, err
	}
	out.State = st
	return out, nil
}

func (l *Lifecycle) eligibleItem(ctx context.Context, orgID, courseID, itemID, userID string) (Item, error) {
	it, err := l.catalog.GetItem(ctx, orgID, courseID, itemID)
	if err != nil {
		return Item{}, err
	}
	enrolled, err := l.catalog.IsActivelyEnrolled(ctx, userID, courseID)
	if err != nil {
		return Item{}, err
	}
	if !enrolled {
		return Item{}, ErrForbidden
	}
	return it, nil
}

func (l *Lifecycle) checkQuota(ctx context.Context, it Item, userID string) error {
	if it.AttemptsAllowed <= 0 {
		return nil
	}
	n, err := l.store.SubmittedCount(ctx, userID, it.ID)
	if err != nil {
		return err
	}
	if n >= it.AttemptsAllowed {
		return ErrAttemptsExhausted
	}
	return nil
}

func gradingQuestions(qs []Question) []grading.Q {
	out := make([]grading.Q, 0, len(qs))
	for _, q := range qs {
		out = append(out, grading.Q{
			ID:             q.ID,
			Type:           q.Type,
			Points:         q.Points,
			AnswerRequired: q.AnswerRequired,
			CorrectAnswer:  q.CorrectAnswer,
		})
	}
	return out
}
