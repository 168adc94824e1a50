package registry

import (
	"context"

	"github.com/mind-engage/mindengage-seb/internal/lms"
)

// guarded turns panics inside a Template into upstream errors so that no
// template failure crosses the core boundary abruptly.
type guarded struct {
	inner lms.Template
}

func Guarded(t lms.Template) lms.Template {
	if g, ok := t.(*guarded); ok {
		return g
	}
	return &guarded{inner: t}
}

// Unwrap returns the variant implementation.
func Unwrap(t lms.Template) lms.Template {
	if g, ok := t.(*guarded); ok {
		return g.inner
	}
	return t
}

func (g *guarded) Setup() lms.Setup { return g.inner.Setup() }

func (g *guarded) TestConnection(ctx context.Context) (res lms.TestResult) {
	err := lms.Guard("test connection", func() error {
		res = g.inner.TestConnection(ctx)
		return nil
	})
	if err != nil {
		return lms.TestResultOf(lms.TestTokenRequestError, err.Error())
	}
	return res
}

func (g *guarded) QuizzesPage(ctx context.Context, f lms.QuizFilter) (page lms.Page[lms.QuizData], err error) {
	err = lms.Guard("quizzes page", func() error {
		var ierr error
		page, ierr = g.inner.QuizzesPage(ctx, f)
		return ierr
	})
	return page, err
}

func (g *guarded) Quizzes(ctx context.Context, ids []string) []lms.QuizResult {
	var res []lms.QuizResult
	err := lms.Guard("quizzes", func() error {
		res = g.inner.Quizzes(ctx, ids)
		return nil
	})
	if err != nil {
		res = make([]lms.QuizResult, len(ids))
		for i, id := range ids {
			res[i] = lms.QuizResult{ID: id, Err: err}
		}
	}
	return res
}

func (g *guarded) CourseRestriction(ctx context.Context, courseID string) (r lms.CourseRestriction, err error) {
	err = lms.Guard("get course restriction", func() error {
		var ierr error
		r, ierr = g.inner.CourseRestriction(ctx, courseID)
		return ierr
	})
	return r, err
}

func (g *guarded) PushCourseRestriction(ctx context.Context, courseID string, r lms.CourseRestriction) error {
	return lms.Guard("push course restriction", func() error {
		return g.inner.PushCourseRestriction(ctx, courseID, r)
	})
}

func (g *guarded) DeleteCourseRestriction(ctx context.Context, courseID string) error {
	return lms.Guard("delete course restriction", func() error {
		return g.inner.DeleteCourseRestriction(ctx, courseID)
	})
}
