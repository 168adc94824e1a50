// Package mock is an in-memory LMS used for demos and tests. It serves a fixed
// set of quizzes and keeps course restrictions in a map.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-seb/internal/lms"
)

type Option func(*Template)

// WithQuizzes replaces the demo quizzes.
func WithQuizzes(qs ...lms.QuizData) Option {
	return func(t *Template) { t.quizzes = append([]lms.QuizData(nil), qs...) }
}

// WithCredentialCheck lets the caller decide whether the setup's credentials
// are present; the mock never decrypts them.
func WithCredentialCheck(ok bool) Option {
	return func(t *Template) { t.hasCredentials = ok }
}

type Template struct {
	setup          lms.Setup
	hasCredentials bool
	quizzes        []lms.QuizData

	mu           sync.Mutex
	restrictions map[string]lms.CourseRestriction
}

func New(setup lms.Setup, opts ...Option) *Template {
	t := &Template{
		setup:          setup,
		hasCredentials: setup.Credentials.HasClientID() && setup.Credentials.HasSecret(),
		quizzes:        DemoQuizzes(time.Now().UTC()),
		restrictions:   map[string]lms.CourseRestriction{},
	}
	for _, o := range opts {
		o(t)
	}
	for i := range t.quizzes {
		t.quizzes[i].InstitutionID = setup.InstitutionID
		t.quizzes[i].LmsSetupID = setup.ID
		t.quizzes[i].LmsType = lms.TypeMock
	}
	return t
}

// DemoQuizzes returns the default quiz set, laid out around now.
func DemoQuizzes(now time.Time) []lms.QuizData {
	day := 24 * time.Hour
	at := func(d time.Duration) time.Time { return now.Truncate(time.Hour).Add(d) }
	end := func(d time.Duration) *time.Time { t := at(d); return &t }
	return []lms.QuizData{
		{ID: "quiz1", Name: "Demo Quiz 1", Description: "Demo Quiz 1 (MOCKUP)", StartTime: at(-2 * day), EndTime: end(-day), StartURL: "http://lms.mockup.com/api/quiz1"},
		{ID: "quiz2", Name: "Demo Quiz 2", Description: "Demo Quiz 2 (MOCKUP)", StartTime: at(-day), EndTime: end(day), StartURL: "http://lms.mockup.com/api/quiz2"},
		{ID: "quiz3", Name: "Demo Quiz 3", Description: "Demo Quiz 3 (MOCKUP)", StartTime: at(day), EndTime: end(day + 2*time.Hour), StartURL: "http://lms.mockup.com/api/quiz3"},
		{ID: "quiz4", Name: "Demo Quiz 4", Description: "Demo Quiz 4 (MOCKUP)", StartTime: at(2 * day), StartURL: "http://lms.mockup.com/api/quiz4"},
		{ID: "quiz5", Name: "Demo Quiz 5", Description: "Demo Quiz 5 (MOCKUP)", StartTime: at(7 * day), EndTime: end(7*day + 3*time.Hour), StartURL: "http://lms.mockup.com/api/quiz5"},
	}
}

func (t *Template) Setup() lms.Setup { return t.setup }

func (t *Template) TestConnection(ctx context.Context) lms.TestResult {
	if strings.TrimSpace(t.setup.Name) == "" || strings.TrimSpace(t.setup.URL) == "" {
		return lms.TestResultOf(lms.TestTokenRequestError, "missing LMS name or URL")
	}
	if !t.hasCredentials {
		return lms.TestResultOf(lms.TestCredentialError, "missing client credentials")
	}
	return lms.TestResultOK()
}

func (t *Template) QuizzesPage(ctx context.Context, f lms.QuizFilter) (lms.Page[lms.QuizData], error) {
	if err := ctx.Err(); err != nil {
		return lms.Page[lms.QuizData]{}, lms.UpstreamError("quizzes page", err)
	}
	return lms.PageQuizzes(t.quizzes, f), nil
}

func (t *Template) Quizzes(ctx context.Context, ids []string) []lms.QuizResult {
	out := make([]lms.QuizResult, 0, len(ids))
	for _, id := range ids {
		res := lms.QuizResult{ID: id}
		if q, ok := t.find(id); ok {
			res.Quiz = q
		} else {
			res.Err = lms.NotFoundError("quiz", id, "no quiz with id "+id)
		}
		out = append(out, res)
	}
	return out
}

func (t *Template) find(id string) (lms.QuizData, bool) {
	for _, q := range t.quizzes {
		if q.ID == id {
			return q, true
		}
	}
	return lms.QuizData{}, false
}

func (t *Template) CourseRestriction(ctx context.Context, courseID string) (lms.CourseRestriction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.restrictions[courseID]
	if !ok {
		return lms.CourseRestriction{}, lms.NoRestrictionError("get course restriction", courseID)
	}
	return r, nil
}

func (t *Template) PushCourseRestriction(ctx context.Context, courseID string, r lms.CourseRestriction) error {
	if strings.TrimSpace(courseID) == "" {
		return lms.ConfigError("push course restriction", "missing course id")
	}
	r.CourseID = courseID
	t.mu.Lock()
	t.restrictions[courseID] = r
	t.mu.Unlock()
	return nil
}

func (t *Template) DeleteCourseRestriction(ctx context.Context, courseID string) error {
	t.mu.Lock()
	delete(t.restrictions, courseID)
	t.mu.Unlock()
	return nil
}
