// Package quizimport searches LMS quizzes and imports them as exams.
package quizimport

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-seb/internal/activity"
	"github.com/mind-engage/mindengage-seb/internal/exam"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/logging"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 500
)

// Templates resolves an LMS setup id to its bound Template.
type Templates interface {
	CreateTemplate(ctx context.Context, lmsSetupID int64) (lms.Template, error)
}

type Config struct {
	PageSizeDefault int
	PageSizeMax     int
}

type Service struct {
	templates Templates
	exams     exam.Store
	log       activity.Log
	cfg       Config
	now       func() time.Time
}

func New(templates Templates, exams exam.Store, log activity.Log, cfg Config) *Service {
	if cfg.PageSizeMax <= 0 {
		cfg.PageSizeMax = MaxPageSize
	}
	if cfg.PageSizeDefault <= 0 {
		cfg.PageSizeDefault = DefaultPageSize
	}
	if cfg.PageSizeDefault > cfg.PageSizeMax {
		cfg.PageSizeDefault = cfg.PageSizeMax
	}
	return &Service{templates: templates, exams: exams, log: log, cfg: cfg, now: time.Now}
}

// SearchParams are the raw query parameters of a quiz search. Unknown sort
// values fall back to NAME / ASCENDING and a malformed StartTime is ignored.
type SearchParams struct {
	NameLike  string
	StartTime string
	Page      int
	PageSize  int
	OrderBy   string
	SortOrder string
}

func (s *Service) filter(p SearchParams) lms.QuizFilter {
	f := lms.QuizFilter{
		NameLike:   strings.TrimSpace(p.NameLike),
		OrderBy:    lms.ParseOrderBy(p.OrderBy),
		SortOrder:  lms.ParseSortOrder(p.SortOrder),
		PageNumber: p.Page,
		PageSize:   p.PageSize,
	}
	if f.PageNumber < 1 {
		f.PageNumber = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = s.cfg.PageSizeDefault
	case f.PageSize > s.cfg.PageSizeMax:
		f.PageSize = s.cfg.PageSizeMax
	}
	if p.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, p.StartTime); err == nil {
			f.FromTime = t
		} else {
			logging.Log().Debugf("quizimport: ignoring malformed startTime %q", p.StartTime)
		}
	}
	return f
}

func (s *Service) Search(ctx context.Context, lmsSetupID int64, p SearchParams) (lms.Page[lms.QuizData], error) {
	tpl, err := s.templates.CreateTemplate(ctx, lmsSetupID)
	if err != nil {
		return lms.Page[lms.QuizData]{}, err
	}
	return tpl.QuizzesPage(ctx, s.filter(p))
}

// ParseIDs splits a comma separated id list, dropping blanks and duplicates.
func ParseIDs(csv string) []string {
	return dedupe(strings.Split(csv, ","))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type ImportOptions struct {
	Type       exam.Type
	Owner      string
	Supporters []string
}

// ImportResult is the outcome for one requested quiz id. Created is false
// when the quiz had already been imported.
type ImportResult struct {
	QuizID  string
	Exam    exam.Exam
	Created bool
	Err     error
}

// ImportQuizzes imports each distinct id independently. A failing id never
// aborts its siblings; only successful imports are written to the activity log.
func (s *Service) ImportQuizzes(ctx context.Context, lmsSetupID int64, ids []string, opts ImportOptions) []ImportResult {
	ids = dedupe(ids)
	results := make([]ImportResult, len(ids))
	for i, id := range ids {
		results[i].QuizID = id
	}
	if len(ids) == 0 {
		return results
	}

	tpl, err := s.templates.CreateTemplate(ctx, lmsSetupID)
	if err != nil {
		for i := range results {
			results[i].Err = err
		}
		return results
	}

	fetched := make(map[string]lms.QuizResult, len(ids))
	for _, r := range tpl.Quizzes(ctx, ids) {
		fetched[r.ID] = r
	}
	setup := tpl.Setup()
	now := s.now()

	for i, id := range ids {
		r, ok := fetched[id]
		switch {
		case !ok:
			results[i].Err = lms.NotFoundError("import quiz", "", "no result for quiz "+id)
			continue
		case r.Err != nil:
			results[i].Err = r.Err
			continue
		}
		q := r.Quiz
		// the template is authoritative for scoping
		q.LmsSetupID, q.InstitutionID = setup.ID, setup.InstitutionID

		stored, created, err := s.exams.Import(ctx, exam.FromQuiz(q, opts.Type, opts.Owner, now, opts.Supporters...))
		if err != nil {
			results[i].Err = lms.UpstreamError("persist exam", err)
			continue
		}
		results[i].Exam, results[i].Created = stored, created
		s.record(ctx, activity.Event{
			InstitutionID: stored.InstitutionID,
			Type:          activity.TypeImport,
			Entity:        activity.EntityExam,
			Key:           stored.ID,
			Actor:         opts.Owner,
			Data: activity.Payload(map[string]any{
				"lmsSetupId": lmsSetupID,
				"quizId":     id,
				"created":    created,
			}),
		})
	}
	return results
}

func (s *Service) TestConnection(ctx context.Context, lmsSetupID int64, actor string) (lms.TestResult, error) {
	tpl, err := s.templates.CreateTemplate(ctx, lmsSetupID)
	if err != nil {
		return lms.TestResult{}, err
	}
	res := tpl.TestConnection(ctx)
	s.record(ctx, s.setupEvent(tpl.Setup(), activity.TypeConnectionTest, actor, map[string]any{"result": res.Kind}))
	return res, nil
}

func (s *Service) CourseRestriction(ctx context.Context, lmsSetupID int64, courseID string) (lms.CourseRestriction, error) {
	tpl, err := s.templates.CreateTemplate(ctx, lmsSetupID)
	if err != nil {
		return lms.CourseRestriction{}, err
	}
	return tpl.CourseRestriction(ctx, courseID)
}

func (s *Service) PushCourseRestriction(ctx context.Context, lmsSetupID int64, courseID string, r lms.CourseRestriction, actor string) error {
	tpl, err := s.templates.CreateTemplate(ctx, lmsSetupID)
	if err != nil {
		return err
	}
	r.CourseID = courseID
	if err := tpl.PushCourseRestriction(ctx, courseID, r); err != nil {
		return err
	}
	s.record(ctx, s.setupEvent(tpl.Setup(), activity.TypeRestrictionPush, actor, map[string]any{"courseId": courseID}))
	return nil
}

func (s *Service) DeleteCourseRestriction(ctx context.Context, lmsSetupID int64, courseID, actor string) error {
	tpl, err := s.templates.CreateTemplate(ctx, lmsSetupID)
	if err != nil {
		return err
	}
	if err := tpl.DeleteCourseRestriction(ctx, courseID); err != nil {
		return err
	}
	s.record(ctx, s.setupEvent(tpl.Setup(), activity.TypeRestrictionDelete, actor, map[string]any{"courseId": courseID}))
	return nil
}

func (s *Service) setupEvent(setup lms.Setup, typ activity.Type, actor string, data map[string]any) activity.Event {
	return activity.Event{
		InstitutionID: setup.InstitutionID,
		Type:          typ,
		Entity:        activity.EntityLmsSetup,
		Key:           strconv.FormatInt(setup.ID, 10),
		Actor:         actor,
		Data:          activity.Payload(data),
	}
}

// record appends e to the activity log. The logged action already happened,
// so a failing append is only reported.
func (s *Service) record(ctx context.Context, e activity.Event) {
	if s.log == nil {
		return
	}
	if err := s.log.Append(ctx, e); err != nil {
		logging.Log().WithError(err).Warnf("quizimport: activity %s for %s %s not recorded", e.Type, e.Entity, e.Key)
	}
}
