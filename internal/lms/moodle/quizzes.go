package moodle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/mind-engage/mindengage-seb/internal/lms"
)

type course struct {
	ID        int64  `json:"id"`
	ShortName string `json:"shortname"`
	FullName  string `json:"fullname"`
	StartDate int64  `json:"startdate"`
	EndDate   int64  `json:"enddate"`
}

type quiz struct {
	ID           int64  `json:"id"`
	Course       int64  `json:"course"`
	CourseModule int64  `json:"coursemodule"`
	Name         string `json:"name"`
	Intro        string `json:"intro"`
	TimeOpen     int64  `json:"timeopen"`
	TimeClose    int64  `json:"timeclose"`
}

type quizzesResponse struct {
	Quizzes  []quiz `json:"quizzes"`
	Warnings []struct {
		Item      string `json:"item"`
		ItemID    int64  `json:"itemid"`
		ErrorCode string `json:"warningcode"`
		Message   string `json:"message"`
	} `json:"warnings"`
}

func (t *Template) QuizzesPage(ctx context.Context, f lms.QuizFilter) (lms.Page[lms.QuizData], error) {
	all, err := t.allQuizzes(ctx)
	if err != nil {
		return lms.Page[lms.QuizData]{}, err
	}
	return lms.PageQuizzes(all, f), nil
}

// Quizzes resolves ids against one listing of all quizzes. Unknown ids get a
// NotFound result; a failed listing is reported for every id.
func (t *Template) Quizzes(ctx context.Context, ids []string) []lms.QuizResult {
	out := make([]lms.QuizResult, len(ids))
	all, err := t.allQuizzes(ctx)
	byID := make(map[string]lms.QuizData, len(all))
	for _, q := range all {
		byID[q.ID] = q
	}
	for i, id := range ids {
		out[i].ID = id
		switch q, ok := byID[id]; {
		case err != nil:
			out[i].Err = err
		case !ok:
			out[i].Err = lms.NotFoundError("get quiz", webservicePath, "no quiz with id "+id)
		default:
			out[i].Quiz = q
		}
	}
	return out
}

func (t *Template) allQuizzes(ctx context.Context) ([]lms.QuizData, error) {
	var courses []course
	if err := t.call(ctx, "core_course_get_courses", nil, &courses); err != nil {
		return nil, err
	}
	byID := make(map[int64]course, len(courses))
	params := url.Values{}
	n := 0
	for _, c := range courses {
		// course 1 is the site front page
		if c.ID <= 1 {
			continue
		}
		byID[c.ID] = c
		params.Set(fmt.Sprintf("courseids[%d]", n), strconv.FormatInt(c.ID, 10))
		n++
	}
	if n == 0 {
		return []lms.QuizData{}, nil
	}

	var resp quizzesResponse
	if err := t.call(ctx, "mod_quiz_get_quizzes_by_courses", params, &resp); err != nil {
		return nil, err
	}
	out := make([]lms.QuizData, 0, len(resp.Quizzes))
	for _, q := range resp.Quizzes {
		out = append(out, t.toQuiz(q, byID[q.Course]))
	}
	return out, nil
}

func (t *Template) toQuiz(q quiz, c course) lms.QuizData {
	start := q.TimeOpen
	if start == 0 {
		start = c.StartDate
	}
	end := q.TimeClose
	if end == 0 {
		end = c.EndDate
	}
	d := lms.QuizData{
		ID:            strconv.FormatInt(q.ID, 10),
		InstitutionID: t.setup.InstitutionID,
		LmsSetupID:    t.setup.ID,
		LmsType:       lms.TypeMoodle,
		Name:          q.Name,
		Description:   q.Intro,
		StartTime:     time.Unix(start, 0).UTC(),
		StartURL:      t.setup.BaseURL() + "/mod/quiz/view.php?id=" + strconv.FormatInt(q.CourseModule, 10),
		Attributes: map[string]string{
			"course_id":        strconv.FormatInt(q.Course, 10),
			"course_shortname": c.ShortName,
			"course_fullname":  c.FullName,
		},
	}
	if end > 0 {
		e := time.Unix(end, 0).UTC()
		d.EndTime = &e
	}
	return d
}
