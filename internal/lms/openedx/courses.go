package openedx

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-seb/internal/lms"
)

const coursesPageSize = 100

type course struct {
	ID               string `json:"id"`
	CourseID         string `json:"course_id"`
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	Org              string `json:"org"`
	Number           string `json:"number"`
	Start            string `json:"start"`
	End              string `json:"end"`
	BlocksURL        string `json:"blocks_url"`
	Pacing           string `json:"pacing"`
}

type coursesPage struct {
	Results    []course `json:"results"`
	Pagination struct {
		Next     string `json:"next"`
		Count    int    `json:"count"`
		NumPages int    `json:"num_pages"`
	} `json:"pagination"`
}

// QuizzesPage loads all courses and pages them client-side; the courses API
// neither filters by start time nor sorts.
func (t *Template) QuizzesPage(ctx context.Context, f lms.QuizFilter) (lms.Page[lms.QuizData], error) {
	all, err := t.allCourses(ctx)
	if err != nil {
		return lms.Page[lms.QuizData]{}, err
	}
	return lms.PageQuizzes(all, f), nil
}

func (t *Template) allCourses(ctx context.Context) ([]lms.QuizData, error) {
	const op = "list courses"
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(coursesPageSize))
	path := coursesPath + "?" + q.Encode()

	out := make([]lms.QuizData, 0, coursesPageSize)
	for seen := map[string]bool{}; path != "" && !seen[path]; {
		seen[path] = true
		resp, err := t.call(ctx, op, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if err := lms.Classify(op, coursesPath, resp); err != nil {
			return nil, err
		}
		var page coursesPage
		if err := lms.Decode(op, coursesPath, resp, &page); err != nil {
			return nil, err
		}
		for _, c := range page.Results {
			out = append(out, t.toQuiz(c))
		}
		path = t.relative(page.Pagination.Next)
	}
	return out, nil
}

// relative turns an absolute next link back into a path on the setup URL.
func (t *Template) relative(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// Quizzes fetches every id on its own; a failing id never cancels the others.
func (t *Template) Quizzes(ctx context.Context, ids []string) []lms.QuizResult {
	out := make([]lms.QuizResult, len(ids))
	var g errgroup.Group
	g.SetLimit(t.cfg.FetchLimit)
	for i, id := range ids {
		i, id := i, id
		out[i].ID = id
		g.Go(func() error {
			err := lms.Guard("get course", func() error {
				q, err := t.course(ctx, id)
				out[i].Quiz, out[i].Err = q, err
				return nil
			})
			if err != nil {
				out[i].Err = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (t *Template) course(ctx context.Context, id string) (lms.QuizData, error) {
	const op = "get course"
	if strings.TrimSpace(id) == "" {
		return lms.QuizData{}, lms.ConfigError(op, "empty course id")
	}
	path := coursesPath + url.PathEscape(id) + "/"
	resp, err := t.call(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return lms.QuizData{}, err
	}
	if resp.Status == http.StatusNotFound {
		return lms.QuizData{}, lms.NotFoundError(op, path, "no course with id "+id)
	}
	if err := lms.Classify(op, path, resp); err != nil {
		return lms.QuizData{}, err
	}
	var c course
	if err := lms.Decode(op, path, resp, &c); err != nil {
		return lms.QuizData{}, err
	}
	return t.toQuiz(c), nil
}

func (t *Template) toQuiz(c course) lms.QuizData {
	id := c.ID
	if id == "" {
		id = c.CourseID
	}
	q := lms.QuizData{
		ID:            id,
		InstitutionID: t.setup.InstitutionID,
		LmsSetupID:    t.setup.ID,
		LmsType:       lms.TypeOpenEdx,
		Name:          c.Name,
		Description:   c.ShortDescription,
		StartTime:     parseTime(c.Start),
		StartURL:      t.url("/courses/" + id + "/courseware"),
		Attributes:    map[string]string{},
	}
	if end := parseTime(c.End); !end.IsZero() {
		q.EndTime = &end
	}
	for k, v := range map[string]string{"org": c.Org, "number": c.Number, "blocks_url": c.BlocksURL, "pacing": c.Pacing} {
		if v != "" {
			q.Attributes[k] = v
		}
	}
	return q
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
