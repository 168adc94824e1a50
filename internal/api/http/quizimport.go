package http

import (
	"net/http"
	"strings"

	authmw "github.com/mind-engage/mindengage-seb/internal/auth/middleware"
	"github.com/mind-engage/mindengage-seb/internal/exam"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
	"github.com/mind-engage/mindengage-seb/internal/quizimport"
)

// GET /api/quiz-import/search?lmsSetupId=&nameLike=&startTime=&page=&pageSize=&orderBy=&sortOrder=
func SearchQuizzesHandler(svc *quizimport.Service, setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		q := r.URL.Query()
		page, err := svc.Search(r.Context(), id, quizimport.SearchParams{
			NameLike:  q.Get("nameLike"),
			StartTime: q.Get("startTime"),
			Page:      parseIntDefault(q.Get("page"), 1),
			PageSize:  parseIntDefault(q.Get("pageSize"), 0),
			OrderBy:   q.Get("orderBy"),
			SortOrder: q.Get("sortOrder"),
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

type importFailure struct {
	QuizID string `json:"quizId"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

type importResponse struct {
	Imported []exam.Exam     `json:"imported"`
	Failed   []importFailure `json:"failed"`
}

// POST /api/quiz-import/import?lmsSetupId=&quizIds=a,b&type=MANAGED&supporters=u1,u2
func ImportQuizzesHandler(svc *quizimport.Service, setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		ids := quizimport.ParseIDs(r.FormValue("quizIds"))
		if len(ids) == 0 {
			badRequest(w, "missing quizIds")
			return
		}
		results := svc.ImportQuizzes(r.Context(), id, ids, quizimport.ImportOptions{
			Type:       exam.ParseType(r.FormValue("type")),
			Owner:      authmw.SubjectFromContext(r.Context()),
			Supporters: quizimport.ParseIDs(r.FormValue("supporters")),
		})

		resp := importResponse{Imported: []exam.Exam{}, Failed: []importFailure{}}
		for _, res := range results {
			if res.Err != nil {
				_, body := statusOf(res.Err)
				resp.Failed = append(resp.Failed, importFailure{
					QuizID: res.QuizID,
					Kind:   lms.KindOf(res.Err).String(),
					Error:  body.Error,
				})
				continue
			}
			resp.Imported = append(resp.Imported, res.Exam)
		}
		status := http.StatusOK
		if len(resp.Imported) == 0 {
			// nothing imported: report the first failure's status
			status, _ = statusOf(results[0].Err)
		}
		writeJSON(w, status, resp)
	}
}

// GET /api/exams?lmsSetupId=&limit=&offset=
func ListExamsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := exam.ListOpts{
			InstitutionID: authmw.InstitutionFromContext(r.Context()),
			Limit:         parseIntDefault(q.Get("limit"), 50),
			Offset:        parseIntDefault(q.Get("offset"), 0),
		}
		if v := strings.TrimSpace(q.Get("lmsSetupId")); v != "" {
			opts.LmsSetupID = int64(parseIntDefault(v, 0))
		}
		list, err := store.List(r.Context(), opts)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
