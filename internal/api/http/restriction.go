package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-seb/internal/auth/middleware"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
	"github.com/mind-engage/mindengage-seb/internal/quizimport"
)

// GET /api/lms-setups/{id}/courses/{courseID}/restriction
func GetRestrictionHandler(svc *quizimport.Service, setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		res, err := svc.CourseRestriction(r.Context(), id, chi.URLParam(r, "courseID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PUT /api/lms-setups/{id}/courses/{courseID}/restriction
func PutRestrictionHandler(svc *quizimport.Service, setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		var req lms.CourseRestriction
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		courseID := chi.URLParam(r, "courseID")
		if err := svc.PushCourseRestriction(r.Context(), id, courseID, req, authmw.SubjectFromContext(r.Context())); err != nil {
			writeErr(w, r, err)
			return
		}
		req.CourseID = courseID
		writeJSON(w, http.StatusOK, req)
	}
}

// DELETE /api/lms-setups/{id}/courses/{courseID}/restriction
func DeleteRestrictionHandler(svc *quizimport.Service, setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		err := svc.DeleteCourseRestriction(r.Context(), id, chi.URLParam(r, "courseID"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /api/lms-setups/{id}/test
func TestConnectionHandler(svc *quizimport.Service, setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		res, err := svc.TestConnection(r.Context(), id, authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
