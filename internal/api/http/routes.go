package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-seb/internal/activity"
	authmw "github.com/mind-engage/mindengage-seb/internal/auth/middleware"
	"github.com/mind-engage/mindengage-seb/internal/exam"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
	"github.com/mind-engage/mindengage-seb/internal/quizimport"
	"github.com/mind-engage/mindengage-seb/internal/rbac"
)

type Deps struct {
	Auth      *authmw.AuthService
	Setups    lmssetup.Store
	Templates Invalidator
	Import    *quizimport.Service
	Exams     exam.Store
	Activity  activity.Log
}

// MountAPI registers the authenticated /api routes on r.
func MountAPI(r chi.Router, d Deps) {
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermQuizSearch)).
			Get("/api/quiz-import/search", SearchQuizzesHandler(d.Import, d.Setups))
		pr.With(rbac.Require(rbac.PermExamImport)).
			Post("/api/quiz-import/import", ImportQuizzesHandler(d.Import, d.Setups))
		pr.With(rbac.Require(rbac.PermExamView)).
			Get("/api/exams", ListExamsHandler(d.Exams))
		pr.With(rbac.Require(rbac.PermActivityView)).
			Get("/api/activity", ListActivityHandler(d.Activity))

		pr.Route("/api/lms-setups", func(sr chi.Router) {
			sr.With(rbac.RequireAny(rbac.PermQuizSearch, rbac.PermSetupWrite)).Get("/", ListSetupsHandler(d.Setups))
			sr.With(rbac.Require(rbac.PermSetupWrite)).Post("/", CreateSetupHandler(d.Setups))
			sr.With(rbac.Require(rbac.PermSetupWrite)).Put("/{id}", SaveSetupHandler(d.Setups, d.Templates))
			sr.With(rbac.Require(rbac.PermSetupWrite)).Put("/{id}/active", SetActiveHandler(d.Setups, d.Templates))
			sr.With(rbac.Require(rbac.PermTest)).Get("/{id}/test", TestConnectionHandler(d.Import, d.Setups))

			sr.Route("/{id}/courses/{courseID}/restriction", func(rr chi.Router) {
				rr.Use(rbac.Require(rbac.PermRestrict))
				rr.Get("/", GetRestrictionHandler(d.Import, d.Setups))
				rr.Put("/", PutRestrictionHandler(d.Import, d.Setups))
				rr.Delete("/", DeleteRestrictionHandler(d.Import, d.Setups))
			})
		})
	})
}
