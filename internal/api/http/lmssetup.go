package http

import (
	"encoding/json"
	"net/http"

	authmw "github.com/mind-engage/mindengage-seb/internal/auth/middleware"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
)

// Invalidator evicts cached templates of an edited setup.
type Invalidator interface {
	Invalidate(id int64)
}

// setupView is the API representation of a setup. Credentials are reported
// only as present or absent.
type setupView struct {
	lms.Setup
	HasClientCredentials bool `json:"hasClientCredentials"`
	HasAccessToken       bool `json:"hasAccessToken"`
}

func viewOf(s lms.Setup) setupView {
	return setupView{
		Setup:                s,
		HasClientCredentials: s.Credentials.HasClientID() && s.Credentials.HasSecret(),
		HasAccessToken:       s.Credentials.HasAccessToken(),
	}
}

// GET /api/lms-setups?active=true
func ListSetupsHandler(setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := lmssetup.Filter{InstitutionID: authmw.InstitutionFromContext(r.Context())}
		switch r.URL.Query().Get("active") {
		case "true", "1":
			v := true
			f.Active = &v
		case "false", "0":
			v := false
			f.Active = &v
		}
		list, err := setups.List(r.Context(), f)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		out := make([]setupView, 0, len(list))
		for _, s := range list {
			out = append(out, viewOf(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /api/lms-setups
func CreateSetupHandler(setups lmssetup.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in lmssetup.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badRequest(w, "bad json")
			return
		}
		// institution-scoped callers can only create in their own institution
		if inst := authmw.InstitutionFromContext(r.Context()); inst != 0 {
			in.InstitutionID = inst
		}
		s, err := setups.Create(r.Context(), in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(s))
	}
}

// PUT /api/lms-setups/{id}
func SaveSetupHandler(setups lmssetup.Store, templates Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		var in lmssetup.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badRequest(w, "bad json")
			return
		}
		s, err := setups.Save(r.Context(), id, in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		templates.Invalidate(id)
		writeJSON(w, http.StatusOK, viewOf(s))
	}
}

// PUT /api/lms-setups/{id}/active  { "active": true }
func SetActiveHandler(setups lmssetup.Store, templates Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := setupParam(w, r, setups)
		if !ok {
			return
		}
		var req struct {
			Active bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		s, err := setups.SetActive(r.Context(), id, req.Active)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		templates.Invalidate(id)
		writeJSON(w, http.StatusOK, viewOf(s))
	}
}
