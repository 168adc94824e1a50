package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-seb/internal/activity"
	authmw "github.com/mind-engage/mindengage-seb/internal/auth/middleware"
)

// GET /api/activity?limit=
func ListActivityHandler(log activity.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := log.List(r.Context(), authmw.InstitutionFromContext(r.Context()), parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
