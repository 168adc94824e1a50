package http

import (
	"context"
	"net/http"
	"strconv"

	authmw "github.com/mind-engage/mindengage-seb/internal/auth/middleware"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
)

// visibleSetup loads setup id if the caller's institution may see it. Setups of
// other institutions are reported as missing.
func visibleSetup(ctx context.Context, setups lmssetup.Store, id int64) (lms.Setup, error) {
	s, err := setups.Get(ctx, id)
	if err != nil {
		return lms.Setup{}, err
	}
	if inst := authmw.InstitutionFromContext(ctx); inst != 0 && inst != s.InstitutionID {
		return lms.Setup{}, lms.NotFoundError("get lms setup", "", "no LMS setup with id "+strconv.FormatInt(id, 10))
	}
	return s, nil
}

// setupParam resolves the LMS setup id from the URL path or the lmsSetupId
// parameter and checks its visibility.
func setupParam(w http.ResponseWriter, r *http.Request, setups lmssetup.Store) (int64, bool) {
	id, ok := pathID(r)
	if !ok {
		v, err := strconv.ParseInt(r.FormValue("lmsSetupId"), 10, 64)
		if err != nil || v <= 0 {
			badRequest(w, "missing or invalid lmsSetupId")
			return 0, false
		}
		id = v
	}
	if _, err := visibleSetup(r.Context(), setups, id); err != nil {
		writeErr(w, r, err)
		return 0, false
	}
	return id, true
}
