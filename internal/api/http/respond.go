package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-seb/internal/exam"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
	"github.com/mind-engage/mindengage-seb/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusOf maps an error to the HTTP status and the message shown to the
// caller. Upstream bodies stay in the logs.
func statusOf(err error) (int, errorBody) {
	var le *lms.Error
	switch {
	case errors.Is(err, lmssetup.ErrDuplicateName):
		return http.StatusConflict, errorBody{Error: "name already used in institution"}
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error()}
	case errors.As(err, &le):
		msg := le.Msg
		if msg == "" {
			msg = le.Kind.String()
		}
		body := errorBody{Error: msg, Kind: le.Kind.String()}
		switch le.Kind {
		case lms.KindConfiguration:
			return http.StatusBadRequest, body
		case lms.KindCredential:
			return http.StatusUnprocessableEntity, body
		case lms.KindAuthorization:
			return http.StatusForbidden, body
		case lms.KindNotFound, lms.KindNoRestriction:
			return http.StatusNotFound, body
		case lms.KindUnsupported:
			return http.StatusNotImplemented, body
		default:
			body.Error = "LMS request failed"
			return http.StatusBadGateway, body
		}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal error"}
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusOf(err)
	entry := logging.Log().WithError(err).WithField("path", r.URL.Path)
	if le := (*lms.Error)(nil); errors.As(err, &le) && le.Body != "" {
		entry = entry.WithField("upstream_body", le.Body)
	}
	if status >= 500 {
		entry.Warn("request error")
	} else {
		entry.Debug("request error")
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
