package openedx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/logging"
)

// restrictionData is the SEB Open edX plugin payload.
type restrictionData struct {
	ConfigKeys           []string `json:"CONFIG_KEYS"`
	BrowserKeys          []string `json:"BROWSER_KEYS"`
	WhitelistPaths       []string `json:"WHITELIST_PATHS"`
	BlacklistChapters    []string `json:"BLACKLIST_CHAPTERS"`
	PermissionComponents []string `json:"PERMISSION_COMPONENTS"`
	UserBanningEnabled   bool     `json:"USER_BANNING_ENABLED"`
}

func toData(r lms.CourseRestriction) restrictionData {
	nz := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	return restrictionData{
		ConfigKeys:           nz(r.ConfigKeys),
		BrowserKeys:          nz(r.BrowserExamKeys),
		WhitelistPaths:       nz(r.WhitelistPaths),
		BlacklistChapters:    nz(r.BlacklistChapters),
		PermissionComponents: nz(r.PermissionComponents),
		UserBanningEnabled:   r.UserBanningEnabled,
	}
}

// restriction maps the payload back; lists the plugin returns empty come
// back nil, matching what toData sends for a nil list.
func (d restrictionData) restriction(courseID string) lms.CourseRestriction {
	nilIfEmpty := func(s []string) []string {
		if len(s) == 0 {
			return nil
		}
		return s
	}
	return lms.CourseRestriction{
		CourseID:             courseID,
		ConfigKeys:           nilIfEmpty(d.ConfigKeys),
		BrowserExamKeys:      nilIfEmpty(d.BrowserKeys),
		WhitelistPaths:       nilIfEmpty(d.WhitelistPaths),
		BlacklistChapters:    nilIfEmpty(d.BlacklistChapters),
		PermissionComponents: nilIfEmpty(d.PermissionComponents),
		UserBanningEnabled:   d.UserBanningEnabled,
	}
}

func restrictionURL(courseID string) string {
	return fmt.Sprintf(restrictionPath, url.PathEscape(courseID))
}

func (t *Template) CourseRestriction(ctx context.Context, courseID string) (lms.CourseRestriction, error) {
	const op = "get course restriction"
	if strings.TrimSpace(courseID) == "" {
		return lms.CourseRestriction{}, lms.ConfigError(op, "missing course id")
	}
	logging.Log().Debugf("GET SEB client restriction on course: %s", courseID)
	path := restrictionURL(courseID)
	resp, err := t.call(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return lms.CourseRestriction{}, err
	}
	if resp.Status == http.StatusNotFound {
		return lms.CourseRestriction{}, lms.NoRestrictionError(op, courseID)
	}
	if err := lms.Classify(op, path, resp); err != nil {
		return lms.CourseRestriction{}, err
	}
	var d restrictionData
	if err := lms.Decode(op, path, resp, &d); err != nil {
		return lms.CourseRestriction{}, err
	}
	return d.restriction(courseID), nil
}

// PushCourseRestriction replaces the course restriction; a PUT with the same
// data is a no-op on the plugin side. The plugin has no notion of user
// agents, so a restriction carrying them is refused rather than trimmed.
func (t *Template) PushCourseRestriction(ctx context.Context, courseID string, r lms.CourseRestriction) error {
	const op = "push course restriction"
	if strings.TrimSpace(courseID) == "" {
		return lms.ConfigError(op, "missing course id")
	}
	if len(r.UserAgents) > 0 {
		return lms.UnsupportedError(op, "user agent restrictions are not supported by the Open edX plugin")
	}
	logging.Log().Debugf("PUT SEB client restriction on course: %s", courseID)
	path := restrictionURL(courseID)
	resp, err := t.call(ctx, op, http.MethodPut, path, toData(r))
	if err != nil {
		return err
	}
	if resp.Status == http.StatusNotFound {
		return lms.UnsupportedError(op, "course restriction API not available for course "+courseID)
	}
	return lms.Classify(op, path, resp)
}

// DeleteCourseRestriction treats a missing restriction as already deleted.
func (t *Template) DeleteCourseRestriction(ctx context.Context, courseID string) error {
	const op = "delete course restriction"
	if strings.TrimSpace(courseID) == "" {
		return lms.ConfigError(op, "missing course id")
	}
	logging.Log().Debugf("DELETE SEB client restriction on course: %s", courseID)
	path := restrictionURL(courseID)
	resp, err := t.call(ctx, op, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if resp.Status == http.StatusNotFound {
		return nil
	}
	return lms.Classify(op, path, resp)
}
