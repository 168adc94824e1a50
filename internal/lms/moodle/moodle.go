// Package moodle reads courses and quizzes through the Moodle REST web
// services. Moodle has no course restriction API, so restriction calls report
// Unsupported.
package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/logging"
)

const (
	DefaultService = "moodle_mobile_app"

	tokenPath      = "/login/token.php"
	webservicePath = "/webservice/rest/server.php"
)

// TokenSink persists a freshly negotiated web service token with its setup.
type TokenSink interface {
	UpdateAccessToken(ctx context.Context, setupID int64, token []byte) error
}

type Config struct {
	Service     string
	HTTPTimeout time.Duration
	Sink        TokenSink
}

type Template struct {
	setup  lms.Setup
	creds  *credentials.Store
	cfg    Config
	client *lms.Client
	tokens *lms.TokenCache

	// storedUsed flips once the token persisted with the setup was handed out.
	storedUsed atomic.Bool
}

func New(setup lms.Setup, creds *credentials.Store, cfg Config) *Template {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	t := &Template{
		setup:  setup,
		creds:  creds,
		cfg:    cfg,
		client: lms.NewClient(cfg.HTTPTimeout),
	}
	t.tokens = lms.NewTokenCache(t.fetchToken)
	return t
}

func (t *Template) Setup() lms.Setup { return t.setup }

func (t *Template) Tokens() *lms.TokenCache { return t.tokens }

// fetchToken hands out the persisted token first; afterwards, or when there is
// none, it logs in with username and password. A setup with only an API token
// keeps using that token.
func (t *Template) fetchToken(ctx context.Context) (lms.Token, error) {
	const op = "token request"
	if t.creds == nil {
		return lms.Token{}, lms.CredentialError(op, credentials.ErrNoSecret)
	}
	plain, err := t.creds.Decrypt(t.setup.Credentials)
	if err != nil {
		return lms.Token{}, lms.CredentialError(op, err)
	}
	defer plain.Wipe()

	canLogin := len(plain.ClientID) > 0 && len(plain.Secret) > 0
	if len(plain.AccessToken) > 0 && (!canLogin || t.storedUsed.CompareAndSwap(false, true)) {
		return lms.Token{Value: string(plain.AccessToken)}, nil
	}
	if !canLogin {
		return lms.Token{}, lms.CredentialError(op, errors.New("neither username/password nor API token set"))
	}

	form := url.Values{}
	form.Set("username", string(plain.ClientID))
	form.Set("password", string(plain.Secret))
	form.Set("service", t.cfg.Service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.setup.BaseURL()+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return lms.Token{}, lms.UpstreamError(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(op, req)
	if err != nil {
		return lms.Token{}, err
	}
	if err := lms.Classify(op, tokenPath, resp); err != nil {
		return lms.Token{}, err
	}
	var out struct {
		Token     string `json:"token"`
		Error     string `json:"error"`
		ErrorCode string `json:"errorcode"`
	}
	if err := lms.Decode(op, tokenPath, resp, &out); err != nil {
		return lms.Token{}, err
	}
	if out.Token == "" {
		return lms.Token{}, &lms.Error{
			Kind:     lms.KindAuthorization,
			Op:       op,
			Endpoint: tokenPath,
			Status:   resp.Status,
			Msg:      "moodle refused the login: " + firstNonEmpty(out.ErrorCode, out.Error, "no token returned"),
		}
	}

	if t.cfg.Sink != nil {
		if err := t.cfg.Sink.UpdateAccessToken(ctx, t.setup.ID, []byte(out.Token)); err != nil {
			logging.Log().Warnf("moodle setup %d: failed to persist access token: %v", t.setup.ID, err)
		}
	}
	return lms.Token{Value: out.Token}, nil
}

// exception is the error envelope Moodle answers with HTTP 200.
type exception struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call invokes one web service function. An invalidtoken answer counts as 401.
func (t *Template) call(ctx context.Context, function string, params url.Values, v any) error {
	op := function
	return t.tokens.Authorized(ctx, func(ctx context.Context, token string) error {
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("wstoken", token)
		q.Set("wsfunction", function)
		q.Set("moodlewsrestformat", "json")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.setup.BaseURL()+webservicePath+"?"+q.Encode(), nil)
		if err != nil {
			return lms.UpstreamError(op, err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := t.client.Do(op, req)
		if err != nil {
			return err
		}
		if err := lms.Classify(op, webservicePath, resp); err != nil {
			return err
		}
		if body := bytes.TrimSpace(resp.Body); len(body) > 0 && body[0] == '{' {
			var ex exception
			if json.Unmarshal(body, &ex) == nil && ex.Exception != "" {
				return classifyException(op, ex, resp)
			}
		}
		return lms.Decode(op, webservicePath, resp, v)
	})
}

func classifyException(op string, ex exception, resp *lms.Response) error {
	switch ex.ErrorCode {
	case "invalidtoken", "accessexception":
		return lms.AuthorizationError(op, webservicePath, http.StatusUnauthorized)
	case "invalidrecord":
		return lms.NotFoundError(op, webservicePath, ex.Message)
	}
	logging.Log().Warnf("moodle %s: %s (%s): %s", op, ex.Exception, ex.ErrorCode, lms.Snippet(resp.Body, 512))
	return &lms.Error{
		Kind:     lms.KindUpstream,
		Op:       op,
		Endpoint: webservicePath,
		Status:   resp.Status,
		Body:     lms.Snippet(resp.Body, 512),
		Msg:      firstNonEmpty(ex.Message, ex.ErrorCode),
	}
}

func (t *Template) TestConnection(ctx context.Context) lms.TestResult {
	if err := t.setup.Validate(); err != nil {
		return lms.TestResultOf(lms.TestTokenRequestError, err.Error())
	}
	c := t.setup.Credentials
	if !(c.HasClientID() && c.HasSecret()) && !c.HasAccessToken() {
		return lms.TestResultOf(lms.TestCredentialError, "missing username/password or API token")
	}
	if _, err := t.tokens.Token(ctx); err != nil {
		if lms.IsKind(err, lms.KindCredential) {
			return lms.TestResultOf(lms.TestCredentialError, err.Error())
		}
		return lms.TestResultOf(lms.TestTokenRequestError, "failed to gain access token from Moodle: "+err.Error())
	}
	var info struct {
		SiteName string `json:"sitename"`
		Release  string `json:"release"`
	}
	if err := t.call(ctx, "core_webservice_get_site_info", nil, &info); err != nil {
		return lms.TestResultOf(lms.TestTokenRequestError, "failed to access Moodle web services: "+err.Error())
	}
	logging.Log().Debugf("moodle setup %d: connected to %q (%s)", t.setup.ID, info.SiteName, info.Release)
	return lms.TestResultOK()
}

func (t *Template) CourseRestriction(ctx context.Context, courseID string) (lms.CourseRestriction, error) {
	return lms.CourseRestriction{}, lms.UnsupportedError("get course restriction", "Moodle has no course restriction API")
}

func (t *Template) PushCourseRestriction(ctx context.Context, courseID string, r lms.CourseRestriction) error {
	return lms.UnsupportedError("push course restriction", "Moodle has no course restriction API")
}

func (t *Template) DeleteCourseRestriction(ctx context.Context, courseID string) error {
	return lms.UnsupportedError("delete course restriction", "Moodle has no course restriction API")
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
