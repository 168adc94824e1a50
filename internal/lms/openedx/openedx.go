// Package openedx talks to an Open edX instance: courses through the public
// courses API and browser restrictions through the SEB Open edX plugin.
package openedx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/logging"
)

const (
	DefaultTokenPath = "/oauth2/access_token"

	coursesPath     = "/api/courses/v1/courses/"
	restrictionPath = "/seb-openedx/api/v1/course/%s/configuration/"
	sebInfoPath     = "/seb-openedx/seb-info"
)

type Config struct {
	// TokenPaths are tried in order until one hands out a token.
	TokenPaths  []string
	HTTPTimeout time.Duration
	// FetchLimit bounds the number of parallel per-course requests.
	FetchLimit int
}

func (c Config) withDefaults() Config {
	if len(c.TokenPaths) == 0 {
		c.TokenPaths = []string{DefaultTokenPath}
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = 8
	}
	return c
}

type Template struct {
	setup  lms.Setup
	creds  *credentials.Store
	cfg    Config
	client *lms.Client
	tokens *lms.TokenCache
}

func New(setup lms.Setup, creds *credentials.Store, cfg Config) *Template {
	cfg = cfg.withDefaults()
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

// Tokens exposes the token cache, mainly for observing refreshes.
func (t *Template) Tokens() *lms.TokenCache { return t.tokens }

func (t *Template) url(path string) string { return t.setup.BaseURL() + path }

// fetchToken decrypts the client credentials for the duration of the token
// request only and walks the known token endpoints.
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
	if len(plain.ClientID) == 0 || len(plain.Secret) == 0 {
		return lms.Token{}, lms.CredentialError(op, errors.New("client id or secret not set"))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client.HTTP)
	var errs []error
	rejected := false
	for _, p := range t.cfg.TokenPaths {
		cc := clientcredentials.Config{
			ClientID:     string(plain.ClientID),
			ClientSecret: string(plain.Secret),
			TokenURL:     t.url(p),
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err := cc.Token(ctx)
		if err == nil {
			logging.Log().Debugf("openedx setup %d: token obtained from %s", t.setup.ID, p)
			return lms.Token{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
		}
		if ctx.Err() != nil {
			return lms.Token{}, lms.UpstreamError(op, ctx.Err())
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			rejected = true
		}
		errs = append(errs, fmt.Errorf("%s: %w", p, err))
	}

	kind := lms.KindUpstream
	if rejected {
		kind = lms.KindAuthorization
	}
	return lms.Token{}, &lms.Error{
		Kind: kind,
		Op:   op,
		Msg:  "failed to gain access token, tried token endpoints: " + strings.Join(t.cfg.TokenPaths, ", "),
		Err:  errors.Join(errs...),
	}
}

// call runs one authorized request; a 401 triggers one token refresh and one retry.
func (t *Template) call(ctx context.Context, op, method, path string, body any) (*lms.Response, error) {
	var resp *lms.Response
	err := t.tokens.Authorized(ctx, func(ctx context.Context, token string) error {
		r, err := t.send(ctx, op, method, path, body, token)
		if err != nil {
			return err
		}
		if r.Status == http.StatusUnauthorized {
			return lms.AuthorizationError(op, path, r.Status)
		}
		resp = r
		return nil
	})
	return resp, err
}

func (t *Template) send(ctx context.Context, op, method, path string, body any, token string) (*lms.Response, error) {
	req, err := lms.JSON(ctx, method, t.url(path), body)
	if err != nil {
		return nil, lms.UpstreamError(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return t.client.Do(op, req)
}

func (t *Template) TestConnection(ctx context.Context) lms.TestResult {
	if err := t.setup.Validate(); err != nil {
		return lms.TestResultOf(lms.TestTokenRequestError, err.Error())
	}
	if !t.setup.Credentials.HasClientID() || !t.setup.Credentials.HasSecret() {
		return lms.TestResultOf(lms.TestCredentialError, "missing client id or secret")
	}
	tok, err := t.tokens.Token(ctx)
	if err != nil {
		if lms.IsKind(err, lms.KindCredential) {
			return lms.TestResultOf(lms.TestCredentialError, err.Error())
		}
		return lms.TestResultOf(lms.TestTokenRequestError,
			"failed to gain access token from Open edX REST API, tried token endpoints: "+strings.Join(t.cfg.TokenPaths, ", "))
	}

	// the plugin info endpoint is only reachable with user authentication,
	// so anything but a 404 counts as "installed". Its 401 is expected and
	// must not cost the cached token.
	resp, err := t.send(ctx, "seb info", http.MethodGet, sebInfoPath, nil, tok)
	if err != nil {
		return lms.TestResultOf(lms.TestQuizRestrictionError, "failed to verify course restriction API: "+err.Error())
	}
	if resp.Status == http.StatusNotFound {
		return lms.TestResultOf(lms.TestQuizRestrictionError, "course restriction API not found, is the SEB Open edX plugin installed?")
	}
	return lms.TestResultOK()
}
