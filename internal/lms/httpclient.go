package lms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mind-engage/mindengage-seb/internal/logging"
)

const maxBodySnippet = 512

// Client performs upstream LMS calls and classifies non-2xx answers into
// typed errors. It never retries; the only retry in the system is the
// single token refresh done by TokenCache.Authorized.
type Client struct {
	HTTP *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Response is a fully read upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do sends req and reads the body completely. Transport failures come back as
// upstream errors; HTTP status codes are left to the caller (see Classify).
func (c *Client) Do(op string, req *http.Request) (*Response, error) {
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	endpoint := req.URL.Path
	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &Error{Kind: KindUpstream, Op: op, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Op: op, Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}
	logging.Log().Debugf("lms %s %s %s -> %d", op, req.Method, endpoint, resp.StatusCode)
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// JSON builds a request with an optional JSON body.
func JSON(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Classify maps a non-2xx response to a typed error. 2xx yields nil.
// 404 is reported as NotFound; callers that attach a different meaning to it
// check for it before calling Classify.
func Classify(op, endpoint string, r *Response) error {
	switch {
	case r.Status >= 200 && r.Status < 300:
		return nil
	case r.Status == http.StatusUnauthorized:
		return AuthorizationError(op, endpoint, r.Status)
	case r.Status == http.StatusNotFound:
		return NotFoundError(op, endpoint, "resource not found")
	}
	body := Snippet(r.Body, maxBodySnippet)
	logging.Log().Warnf("lms %s %s: unexpected status %d: %s", op, endpoint, r.Status, body)
	return &Error{
		Kind:     KindUpstream,
		Op:       op,
		Endpoint: endpoint,
		Status:   r.Status,
		Body:     body,
		Msg:      fmt.Sprintf("unexpected upstream status %d", r.Status),
	}
}

// Decode unmarshals a response body, reporting malformed payloads as upstream errors.
func Decode(op, endpoint string, r *Response, v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{
			Kind:     KindUpstream,
			Op:       op,
			Endpoint: endpoint,
			Status:   r.Status,
			Body:     Snippet(r.Body, maxBodySnippet),
			Msg:      "malformed response payload",
			Err:      err,
		}
	}
	return nil
}

func Snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// IsCanceled reports whether err stems from the caller giving up.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
