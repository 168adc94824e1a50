// Package lms defines the normalized contract every LMS connection implements,
// plus the shared plumbing (errors, paging, token cache, HTTP classification)
// the per-LMS templates are built on.
package lms

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
)

type Type string

const (
	TypeMock    Type = "MOCKUP"
	TypeOpenEdx Type = "OPEN_EDX"
	TypeMoodle  Type = "MOODLE"
)

func ParseType(s string) (Type, bool) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeMock, TypeOpenEdx, TypeMoodle:
		return t, true
	}
	return "", false
}

// Setup is one institution-scoped LMS connection. Credentials stay sealed;
// templates decrypt them only for the duration of a token negotiation.
type Setup struct {
	ID            int64                 `json:"id"`
	InstitutionID int64                 `json:"institutionId"`
	Name          string                `json:"name"`
	Type          Type                  `json:"lmsType"`
	URL           string                `json:"lmsUrl"`
	Credentials   credentials.Encrypted `json:"-"`
	Active        bool                  `json:"active"`
	Version       int64                 `json:"version"`
}

// Validate fails fast on malformed setups before anything reaches the network.
func (s Setup) Validate() error {
	if _, ok := ParseType(string(s.Type)); !ok {
		return ConfigError("validate setup", "unknown or missing LMS type "+string(s.Type))
	}
	if s.Type == TypeMock {
		return nil
	}
	if strings.TrimSpace(s.URL) == "" {
		return ConfigError("validate setup", "missing LMS API URL")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ConfigError("validate setup", "LMS API URL must be an absolute http(s) URL")
	}
	return nil
}

// BaseURL returns the setup URL without trailing slash.
func (s Setup) BaseURL() string { return strings.TrimRight(strings.TrimSpace(s.URL), "/") }

// QuizData is the LMS-native view of a course or quiz. It is fetched on demand
// and never persisted as-is.
type QuizData struct {
	ID            string            `json:"quizId"`
	InstitutionID int64             `json:"institutionId"`
	LmsSetupID    int64             `json:"lmsSetupId"`
	LmsType       Type              `json:"lmsType"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	StartTime     time.Time         `json:"startTime"`
	EndTime       *time.Time        `json:"endTime,omitempty"`
	StartURL      string            `json:"startUrl,omitempty"`
	Attributes    map[string]string `json:"additionalAttributes,omitempty"`
}

// QuizResult is the per-id outcome of a batch fetch.
type QuizResult struct {
	ID   string
	Quiz QuizData
	Err  error
}

// CourseRestriction describes which locked-down browser clients may access a course.
type CourseRestriction struct {
	CourseID             string   `json:"courseId"`
	ConfigKeys           []string `json:"configKeys"`
	BrowserExamKeys      []string `json:"browserExamKeys"`
	UserAgents           []string `json:"userAgents,omitempty"`
	WhitelistPaths       []string `json:"whitelistPaths,omitempty"`
	BlacklistChapters    []string `json:"blacklistChapters,omitempty"`
	PermissionComponents []string `json:"permissionComponents,omitempty"`
	UserBanningEnabled   bool     `json:"userBanningEnabled"`
}

type TestResultKind string

const (
	TestOK                   TestResultKind = "OK"
	TestCredentialError      TestResultKind = "CREDENTIAL_ERROR"
	TestTokenRequestError    TestResultKind = "TOKEN_REQUEST_ERROR"
	TestQuizRestrictionError TestResultKind = "QUIZ_RESTRICTION_API_ERROR"
	TestUnsupported          TestResultKind = "UNSUPPORTED"
)

// TestResult is the transient outcome of a connectivity probe.
type TestResult struct {
	Kind    TestResultKind `json:"result"`
	Message string         `json:"message,omitempty"`
}

func (r TestResult) OK() bool { return r.Kind == TestOK }

func TestResultOK() TestResult { return TestResult{Kind: TestOK} }

func TestResultOf(kind TestResultKind, msg string) TestResult {
	return TestResult{Kind: kind, Message: msg}
}

// Template is the normalized contract of one LMS connection. A Template is
// bound to exactly one Setup for its whole lifetime.
type Template interface {
	Setup() Setup
	TestConnection(ctx context.Context) TestResult
	QuizzesPage(ctx context.Context, f QuizFilter) (Page[QuizData], error)
	Quizzes(ctx context.Context, ids []string) []QuizResult
	CourseRestriction(ctx context.Context, courseID string) (CourseRestriction, error)
	PushCourseRestriction(ctx context.Context, courseID string, r CourseRestriction) error
	DeleteCourseRestriction(ctx context.Context, courseID string) error
}
