package openedx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
)

// fakeEdx is a minimal Open edX with the SEB plugin installed.
type fakeEdx struct {
	t *testing.T

	tokenPath   string
	tokens      int32
	reject401   int32 // number of API calls to answer with 401
	pluginFound bool

	mu           sync.Mutex
	restrictions map[string]restrictionData
	courses      map[string]course
}

func newFakeEdx(t *testing.T) *fakeEdx {
	return &fakeEdx{
		t:            t,
		tokenPath:    DefaultTokenPath,
		pluginFound:  true,
		restrictions: map[string]restrictionData{},
		courses: map[string]course{
			"course-v1:Org+A+1": {ID: "course-v1:Org+A+1", Name: "Intro Exam", Start: "2024-01-10T09:00:00Z"},
			"course-v1:Org+B+1": {ID: "course-v1:Org+B+1", Name: "Final Exam", Start: "2024-06-01T09:00:00Z", End: "2024-06-01T11:00:00Z"},
			"course-v1:Org+C+1": {ID: "course-v1:Org+C+1", Name: "Midterm", Start: "2024-03-01T09:00:00Z"},
		},
	}
}

func (f *fakeEdx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == f.tokenPath && r.Method == http.MethodPost {
		_ = r.ParseForm()
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "csecret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		n := atomic.AddInt32(&f.tokens, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-` + string(rune('0'+n)) + `","token_type":"Bearer","expires_in":3600}`))
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if atomic.LoadInt32(&f.reject401) > 0 {
		atomic.AddInt32(&f.reject401, -1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == sebInfoPath:
		if !f.pluginFound {
			http.NotFound(w, r)
			return
		}
		// needs a user session; client credential tokens are always refused
		w.WriteHeader(http.StatusUnauthorized)
	case r.URL.Path == coursesPath:
		f.listCourses(w, r)
	case strings.HasPrefix(r.URL.Path, coursesPath):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, coursesPath), "/")
		c, ok := f.courses[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, c)
	case strings.HasPrefix(r.URL.Path, "/seb-openedx/api/v1/course/"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/seb-openedx/api/v1/course/"), "/configuration/")
		f.restriction(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// listCourses serves two pages to exercise next-link following.
func (f *fakeEdx) listCourses(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for id := range f.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var page coursesPage
	if r.URL.Query().Get("page") == "2" {
		for _, id := range ids[2:] {
			page.Results = append(page.Results, f.courses[id])
		}
	} else {
		for _, id := range ids[:2] {
			page.Results = append(page.Results, f.courses[id])
		}
		page.Pagination.Next = "http://" + r.Host + coursesPath + "?page=2&page_size=100"
	}
	writeJSON(w, page)
}

func (f *fakeEdx) restriction(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		d, ok := f.restrictions[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, d)
	case http.MethodPut:
		var d restrictionData
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.restrictions[id] = d
		writeJSON(w, d)
	case http.MethodDelete:
		if _, ok := f.restrictions[id]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(f.restrictions, id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTemplate(t *testing.T, srvURL string, cfg Config) *Template {
	t.Helper()
	store, err := credentials.NewStore("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	enc, err := store.Encrypt(credentials.Plain{ClientID: []byte("cid"), Secret: []byte("csecret")})
	if err != nil {
		t.Fatal(err)
	}
	setup := lms.Setup{ID: 1, InstitutionID: 2, Name: "edx", Type: lms.TypeOpenEdx, URL: srvURL, Credentials: enc, Active: true}
	return New(setup, store, cfg)
}

func TestTemplate_TestConnection(t *testing.T) {
	fake := newFakeEdx(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	tpl := newTemplate(t, srv.URL, Config{})
	if r := tpl.TestConnection(context.Background()); !r.OK() {
		t.Fatalf("expected OK, got %+v", r)
	}
	if r := tpl.TestConnection(context.Background()); !r.OK() {
		t.Fatalf("expected OK on repeat, got %+v", r)
	}
	// the plugin info 401 must not throw the token away
	if got := atomic.LoadInt32(&fake.tokens); got != 1 {
		t.Fatalf("expected one token negotiation, got %d", got)
	}

	fake.pluginFound = false
	if r := newTemplate(t, srv.URL, Config{}).TestConnection(context.Background()); r.Kind != lms.TestQuizRestrictionError {
		t.Fatalf("expected restriction API error, got %+v", r)
	}
}

func TestTemplate_TokenPathsTriedInOrder(t *testing.T) {
	fake := newFakeEdx(t)
	fake.tokenPath = "/oauth2/token"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	tpl := newTemplate(t, srv.URL, Config{TokenPaths: []string{"/oauth2/access_token", "/oauth2/token"}})
	if r := tpl.TestConnection(context.Background()); !r.OK() {
		t.Fatalf("expected OK via second token path, got %+v", r)
	}

	tpl = newTemplate(t, srv.URL, Config{TokenPaths: []string{"/a/token", "/b/token"}})
	r := tpl.TestConnection(context.Background())
	if r.Kind != lms.TestTokenRequestError || !strings.Contains(r.Message, "/a/token") || !strings.Contains(r.Message, "/b/token") {
		t.Fatalf("expected token error listing all paths, got %+v", r)
	}
}

func TestTemplate_WrongCredentialsIsCredentialOrTokenError(t *testing.T) {
	srv := httptest.NewServer(newFakeEdx(t))
	defer srv.Close()

	store, _ := credentials.NewStore("test-secret")
	enc, _ := store.Encrypt(credentials.Plain{ClientID: []byte("cid"), Secret: []byte("wrong")})
	tpl := New(lms.Setup{ID: 1, Type: lms.TypeOpenEdx, URL: srv.URL, Credentials: enc}, store, Config{})
	if r := tpl.TestConnection(context.Background()); r.Kind != lms.TestTokenRequestError {
		t.Fatalf("expected token request error, got %+v", r)
	}

	other, _ := credentials.NewStore("another-secret")
	tpl = New(lms.Setup{ID: 1, Type: lms.TypeOpenEdx, URL: srv.URL, Credentials: enc}, other, Config{})
	if r := tpl.TestConnection(context.Background()); r.Kind != lms.TestCredentialError {
		t.Fatalf("expected credential error, got %+v", r)
	}
}

func TestTemplate_QuizzesPageFollowsNextAndSorts(t *testing.T) {
	srv := httptest.NewServer(newFakeEdx(t))
	defer srv.Close()

	page, err := newTemplate(t, srv.URL, Config{}).QuizzesPage(context.Background(), lms.QuizFilter{
		OrderBy: lms.OrderByStartTime, SortOrder: lms.Ascending, PageNumber: 1, PageSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, q := range page.Content {
		got = append(got, q.Name)
	}
	if diff := cmp.Diff([]string{"Intro Exam", "Midterm", "Final Exam"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if page.Content[2].EndTime == nil || page.Content[0].LmsSetupID != 1 {
		t.Fatalf("unexpected mapping %+v", page.Content)
	}

	page, err = newTemplate(t, srv.URL, Config{}).QuizzesPage(context.Background(), lms.QuizFilter{PageNumber: 5, PageSize: 10})
	if err != nil || len(page.Content) != 0 {
		t.Fatalf("expected empty page past the end, got %+v, %v", page, err)
	}
}

func TestTemplate_QuizzesPartialFailure(t *testing.T) {
	srv := httptest.NewServer(newFakeEdx(t))
	defer srv.Close()

	res := newTemplate(t, srv.URL, Config{}).Quizzes(context.Background(),
		[]string{"course-v1:Org+A+1", "nope", "course-v1:Org+B+1"})
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if res[0].Err != nil || res[0].Quiz.Name != "Intro Exam" {
		t.Fatalf("unexpected first result %+v", res[0])
	}
	if !lms.IsKind(res[1].Err, lms.KindNotFound) || res[1].ID != "nope" {
		t.Fatalf("expected not found for bad id, got %+v", res[1])
	}
	if res[2].Err != nil || res[2].Quiz.Name != "Final Exam" {
		t.Fatalf("unexpected third result %+v", res[2])
	}
}

func TestTemplate_RestrictionRoundTrip(t *testing.T) {
	srv := httptest.NewServer(newFakeEdx(t))
	defer srv.Close()
	ctx := context.Background()
	tpl := newTemplate(t, srv.URL, Config{})
	const course = "course-v1:Org+A+1"

	if _, err := tpl.CourseRestriction(ctx, course); !lms.IsKind(err, lms.KindNoRestriction) {
		t.Fatalf("expected no restriction, got %v", err)
	}

	want := lms.CourseRestriction{
		CourseID:             course,
		ConfigKeys:           []string{"ck1"},
		BrowserExamKeys:      []string{"bek1", "bek2"},
		WhitelistPaths:       []string{"ABOUT"},
		PermissionComponents: []string{"AlwaysAllowStaff"},
		UserBanningEnabled:   true,
	}
	for i := 0; i < 2; i++ {
		if err := tpl.PushCourseRestriction(ctx, course, want); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	got, err := tpl.CourseRestriction(ctx, course)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// empty lists read back like nil ones
	empty := want
	empty.WhitelistPaths, empty.BlacklistChapters = []string{}, []string{}
	if err := tpl.PushCourseRestriction(ctx, course, empty); err != nil {
		t.Fatalf("push with empty lists: %v", err)
	}
	if got, err = tpl.CourseRestriction(ctx, course); err != nil {
		t.Fatal(err)
	}
	want.WhitelistPaths = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("empty list round trip mismatch (-want +got):\n%s", diff)
	}

	// the plugin cannot store user agents; refuse instead of dropping them
	withAgents := want
	withAgents.UserAgents = []string{"SEB/3.3"}
	withAgents.ConfigKeys = []string{"ck2"}
	if err := tpl.PushCourseRestriction(ctx, course, withAgents); !lms.IsKind(err, lms.KindUnsupported) {
		t.Fatalf("expected unsupported for user agents, got %v", err)
	}
	if got, err = tpl.CourseRestriction(ctx, course); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("refused push must leave the restriction untouched (-want +got):\n%s", diff)
	}

	if err := tpl.DeleteCourseRestriction(ctx, course); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tpl.DeleteCourseRestriction(ctx, course); err != nil {
		t.Fatalf("delete of missing restriction must succeed, got %v", err)
	}
}

func TestTemplate_SingleUnauthorizedRefreshesOnce(t *testing.T) {
	fake := newFakeEdx(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()
	tpl := newTemplate(t, srv.URL, Config{})

	if res := tpl.Quizzes(ctx, []string{"course-v1:Org+A+1"}); res[0].Err != nil {
		t.Fatal(res[0].Err)
	}
	if got := tpl.Tokens().Refreshes(); got != 1 {
		t.Fatalf("expected 1 token negotiation, got %d", got)
	}

	atomic.StoreInt32(&fake.reject401, 1)
	res := tpl.Quizzes(ctx, []string{"course-v1:Org+A+1"})
	if res[0].Err != nil {
		t.Fatalf("expected success after one refresh, got %v", res[0].Err)
	}
	if got := tpl.Tokens().Refreshes(); got != 2 {
		t.Fatalf("expected exactly one extra refresh, got %d", got)
	}
}

func TestTemplate_SecondUnauthorizedSurfaces(t *testing.T) {
	fake := newFakeEdx(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	tpl := newTemplate(t, srv.URL, Config{})

	atomic.StoreInt32(&fake.reject401, 2)
	_, err := tpl.CourseRestriction(context.Background(), "course-v1:Org+A+1")
	if !lms.IsKind(err, lms.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if !strings.Contains(err.Error(), "please check the corresponding LMS setup") {
		t.Fatalf("expected guidance text, got %v", err)
	}
	if got := atomic.LoadInt32(&fake.tokens); got != 2 {
		t.Fatalf("expected two token requests, got %d", got)
	}
	if atomic.LoadInt32(&fake.reject401) != 0 {
		t.Fatalf("expected both rejections consumed and no further retry")
	}
}

func TestTemplate_UpstreamErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultTokenPath {
			writeJSON(w, map[string]any{"access_token": "tok-1", "token_type": "Bearer"})
			return
		}
		http.Error(w, "kaputt", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTemplate(t, srv.URL, Config{}).PushCourseRestriction(context.Background(), "c", lms.CourseRestriction{})
	var le *lms.Error
	if !lms.IsKind(err, lms.KindUpstream) || !errors.As(err, &le) || le.Status != 500 || !strings.Contains(le.Body, "kaputt") {
		t.Fatalf("expected upstream error with status and body, got %#v", err)
	}
}
