package moodle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
)

type fakeMoodle struct {
	logins       int32
	validToken   atomic.Value // string
	failFunction string
}

func newFakeMoodle() *fakeMoodle {
	f := &fakeMoodle{}
	f.validToken.Store("")
	return f
}

func (f *fakeMoodle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case tokenPath:
		_ = r.ParseForm()
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "pw" || r.PostForm.Get("service") != DefaultService {
			_, _ = w.Write([]byte(`{"error":"Invalid login, please try again","errorcode":"invalidlogin"}`))
			return
		}
		n := atomic.AddInt32(&f.logins, 1)
		tok := "ws-" + string(rune('0'+n))
		f.validToken.Store(tok)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": tok})
	case webservicePath:
		q := r.URL.Query()
		if q.Get("moodlewsrestformat") != "json" {
			http.Error(w, "format", http.StatusBadRequest)
			return
		}
		if q.Get("wstoken") != f.validToken.Load().(string) {
			_, _ = w.Write([]byte(`{"exception":"moodle_exception","errorcode":"invalidtoken","message":"Invalid token - token not found"}`))
			return
		}
		fn := q.Get("wsfunction")
		if fn == f.failFunction {
			_, _ = w.Write([]byte(`{"exception":"dml_read_exception","errorcode":"dmlreadexception","message":"Error reading from database"}`))
			return
		}
		switch fn {
		case "core_webservice_get_site_info":
			_, _ = w.Write([]byte(`{"sitename":"Test Moodle","release":"4.3"}`))
		case "core_course_get_courses":
			_, _ = w.Write([]byte(`[{"id":1,"shortname":"site"},{"id":2,"shortname":"CS101","fullname":"Intro CS","startdate":1704877200}]`))
		case "mod_quiz_get_quizzes_by_courses":
			if q.Get("courseids[0]") != "2" || q.Get("courseids[1]") != "" {
				http.Error(w, "unexpected course ids", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"quizzes":[
				{"id":11,"course":2,"coursemodule":31,"name":"Intro Exam","timeopen":1704877200,"timeclose":1704880800},
				{"id":12,"course":2,"coursemodule":32,"name":"Final Exam","timeopen":0}
			],"warnings":[]}`))
		default:
			_, _ = w.Write([]byte(`{"exception":"webservice_access_exception","errorcode":"accessexception","message":"Access control exception"}`))
		}
	default:
		http.NotFound(w, r)
	}
}

type sink struct {
	mu     sync.Mutex
	tokens []string
}

func (s *sink) UpdateAccessToken(ctx context.Context, setupID int64, token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, string(token))
	return nil
}

func newTemplate(t *testing.T, url string, plain credentials.Plain, cfg Config) *Template {
	t.Helper()
	store, err := credentials.NewStore("moodle-test")
	if err != nil {
		t.Fatal(err)
	}
	enc, err := store.Encrypt(plain)
	if err != nil {
		t.Fatal(err)
	}
	return New(lms.Setup{ID: 4, InstitutionID: 1, Name: "moodle", Type: lms.TypeMoodle, URL: url, Credentials: enc, Active: true}, store, cfg)
}

func TestTemplate_LoginAndQuizzes(t *testing.T) {
	srv := httptest.NewServer(newFakeMoodle())
	defer srv.Close()
	s := &sink{}
	tpl := newTemplate(t, srv.URL, credentials.Plain{ClientID: []byte("admin"), Secret: []byte("pw")}, Config{Sink: s})

	if r := tpl.TestConnection(context.Background()); !r.OK() {
		t.Fatalf("expected OK, got %+v", r)
	}
	res := tpl.Quizzes(context.Background(), []string{"11", "99", "12"})
	if res[0].Err != nil || res[0].Quiz.Name != "Intro Exam" || res[0].Quiz.EndTime == nil {
		t.Fatalf("unexpected first result %+v", res[0])
	}
	if !lms.IsKind(res[1].Err, lms.KindNotFound) {
		t.Fatalf("expected not found, got %v", res[1].Err)
	}
	// quiz without open time starts with its course
	if res[2].Err != nil || res[2].Quiz.StartTime.Unix() != 1704877200 {
		t.Fatalf("unexpected third result %+v", res[2])
	}
	if res[0].Quiz.StartURL != srv.URL+"/mod/quiz/view.php?id=31" {
		t.Fatalf("unexpected start url %q", res[0].Quiz.StartURL)
	}
	if len(s.tokens) != 1 || s.tokens[0] != "ws-1" {
		t.Fatalf("expected negotiated token to be persisted, got %v", s.tokens)
	}
}

func TestTemplate_StaleStoredTokenTriggersOneLogin(t *testing.T) {
	fake := newFakeMoodle()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	tpl := newTemplate(t, srv.URL, credentials.Plain{
		ClientID: []byte("admin"), Secret: []byte("pw"), AccessToken: []byte("expired"),
	}, Config{})

	page, err := tpl.QuizzesPage(context.Background(), lms.QuizFilter{OrderBy: lms.OrderByName, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Content) != 2 || page.Content[0].Name != "Final Exam" {
		t.Fatalf("unexpected page %+v", page)
	}
	if got := atomic.LoadInt32(&fake.logins); got != 1 {
		t.Fatalf("expected exactly one login, got %d", got)
	}
}

func TestTemplate_InvalidLogin(t *testing.T) {
	srv := httptest.NewServer(newFakeMoodle())
	defer srv.Close()
	tpl := newTemplate(t, srv.URL, credentials.Plain{ClientID: []byte("admin"), Secret: []byte("nope")}, Config{})

	if r := tpl.TestConnection(context.Background()); r.Kind != lms.TestTokenRequestError {
		t.Fatalf("expected token request error, got %+v", r)
	}
	_, err := tpl.QuizzesPage(context.Background(), lms.QuizFilter{})
	if !lms.IsKind(err, lms.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestTemplate_ExceptionEnvelopeIsUpstream(t *testing.T) {
	fake := newFakeMoodle()
	fake.failFunction = "mod_quiz_get_quizzes_by_courses"
	srv := httptest.NewServer(fake)
	defer srv.Close()
	tpl := newTemplate(t, srv.URL, credentials.Plain{ClientID: []byte("admin"), Secret: []byte("pw")}, Config{})

	res := tpl.Quizzes(context.Background(), []string{"11", "12"})
	for _, r := range res {
		if !lms.IsKind(r.Err, lms.KindUpstream) {
			t.Fatalf("expected upstream error for %s, got %v", r.ID, r.Err)
		}
	}
}

func TestTemplate_RestrictionUnsupported(t *testing.T) {
	tpl := New(lms.Setup{Type: lms.TypeMoodle, URL: "http://moodle.example"}, nil, Config{})
	ctx := context.Background()
	if _, err := tpl.CourseRestriction(ctx, "2"); !lms.IsKind(err, lms.KindUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if err := tpl.PushCourseRestriction(ctx, "2", lms.CourseRestriction{}); !lms.IsKind(err, lms.KindUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if err := tpl.DeleteCourseRestriction(ctx, "2"); !lms.IsKind(err, lms.KindUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
