package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_DefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleAdmin, PermSetupWrite, true},
		{RoleInstitution, PermSetupWrite, true},
		{RoleExamAdmin, PermExamImport, true},
		{RoleExamAdmin, PermSetupWrite, false},
		{RoleSupporter, PermQuizSearch, true},
		{RoleSupporter, PermRestrict, false},
		{"", PermQuizSearch, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !c.All(RoleExamAdmin, PermRestrict, PermTest) || c.Any(RoleSupporter, PermRestrict, PermTest) {
		t.Fatalf("unexpected Any/All result")
	}
}

func TestRequire(t *testing.T) {
	h := Require(PermRestrict)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{
		RoleExamAdmin: http.StatusNoContent,
		RoleSupporter: http.StatusForbidden,
		"":            http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			req = req.WithContext(WithRole(req.Context(), role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: got %d want %d", role, rec.Code, want)
		}
	}
}
