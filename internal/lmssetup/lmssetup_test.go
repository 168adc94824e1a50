package lmssetup_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/db"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/lmssetup"
)

func newCreds(t *testing.T) *credentials.Store {
	t.Helper()
	c, err := credentials.NewStore("lmssetup-test-secret")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	return c
}

func stores(t *testing.T) map[string]lmssetup.Store {
	t.Helper()
	creds := newCreds(t)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return map[string]lmssetup.Store{
		"memory": lmssetup.NewMemStore(creds),
		"sql":    lmssetup.NewSQLStore(conn, creds),
	}
}

func edxInput(name string) lmssetup.Input {
	return lmssetup.Input{
		InstitutionID: 1,
		Name:          name,
		Type:          lms.TypeOpenEdx,
		URL:           "https://edx.example.org/",
		ClientID:      "client",
		Secret:        "secret",
		Active:        true,
	}
}

func TestStore_CreateSealsCredentials(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := st.Create(ctx, edxInput("edx"))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if s.ID == 0 || s.Version != 1 || !s.Active {
				t.Fatalf("unexpected setup %+v", s)
			}
			if s.URL != "https://edx.example.org" {
				t.Fatalf("expected trailing slash trimmed, got %q", s.URL)
			}
			if !s.Credentials.HasClientID() || !s.Credentials.HasSecret() || s.Credentials.HasAccessToken() {
				t.Fatalf("unexpected credential presence %+v", s.Credentials)
			}
			if s.Credentials.Secret == "secret" {
				t.Fatalf("secret stored in plaintext")
			}

			got, err := st.Get(ctx, s.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != s {
				t.Fatalf("get returned %+v, want %+v", got, s)
			}
		})
	}
}

func TestStore_Validation(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := st.Create(ctx, edxInput("edx")); err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := st.Create(ctx, edxInput("edx")); !errors.Is(err, lmssetup.ErrDuplicateName) {
				t.Fatalf("expected ErrDuplicateName, got %v", err)
			}
			bad := edxInput("bad url")
			bad.URL = "not a url"
			if _, err := st.Create(ctx, bad); !lms.IsKind(err, lms.KindConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			noType := edxInput("no type")
			noType.Type = ""
			if _, err := st.Create(ctx, noType); !lms.IsKind(err, lms.KindConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if _, err := st.Get(ctx, 999); !lms.IsKind(err, lms.KindNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestStore_SaveKeepsCredentialsAndBumpsVersion(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := st.Create(ctx, edxInput("edx"))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			upd := edxInput("edx renamed")
			upd.ClientID, upd.Secret = "", ""
			saved, err := st.Save(ctx, s.ID, upd)
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if saved.Version != 2 || saved.Name != "edx renamed" {
				t.Fatalf("unexpected saved setup %+v", saved)
			}
			if saved.Credentials != s.Credentials {
				t.Fatalf("empty credential fields must keep the stored values")
			}

			upd.Secret = "rotated"
			saved, err = st.Save(ctx, s.ID, upd)
			if err != nil {
				t.Fatalf("save rotated: %v", err)
			}
			if saved.Credentials.ClientID != s.Credentials.ClientID {
				t.Fatalf("client id must be kept when only the secret rotates")
			}
			if saved.Credentials.Secret == s.Credentials.Secret {
				t.Fatalf("secret must change")
			}
		})
	}
}

func TestStore_SetActiveAndAccessToken(t *testing.T) {
	creds := newCreds(t)
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := st.Create(ctx, edxInput("edx"))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			same, err := st.SetActive(ctx, s.ID, true)
			if err != nil || same.Version != s.Version {
				t.Fatalf("no-op activation must keep version: %+v %v", same, err)
			}
			off, err := st.SetActive(ctx, s.ID, false)
			if err != nil || off.Active || off.Version != s.Version+1 {
				t.Fatalf("deactivate: %+v %v", off, err)
			}

			if err := st.UpdateAccessToken(ctx, s.ID, []byte("tok-1")); err != nil {
				t.Fatalf("update token: %v", err)
			}
			got, err := st.Get(ctx, s.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Version != off.Version {
				t.Fatalf("token update must not bump version")
			}
			if !got.Credentials.HasAccessToken() {
				t.Fatalf("expected stored access token")
			}
			// a different store instance shares the master secret
			plain, err := creds.DecryptValue(got.Credentials.AccessToken)
			if err != nil || string(plain) != "tok-1" {
				t.Fatalf("decrypt token: %q %v", plain, err)
			}
			if err := st.UpdateAccessToken(ctx, 999, []byte("x")); !lms.IsKind(err, lms.KindNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestStore_ListFilters(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, _ := st.Create(ctx, edxInput("a"))
			b := edxInput("b")
			b.Active = false
			if _, err := st.Create(ctx, b); err != nil {
				t.Fatalf("create b: %v", err)
			}
			other := edxInput("c")
			other.InstitutionID = 2
			if _, err := st.Create(ctx, other); err != nil {
				t.Fatalf("create c: %v", err)
			}

			active := true
			got, err := st.List(ctx, lmssetup.Filter{InstitutionID: 1, Active: &active})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 1 || got[0].ID != a.ID {
				t.Fatalf("unexpected list %+v", got)
			}
			all, err := st.List(ctx, lmssetup.Filter{})
			if err != nil || len(all) != 3 {
				t.Fatalf("expected 3 setups, got %d (%v)", len(all), err)
			}
		})
	}
}
