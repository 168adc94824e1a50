package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"MODE", "HTTP_ADDR", "PAGE_SIZE_MAX", "LMS_HTTP_TIMEOUT", "OPENEDX_TOKEN_PATHS", "CONFIG_FILE"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Mode != ModeOffline || c.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.PageSizeDefault != 10 || c.PageSizeMax != 500 {
		t.Fatalf("unexpected page sizes %d/%d", c.PageSizeDefault, c.PageSizeMax)
	}
	if c.LMSHTTPTimeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", c.LMSHTTPTimeout)
	}
	if diff := cmp.Diff([]string{"/oauth2/access_token"}, c.OpenEdxTokenPaths); diff != "" {
		t.Fatalf("token paths (-want +got):\n%s", diff)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sebserver.yaml")
	err := os.WriteFile(path, []byte(`
HTTP_ADDR: ":9090"
PAGE_SIZE_MAX: 50
lms-http-timeout: 5s
OPENEDX_TOKEN_PATHS:
  - /oauth2/access_token
  - /oauth/token
JSON_LOGGING_ENABLED: true
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PAGE_SIZE_MAX", "25")
	t.Setenv("LMS_HTTP_TIMEOUT", "")
	t.Setenv("OPENEDX_TOKEN_PATHS", "")
	t.Setenv("JSON_LOGGING_ENABLED", "")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr != ":9090" {
		t.Fatalf("file value not applied: %q", c.HTTPAddr)
	}
	if c.PageSizeMax != 25 {
		t.Fatalf("env must win over file, got %d", c.PageSizeMax)
	}
	if c.LMSHTTPTimeout != 5*time.Second || !c.JSONLogging {
		t.Fatalf("unexpected %+v", c)
	}
	if diff := cmp.Diff([]string{"/oauth2/access_token", "/oauth/token"}, c.OpenEdxTokenPaths); diff != "" {
		t.Fatalf("token paths (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvDuration_Seconds(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "15")
	if got := FromEnv().RequestTimeout; got != 15*time.Second {
		t.Fatalf("got %s", got)
	}
}
