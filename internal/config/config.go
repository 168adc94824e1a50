package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	// master secret of the credential store; LMS setups with client
	// credentials cannot be saved or used without it
	CredentialSecret string

	AuthHMACSecret string
	AdminUser      string
	AdminPassHash  string // bcrypt

	PageSizeDefault int
	PageSizeMax     int

	LMSHTTPTimeout    time.Duration
	RequestTimeout    time.Duration
	OpenEdxTokenPaths []string
	MoodleService     string

	CORSOrigins []string

	LogLevel     string
	JSONLogging  bool
	LogSkipPaths []string
}

// source resolves keys from the environment first, then from an optional file.
type source struct {
	file map[string]string
}

func (s source) get(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return s.file[k]
}

// FromEnv reads the configuration from the environment only.
func FromEnv() Config {
	return source{}.config()
}

// Load reads the YAML file at path (if any) and overlays the environment on
// top of it. Keys in the file use the environment variable names.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	src := source{}
	if path != "" {
		m, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = m
	}
	return src.config(), nil
}

func readFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(k))
		switch vv := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(vv))
			for _, p := range vv {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(vv)
		}
	}
	return out, nil
}

func (s source) config() Config {
	mode := Mode(s.envOr("MODE", string(ModeOffline)))
	pub := s.get("PUBLIC_URL")
	defOrigins := "http://localhost:3000,http://localhost:3010"
	if mode == ModeOnline && pub != "" {
		defOrigins = strings.TrimSuffix(pub, "/")
	}
	return Config{
		Mode:      mode,
		HTTPAddr:  s.envOr("HTTP_ADDR", ":8080"),
		PublicURL: pub,

		DBDriver: s.envOr("DB_DRIVER", "sqlite"),
		DBDSN:    s.get("DB_DSN"),

		CredentialSecret: s.get("CREDENTIAL_SECRET"),

		AuthHMACSecret: s.envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		AdminUser:      s.envOr("ADMIN_USER", "admin"),
		AdminPassHash:  s.get("ADMIN_PASS_HASH"),

		PageSizeDefault: s.envInt("PAGE_SIZE_DEFAULT", 10),
		PageSizeMax:     s.envInt("PAGE_SIZE_MAX", 500),

		LMSHTTPTimeout:    s.envDuration("LMS_HTTP_TIMEOUT", 30*time.Second),
		RequestTimeout:    s.envDuration("REQUEST_TIMEOUT", 60*time.Second),
		OpenEdxTokenPaths: s.csvOr("OPENEDX_TOKEN_PATHS", "/oauth2/access_token"),
		MoodleService:     s.envOr("MOODLE_SERVICE", "moodle_mobile_app"),

		CORSOrigins: s.csvOr("CORS_ORIGINS", defOrigins),

		LogLevel:     s.envOr("LOG_LEVEL", "info"),
		JSONLogging:  s.envBool("JSON_LOGGING_ENABLED", mode == ModeOnline),
		LogSkipPaths: s.csvOr("LOG_SKIP_PATHS", "/healthz"),
	}
}

func (s source) envOr(k, def string) string {
	v := s.get(k)
	if v == "" {
		return def
	}
	return v
}

func (s source) envBool(k string, def bool) bool {
	switch strings.ToLower(s.get(k)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

func (s source) envInt(k string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s.get(k)))
	if err != nil {
		return def
	}
	return v
}

func (s source) envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(s.get(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func (s source) csvOr(k, def string) []string {
	v := s.envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p := strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
