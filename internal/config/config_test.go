package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func parse(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(parse(t))
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	if cfg.DB != "studydeck.db" || cfg.Addr != ":8080" || cfg.LogLevel != "info" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.Review.DefaultLimit != 20 || cfg.Review.MaxRetries != 3 {
		t.Errorf("Unexpected review defaults %+v", cfg.Review)
	}
	if cfg.RateLimit.PerMinute != 120 || cfg.RateLimit.Burst != 20 {
		t.Errorf("Unexpected rate limit defaults %+v", cfg.RateLimit)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"*"}) {
		t.Errorf("Unexpected CORS defaults %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studydeck.yaml")
	yaml := `db: from-file.db
addr: ":9000"
review:
  default-limit: 15
  max-retries: 5
cors:
  allowed-origins:
    - https://file.example
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STUDYDECK_ADDR", ":9100")
	t.Setenv("STUDYDECK_REVIEW__MAX_RETRIES", "7")
	t.Setenv("STUDYDECK_REPOS_DIR", "/var/lib/studydeck/repos")
	t.Setenv("STUDYDECK_CORS__ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(parse(t, "--config", path, "--review.default-limit", "30"))
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}

	testCases := []struct {
		name     string
		got      any
		expected any
	}{
		{"file beats flag default", cfg.DB, "from-file.db"},
		{"env beats file", cfg.Addr, ":9100"},
		{"env nested key", cfg.Review.MaxRetries, 7},
		{"env dashed key", cfg.ReposDir, "/var/lib/studydeck/repos"},
		{"explicit flag beats file", cfg.Review.DefaultLimit, 30},
		{"env list", cfg.CORS.AllowedOrigins, []string{"https://a.example", "https://b.example"}},
		{"flag default fills the rest", cfg.LogLevel, "info"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if !reflect.DeepEqual(tc.got, tc.expected) {
				t.Errorf("Expected %v, but got %v", tc.expected, tc.got)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown log level", []string{"--log-level", "verbose"}},
		{"zero session limit", []string{"--review.default-limit", "0"}},
		{"negative rate", []string{"--ratelimit.per-minute", "-1"}},
		{"missing config file", []string{"--config", "/nonexistent/studydeck.yaml"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(parse(t, tc.args...)); err == nil {
				t.Error("Expected an error, but got nil")
			}
		})
	}
}
