package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/noteapi/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.App.HTTP.Address(); got != "127.0.0.1:3000" {
		t.Errorf("Address = %q", got)
	}
	if uid, gid := cfg.Vault.Owner(); uid != -1 || gid != -1 {
		t.Errorf("Owner = %d,%d, want -1,-1", uid, gid)
	}
	wc := cfg.Watcher.Watcher()
	if wc.FlushInterval != time.Second || wc.IgnoredSample != 50 {
		t.Errorf("watcher defaults = %v/%d, want 1s/50", wc.FlushInterval, wc.IgnoredSample)
	}
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log format", func(c *Config) { c.App.LogFormat = "xml" }, "LogFormat"},
		{"port", func(c *Config) { c.App.HTTP.Port = 70000 }, "Port"},
		{"vault path", func(c *Config) { c.Vault.Path = "" }, "vault: Path"},
		{"file mode", func(c *Config) { c.Vault.FileMode = 0o1777 }, "FileMode"},
		{"owner pair", func(c *Config) { uid := 1000; c.Vault.FileUID = &uid }, "set together"},
		{"engine", func(c *Config) { c.Index.Engine = "elastic" }, "Engine"},
		{"index path", func(c *Config) { c.Index.Path = "" }, "index: Path"},
		{"chunk size", func(c *Config) { c.Index.ChunkSize = 0 }, "ChunkSize"},
		{"flush interval", func(c *Config) { c.Watcher.FlushInterval = 0 }, "FlushInterval"},
		{"ignore glob", func(c *Config) { c.Watcher.Ignore = []string{"a/[b"} }, "invalid pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_MemoryEngineNeedsNoPath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Index.Engine = "memory"
	cfg.Index.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory engine without path: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("NOTEAPI_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  log_format: text
  http:
    port: 9090
vault:
  path: /srv/vault
  trash_enabled: true
  file_mode: "0600"
  file_uid: 0
  file_gid: 0
index:
  engine: sqlite
  path: /srv/data/notes.db
  probe_interval: 5s
watcher:
  flush_interval: 250ms
  ignore: ["drafts/**", "attachments/**"]
auth:
  mode: token
  token: ${NOTEAPI_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.LogFormat != LogFormatText {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.App.HTTP.Address() != "127.0.0.1:9090" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if !cfg.Vault.TrashEnabled || cfg.Vault.FileMode != 0o600 {
		t.Errorf("vault = %+v", cfg.Vault)
	}
	if uid, gid := cfg.Vault.Owner(); uid != 0 || gid != 0 {
		t.Errorf("owner = %d,%d, want 0,0", uid, gid)
	}
	if cfg.Index.Engine != "sqlite" || cfg.Index.ProbeInterval != 5*time.Second || cfg.Index.ChunkSize != 200 {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Watcher.FlushInterval != 250*time.Millisecond || len(cfg.Watcher.Ignore) != 2 || !cfg.Watcher.Enabled {
		t.Errorf("watcher = %+v", cfg.Watcher)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}

func TestFileMode_Text(t *testing.T) {
	var m FileMode
	for in, want := range map[string]FileMode{"0644": 0o644, "0o755": 0o755, "600": 0o600} {
		if err := m.UnmarshalText([]byte(in)); err != nil || m != want {
			t.Errorf("UnmarshalText(%q) = %o, %v; want %o", in, m, err, want)
		}
	}
	if err := m.UnmarshalText([]byte("rw-r--r--")); err == nil {
		t.Error("expected error for symbolic mode")
	}
	if out, _ := FileMode(0o640).MarshalText(); string(out) != "0640" {
		t.Errorf("MarshalText = %q", out)
	}
}
