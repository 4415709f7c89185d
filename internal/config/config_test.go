package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func write(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wizard.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
database:
  dsn: ":memory:"
gateway:
  cloud_url: https://api.openai.com/v1
  cloud_key: sk-test
  daily_budget_usd: 2.5
sync:
  providers:
    - key: jira
      base_url: https://acme.atlassian.net
    - key: slack
      enabled: false
      options:
        channel: C123
`
	cfg, err := Load(write(t, yaml))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Gateway.DailyBudget != 2.5 {
		t.Errorf("daily budget = %v", cfg.Gateway.DailyBudget)
	}
	if len(cfg.Sync.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(cfg.Sync.Providers))
	}
	if !cfg.Sync.Providers[0].IsEnabled() || cfg.Sync.Providers[1].IsEnabled() {
		t.Error("enabled flags wrong")
	}
	if cfg.Sync.Providers[1].Options["channel"] != "C123" {
		t.Errorf("options = %v", cfg.Sync.Providers[1].Options)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(write(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q", cfg.Server.Addr)
	}
	if cfg.Gateway.GeneralModel != "llama3.2" || cfg.Gateway.CodeModel != "qwen2.5-coder" {
		t.Errorf("default models = %+v", cfg.Gateway)
	}
	if !cfg.Policy.CloudEnabled || cfg.Policy.LocalOnly {
		t.Errorf("default policy = %+v", cfg.Policy)
	}
	if cfg.Sync.DebounceSeconds != 30 || cfg.Sync.BatchSize != 50 {
		t.Errorf("default sync = %+v", cfg.Sync)
	}
	if cfg.Pairing.CodeTTL != 5*time.Minute {
		t.Errorf("default code ttl = %v", cfg.Pairing.CodeTTL)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_CLOUD_KEY", "sk-secret-123")

	cfg, err := Load(write(t, "gateway:\n  cloud_key: ${TEST_CLOUD_KEY}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.CloudKey != "sk-secret-123" {
		t.Errorf("cloud key = %q", cfg.Gateway.CloudKey)
	}

	// Unset vars are left untouched so the failure is visible downstream.
	result := expandEnv([]byte("key: ${WIZARD_TEST_UNSET_VAR}"))
	if string(result) != "key: ${WIZARD_TEST_UNSET_VAR}" {
		t.Errorf("expandEnv = %q", string(result))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WIZARD_LOCAL_ONLY", "true")
	t.Setenv("WIZARD_KEY", "sk-from-env")
	t.Setenv("VAULT_ROOT", "/data/vault")

	cfg, err := Load(write(t, "policy:\n  cloud_enabled: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Policy.LocalOnly || cfg.Policy.CloudEnabled {
		t.Errorf("WIZARD_LOCAL_ONLY must win: %+v", cfg.Policy)
	}
	if cfg.Gateway.CloudKey != "sk-from-env" {
		t.Errorf("cloud key = %q", cfg.Gateway.CloudKey)
	}
	if cfg.Database.DSN != filepath.Join("/data/vault", ".wizard", "wizard.db") {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
}

func TestListenAddrLocalOnly(t *testing.T) {
	t.Setenv("WIZARD_LOCAL_ONLY", "1")

	cfg, err := Load(write(t, "server:\n  addr: \":8080\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("listen addr = %q, want loopback bind", got)
	}

	// An explicit non-loopback bind is overridden too.
	cfg.Server.Addr = "0.0.0.0:9090"
	if got := cfg.ListenAddr(); got != "127.0.0.1:9090" {
		t.Errorf("listen addr = %q, want 127.0.0.1:9090", got)
	}
	cfg.Server.Addr = "192.168.1.5:9090"
	if got := cfg.ListenAddr(); got != "127.0.0.1:9090" {
		t.Errorf("listen addr = %q, want 127.0.0.1:9090", got)
	}

	// Already-loopback binds pass through unchanged.
	cfg.Server.Addr = "localhost:7070"
	if got := cfg.ListenAddr(); got != "localhost:7070" {
		t.Errorf("listen addr = %q", got)
	}
}

func TestListenAddrDefault(t *testing.T) {
	t.Parallel()
	cfg := defaults()
	if got := cfg.ListenAddr(); got != ":8080" {
		t.Errorf("listen addr = %q, want wildcard bind when local-only is off", got)
	}
}

func TestEnvDoesNotOverrideExplicit(t *testing.T) {
	t.Setenv("WIZARD_KEY", "sk-from-env")
	t.Setenv("VAULT_ROOT", "/data/vault")

	cfg, err := Load(write(t, "gateway:\n  cloud_key: sk-explicit\ndatabase:\n  dsn: /tmp/other.db\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.CloudKey != "sk-explicit" {
		t.Errorf("explicit cloud key lost: %q", cfg.Gateway.CloudKey)
	}
	if cfg.Database.DSN != "/tmp/other.db" {
		t.Errorf("explicit dsn lost: %q", cfg.Database.DSN)
	}
}

func TestWatcherReload(t *testing.T) {
	t.Parallel()

	path := write(t, "server:\n  addr: \":8080\"\n")
	w, err := NewWatcher(path, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if w.Current().Server.Addr != ":8080" {
		t.Fatalf("initial addr = %q", w.Current().Server.Addr)
	}

	if err := os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.reload()
	if w.Current().Server.Addr != ":9999" {
		t.Errorf("reloaded addr = %q", w.Current().Server.Addr)
	}

	// A broken file keeps the previous snapshot.
	if err := os.WriteFile(path, []byte(":\nnot yaml ["), 0o644); err != nil {
		t.Fatal(err)
	}
	w.reload()
	if w.Current().Server.Addr != ":9999" {
		t.Errorf("bad reload replaced snapshot: %q", w.Current().Server.Addr)
	}
}
