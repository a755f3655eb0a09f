package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Source != "esa" {
		t.Errorf("expected default source 'esa', got %q", cfg.Source)
	}

	if cfg.OrbitType != "precise" {
		t.Errorf("expected default orbit type 'precise', got %q", cfg.OrbitType)
	}

	if cfg.Workers != 20 {
		t.Errorf("expected default workers 20, got %d", cfg.Workers)
	}

	if cfg.HTTP.Timeout != 60*time.Second {
		t.Errorf("expected timeout 60s, got %v", cfg.HTTP.Timeout)
	}

	if cfg.Scihub.User != GuestUser {
		t.Errorf("expected guest user, got %q", cfg.Scihub.User)
	}

	if !cfg.Catalog.Enabled {
		t.Error("expected catalog.enabled to be true")
	}

	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Watch.Debounce)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
save_dir: /data/orbits
source: asf
orbit_type: restituted
workers: 4
http:
  timeout: 2m
  retries: 5
scihub:
  user: alice
  password: secret
catalog:
  enabled: false
watch:
  debounce: 500ms
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.SaveDir != "/data/orbits" {
		t.Errorf("expected save_dir '/data/orbits', got %q", cfg.SaveDir)
	}

	if cfg.Source != "asf" {
		t.Errorf("expected source 'asf', got %q", cfg.Source)
	}

	if cfg.OrbitType != "restituted" {
		t.Errorf("expected orbit_type 'restituted', got %q", cfg.OrbitType)
	}

	if cfg.Workers != 4 {
		t.Errorf("expected workers 4, got %d", cfg.Workers)
	}

	if cfg.HTTP.Timeout != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %v", cfg.HTTP.Timeout)
	}

	if cfg.HTTP.Retries != 5 {
		t.Errorf("expected retries 5, got %d", cfg.HTTP.Retries)
	}

	if cfg.Scihub.User != "alice" || cfg.Scihub.Password != "secret" {
		t.Errorf("unexpected scihub credentials %q/%q", cfg.Scihub.User, cfg.Scihub.Password)
	}

	if cfg.Catalog.Enabled {
		t.Error("expected catalog.enabled to be false")
	}

	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("expected debounce 500ms, got %v", cfg.Watch.Debounce)
	}

	// Unset keys keep their defaults.
	if cfg.ESA.BaseURL != Default().ESA.BaseURL {
		t.Errorf("expected default esa.base_url, got %q", cfg.ESA.BaseURL)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadPrecedence(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("SCIHUB_USER", "")
	t.Setenv("SCIHUB_PASSWORD", "")
	t.Setenv("EOF_SCIHUB_USER", "")
	t.Setenv("EOF_SCIHUB_PASSWORD", "")

	userDir := filepath.Join(xdg, "eof")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	userConfig := "source: asf\nworkers: 4\nsave_dir: /from/user\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(userConfig), 0644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, ".eof.yaml"), []byte("workers: 6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(project, "scenes")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	t.Setenv("EOF_SAVE_DIR", "/from/env")
	t.Setenv("SCIHUB_USER", "carol")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source != "asf" {
		t.Errorf("expected user config source 'asf', got %q", cfg.Source)
	}
	if cfg.Workers != 6 {
		t.Errorf("expected project override workers 6, got %d", cfg.Workers)
	}
	if cfg.SaveDir != "/from/env" {
		t.Errorf("expected env save_dir '/from/env', got %q", cfg.SaveDir)
	}
	if cfg.Scihub.User != "carol" {
		t.Errorf("expected SCIHUB_USER to apply, got %q", cfg.Scihub.User)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Source = "scihub"
	cfg.Workers = 3
	cfg.HTTP.Timeout = 45 * time.Second
	cfg.Catalog.Enabled = false

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Source != "scihub" || loaded.Workers != 3 {
		t.Errorf("unexpected round trip: source=%q workers=%d", loaded.Source, loaded.Workers)
	}
	if loaded.HTTP.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", loaded.HTTP.Timeout)
	}
	if loaded.Catalog.Enabled {
		t.Error("expected catalog.enabled to be false")
	}
}

func TestSaveFromLoadUserKeepsOverridesOut(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("SCIHUB_USER", "")
	t.Setenv("EOF_SCIHUB_USER", "")
	t.Setenv("EOF_SCIHUB_PASSWORD", "")
	t.Setenv("SCIHUB_PASSWORD", "s3cret-from-env")
	t.Setenv("ORBIT_ROOT", "/expanded")

	userDir := filepath.Join(xdg, "eof")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte("save_dir: ${ORBIT_ROOT}/user\n"), 0644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, ".eof.yaml"), []byte("save_dir: /project/only/orbits\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(project)

	effective, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if effective.SaveDir != "/project/only/orbits" || effective.Scihub.Password != "s3cret-from-env" {
		t.Fatalf("overrides not applied: save_dir=%q", effective.SaveDir)
	}

	cfg, err := LoadUser()
	if err != nil {
		t.Fatalf("LoadUser failed: %v", err)
	}
	if err := Set(cfg, "source", "asf"); err != nil {
		t.Fatal(err)
	}
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(GetUserConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	saved := string(data)
	for _, leaked := range []string{"s3cret-from-env", "/project/only/orbits", "/expanded"} {
		if strings.Contains(saved, leaked) {
			t.Errorf("user config contains %q:\n%s", leaked, saved)
		}
	}
	if !strings.Contains(saved, "${ORBIT_ROOT}/user") {
		t.Errorf("expected unexpanded save_dir, got:\n%s", saved)
	}
	if !strings.Contains(saved, "source: asf") {
		t.Errorf("expected source: asf, got:\n%s", saved)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := filepath.Join("/custom/config", "eof")
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}
