package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at empty temp dirs so that
// no real config or .env.local is picked up
func isolate(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaultYAMLFile(t *testing.T) {
	home := isolate(t)

	dir := filepath.Join(home, ".config", "megamerge")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
batch_size: 4
identity_substrings: [key]
merge_timeout: 30s
delete_on_attach_failure: true
`), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.BatchSize)
	assert.Equal(t, []string{"key"}, cfg.IdentitySubstrings)
	assert.Equal(t, 30*time.Second, cfg.MergeTimeout)
	assert.Equal(t, 10*time.Second, cfg.NormalizeTimeout)
	assert.True(t, cfg.DeleteOnAttachFailure)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	home := isolate(t)

	_, err := Load(filepath.Join(home, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: [oops"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 4\nlog_level: warn\n"), 0644))

	t.Setenv("MEGAMERGE_BATCH_SIZE", "7")
	t.Setenv("MEGAMERGE_EXCLUDED_TABLES", "sqlite_, _tmp ,")
	t.Setenv("MEGAMERGE_NORMALIZE_TIMEOUT", "2s")
	t.Setenv("MEGAMERGE_REPORT_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, []string{"sqlite_", "_tmp"}, cfg.ExcludedTableSubstrings)
	assert.Equal(t, 2*time.Second, cfg.NormalizeTimeout)
	assert.Equal(t, "json", cfg.ReportFormat)
}

func TestLoadInvalidEnv(t *testing.T) {
	tests := map[string]string{
		"MEGAMERGE_BATCH_SIZE":               "ten",
		"MEGAMERGE_MERGE_TIMEOUT":            "soon",
		"MEGAMERGE_DELETE_ON_ATTACH_FAILURE": "maybe",
	}

	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			t.Setenv(name, value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadReportURLFromFile(t *testing.T) {
	home := isolate(t)
	secret := filepath.Join(home, "url")
	require.NoError(t, os.WriteFile(secret, []byte("postgres://u:p@db/report\n"), 0600))
	t.Setenv("MEGAMERGE_REPORT_URL_FILE", secret)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/report", cfg.ReportURL)
}

func TestLoadEnvLocal(t *testing.T) {
	home := isolate(t)
	child := filepath.Join(home, "work", "run")
	require.NoError(t, os.MkdirAll(child, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "work", ".env.local"), []byte("MEGAMERGE_LOG_FORMAT=json\n"), 0644))
	require.NoError(t, os.Chdir(child))

	// godotenv does not override variables that are already set, and
	// t.Setenv restores the original value after the test
	t.Setenv("MEGAMERGE_LOG_FORMAT", "")
	require.NoError(t, os.Unsetenv("MEGAMERGE_LOG_FORMAT"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestFindEnvLocal_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "child")
	if err := os.Mkdir(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(envPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_StopsAtHome(t *testing.T) {
	tmpDir := t.TempDir()
	homeDir := filepath.Join(tmpDir, "home")
	childDir := filepath.Join(homeDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	// Above home, must not be found
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=outside"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOME", homeDir)
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	if result := findEnvLocal(); result != "" {
		t.Errorf("expected no .env.local above home, got %s", result)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"batch size above attachment limit", func(c *Config) { c.BatchSize = 12 }},
		{"no identity substrings", func(c *Config) { c.IdentitySubstrings = nil }},
		{"empty identity substring", func(c *Config) { c.IdentitySubstrings = []string{"id", ""} }},
		{"zero normalize timeout", func(c *Config) { c.NormalizeTimeout = 0 }},
		{"negative merge timeout", func(c *Config) { c.MergeTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestFilter(t *testing.T) {
	cfg := Default()
	f := cfg.Filter()

	f.IdentitySubstrings[0] = "changed"
	assert.Equal(t, "id", cfg.IdentitySubstrings[0], "Filter must copy its slices")
	assert.True(t, cfg.Filter().IsIdentity("session_id"))
	assert.False(t, cfg.Filter().KeepTable("sqlite_sequence"))
}
