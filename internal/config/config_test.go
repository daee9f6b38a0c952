package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("EMLX_HOME", tmpDir)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.Data.DataDir != tmpDir {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, tmpDir)
	}
	if want := filepath.Join(tmpDir, "emlx.db"); cfg.DatabasePath() != want {
		t.Errorf("DatabasePath() = %q, want %q", cfg.DatabasePath(), want)
	}
	if cfg.Scan.MailDir != DefaultMailDir() {
		t.Errorf("Scan.MailDir = %q, want %q", cfg.Scan.MailDir, DefaultMailDir())
	}
	if cfg.Scan.Workers != 0 || cfg.Scan.MetadataOnly {
		t.Errorf("Scan = %+v, want zero workers and full parsing", cfg.Scan)
	}
	if cfg.MaxFileBytes() != 128<<20 {
		t.Errorf("MaxFileBytes() = %d, want %d", cfg.MaxFileBytes(), 128<<20)
	}
	if cfg.Export.Format != "maildir" {
		t.Errorf("Export.Format = %q, want maildir", cfg.Export.Format)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("EMLX_HOME", tmpDir)
	mailDir := t.TempDir()

	writeConfig(t, tmpDir, `
[data]
database_path = "index/mail.db"

[scan]
mail_dir = "`+filepath.ToSlash(mailDir)+`"
workers = 6
metadata_only = true
max_file_mb = -1
files_per_second = 250.5

[export]
format = "mbox"
output_dir = "out"
`)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(tmpDir, "index", "mail.db"); cfg.DatabasePath() != want {
		t.Errorf("DatabasePath() = %q, want %q", cfg.DatabasePath(), want)
	}
	if filepath.Clean(cfg.Scan.MailDir) != filepath.Clean(mailDir) {
		t.Errorf("Scan.MailDir = %q, want %q", cfg.Scan.MailDir, mailDir)
	}
	if cfg.Scan.Workers != 6 || !cfg.Scan.MetadataOnly || cfg.Scan.FilesPerSecond != 250.5 {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if cfg.MaxFileBytes() != -1 {
		t.Errorf("MaxFileBytes() = %d, want -1", cfg.MaxFileBytes())
	}
	if cfg.Export.Format != "mbox" || cfg.Export.OutputDir != filepath.Join(tmpDir, "out") {
		t.Errorf("Export = %+v", cfg.Export)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := map[string]string{
		"negative workers": "[scan]\nworkers = -2\n",
		"negative rate":    "[scan]\nfiles_per_second = -1.0\n",
		"wrong type":       "[scan]\nworkers = \"many\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, content)
			if _, err := Load("", dir); err == nil {
				t.Error("Load succeeded on invalid config")
			}
		})
	}
}

func TestLoadUnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[scan]\nworkers = 2\nlegacy_option = true\n\n[server]\nport = 1\n")

	cfg, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() should ignore unknown keys, got error: %v", err)
	}
	if cfg.Scan.Workers != 2 {
		t.Errorf("Scan.Workers = %d, want 2", cfg.Scan.Workers)
	}
}

func TestLoadExplicitPathNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.toml", "")
	if err == nil {
		t.Fatal("Load with explicit nonexistent path should return error")
	}
	if got := err.Error(); !strings.Contains(got, "config file not found") {
		t.Errorf("error = %q, want it to contain %q", got, "config file not found")
	}
}

func TestLoadExplicitPathDerivedHomeDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, "[scan]\nworkers = 3\n")

	cfg, err := Load(configPath, "")
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", configPath, err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.Data.DataDir != tmpDir {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, tmpDir)
	}
	if cfg.Scan.Workers != 3 {
		t.Errorf("Scan.Workers = %d, want 3", cfg.Scan.Workers)
	}
	if cfg.ConfigFilePath() != configPath {
		t.Errorf("ConfigFilePath() = %q, want %q", cfg.ConfigFilePath(), configPath)
	}
}

func TestLoadExplicitPathRelativePaths(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, "[data]\ndata_dir = \"data\"\n")

	cfg, err := Load(configPath, "")
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", configPath, err)
	}
	if want := filepath.Join(tmpDir, "data"); cfg.Data.DataDir != want {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, want)
	}
	if want := filepath.Join(tmpDir, "data", "emlx.db"); cfg.DatabasePath() != want {
		t.Errorf("DatabasePath() = %q, want %q", cfg.DatabasePath(), want)
	}
}

func TestLoadWithHomeDir(t *testing.T) {
	t.Setenv("EMLX_HOME", t.TempDir())
	homeDir := t.TempDir()
	writeConfig(t, homeDir, "[export]\nformat = \"mbox\"\n")

	cfg, err := Load("", homeDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HomeDir != homeDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, homeDir)
	}
	if cfg.Export.Format != "mbox" {
		t.Errorf("Export.Format = %q, want mbox", cfg.Export.Format)
	}
}

func TestLoadWithHomeDirExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get user home dir: %v", err)
	}

	cfg, err := Load("", "~/custom-emlx")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	expected := filepath.Join(home, "custom-emlx")
	if cfg.HomeDir != expected || cfg.Data.DataDir != expected {
		t.Errorf("HomeDir = %q, DataDir = %q, want %q", cfg.HomeDir, cfg.Data.DataDir, expected)
	}
}

func TestLoadBackslashErrorHint(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid escape", "[data]\ndata_dir = \"C:\\Games\\emlx\"\n"},
		{"unicode escape", "[data]\ndata_dir = \"C:\\Users\\me\\emlx\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)

			_, err := Load("", dir)
			if err == nil {
				t.Fatal("Load should fail on TOML backslash error")
			}
			for _, want := range []string{"hint:", "forward slashes", "single quotes"} {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should contain %q, got: %s", want, err)
				}
			}
		})
	}
}

func TestDefaultHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get user home dir: %v", err)
	}

	t.Setenv("EMLX_HOME", "~/.emlx-test")
	if got, want := DefaultHome(), filepath.Join(home, ".emlx-test"); got != want {
		t.Errorf("DefaultHome() = %q, want %q", got, want)
	}

	t.Setenv("EMLX_HOME", "")
	if got, want := DefaultHome(), filepath.Join(home, ".emlx"); got != want {
		t.Errorf("DefaultHome() = %q, want %q", got, want)
	}
}

func TestNewDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("EMLX_HOME", tmpDir)

	cfg := NewDefaultConfig()
	if cfg.HomeDir != tmpDir || cfg.Data.DataDir != tmpDir {
		t.Errorf("HomeDir = %q, DataDir = %q, want %q", cfg.HomeDir, cfg.Data.DataDir, tmpDir)
	}
	if cfg.ConfigFilePath() != filepath.Join(tmpDir, "config.toml") {
		t.Errorf("ConfigFilePath() = %q", cfg.ConfigFilePath())
	}
}

func TestEnsureHomeDir(t *testing.T) {
	base := t.TempDir()
	cfg, err := Load("", filepath.Join(base, "home"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Data.DataDir = filepath.Join(base, "data", "nested")

	if err := cfg.EnsureHomeDir(); err != nil {
		t.Fatalf("EnsureHomeDir: %v", err)
	}
	for _, dir := range []string{cfg.HomeDir, cfg.Data.DataDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("%s not created: %v", dir, err)
		}
		if runtime.GOOS != "windows" && info.Mode().Perm()&^0o700 != 0 {
			t.Errorf("%s perm = %04o, want at most 0700", dir, info.Mode().Perm())
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get user home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
		unixOnly bool
	}{
		{"empty string", "", "", false},
		{"just tilde", "~", home, false},
		{"tilde with path", "~/foo", filepath.Join(home, "foo"), false},
		{"tilde with trailing slash", "~/", home, false},
		{"tilde user not expanded", "~user", "~user", false},
		{"absolute path unchanged", "/var/mail", "/var/mail", true},
		{"relative path unchanged", "relative/path", "relative/path", false},
		{"tilde in middle not expanded", "/home/~user/foo", "/home/~user/foo", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.unixOnly && runtime.GOOS == "windows" {
				t.Skip("skipping Unix-specific path test on Windows")
			}
			if got := expandPath(tt.input); got != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
