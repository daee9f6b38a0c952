// Package config handles loading and managing emlx configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wesm/emlx/internal/fileutil"
)

// Config represents the emlx configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Scan   ScanConfig   `toml:"scan"`
	Export ExportConfig `toml:"export"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DataConfig holds index storage configuration.
type DataConfig struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
}

// ScanConfig holds defaults for scan and index runs.
type ScanConfig struct {
	MailDir        string  `toml:"mail_dir"`         // Apple Mail root (default ~/Library/Mail)
	Workers        int     `toml:"workers"`          // Parallel parsers; 0 uses GOMAXPROCS
	MetadataOnly   bool    `toml:"metadata_only"`    // Skip MIME parsing
	MaxFileMB      int64   `toml:"max_file_mb"`      // Skip larger files; negative disables
	FilesPerSecond float64 `toml:"files_per_second"` // Read rate limit; 0 is unlimited
}

// ExportConfig holds defaults for the export command.
type ExportConfig struct {
	Format    string `toml:"format"` // maildir or mbox
	OutputDir string `toml:"output_dir"`
}

// DefaultHome returns the default emlx home directory.
// Respects EMLX_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("EMLX_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".emlx"
	}
	return filepath.Join(home, ".emlx")
}

// DefaultMailDir returns the Apple Mail data directory of the current user.
func DefaultMailDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("Library", "Mail")
	}
	return filepath.Join(home, "Library", "Mail")
}

// NewDefaultConfig returns a configuration with default values rooted at
// DefaultHome.
func NewDefaultConfig() *Config {
	return newConfig(DefaultHome())
}

func newConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Scan: ScanConfig{
			MailDir:   DefaultMailDir(),
			MaxFileMB: 128,
		},
		Export: ExportConfig{
			Format: "maildir",
		},
		configPath: filepath.Join(homeDir, "config.toml"),
	}
}

// Load reads the configuration. An explicit path must exist; its
// directory becomes the home directory and relative paths in the file
// resolve against it. Otherwise homeDir (or DefaultHome when empty) is
// used and its config.toml is optional.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	if explicit {
		path = expandPath(path)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("stat config: %w", err)
		}
		homeDir = filepath.Dir(path)
	} else {
		if homeDir == "" {
			homeDir = DefaultHome()
		} else {
			homeDir = expandPath(homeDir)
		}
		path = filepath.Join(homeDir, "config.toml")
	}
	if abs, err := filepath.Abs(homeDir); err == nil {
		homeDir = abs
	}

	cfg := newConfig(homeDir)
	cfg.configPath = path

	if !explicit {
		// Config file is optional - use defaults if not present
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w%s", err, backslashHint(err))
	}

	cfg.Data.DataDir = cfg.resolve(cfg.Data.DataDir)
	cfg.Data.DatabasePath = cfg.resolve(cfg.Data.DatabasePath)
	cfg.Scan.MailDir = cfg.resolve(cfg.Scan.MailDir)
	cfg.Export.OutputDir = cfg.resolve(cfg.Export.OutputDir)

	if cfg.Scan.Workers < 0 {
		return nil, fmt.Errorf("config: scan.workers must be >= 0, got %d", cfg.Scan.Workers)
	}
	if cfg.Scan.FilesPerSecond < 0 {
		return nil, fmt.Errorf("config: scan.files_per_second must be >= 0, got %g", cfg.Scan.FilesPerSecond)
	}
	return cfg, nil
}

// resolve expands ~ and anchors relative paths at the home directory.
func (c *Config) resolve(p string) string {
	p = expandPath(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.HomeDir, p)
}

// backslashHint explains the usual cause of TOML escape errors: Windows
// paths in double-quoted strings.
func backslashHint(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return "\nhint: use forward slashes (C:/Users/me) or single quotes ('C:\\Users\\me') for paths"
	}
	return ""
}

// ConfigFilePath returns the config file that was loaded, or the default
// location when none was.
func (c *Config) ConfigFilePath() string {
	return c.configPath
}

// DatabasePath returns the path to the SQLite index.
func (c *Config) DatabasePath() string {
	if c.Data.DatabasePath != "" {
		return c.Data.DatabasePath
	}
	return filepath.Join(c.Data.DataDir, "emlx.db")
}

// MaxFileBytes converts Scan.MaxFileMB to bytes, keeping the sign.
func (c *Config) MaxFileBytes() int64 {
	if c.Scan.MaxFileMB < 0 {
		return -1
	}
	return c.Scan.MaxFileMB << 20
}

// EnsureHomeDir creates the home and data directories if needed.
func (c *Config) EnsureHomeDir() error {
	for _, dir := range []string{c.HomeDir, c.Data.DataDir} {
		if dir == "" {
			continue
		}
		if err := fileutil.MkdirPrivate(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// expandPath expands ~ to the user's home directory. On Windows, quotes
// left around the path by cmd.exe are stripped first.
func expandPath(path string) string {
	if runtime.GOOS == "windows" && len(path) >= 2 {
		if (path[0] == '\'' || path[0] == '"') && path[len(path)-1] == path[0] {
			path = path[1 : len(path)-1]
		}
	}
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		return path // ~user is not supported
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
