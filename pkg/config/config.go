package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "MTUI_"

// Config holds the console settings. Keys mirror the yaml file.
type Config struct {
	DataDir           string        `koanf:"datadir"`
	TemplateDir       string        `koanf:"template_dir"`
	LocalTempDir      string        `koanf:"local_tempdir"`
	SessionUser       string        `koanf:"session_user"`
	InstallLogs       string        `koanf:"install_logs"`
	ConnectionTimeout int           `koanf:"connection_timeout"`
	TargetTempDir     string        `koanf:"target_tempdir"`
	Location          string        `koanf:"location"`
	RefhostsPath      string        `koanf:"refhosts_path"`
	Concurrency       int           `koanf:"concurrency"`
	Auto              bool          `koanf:"auto"`
	ReportBugURL      string        `koanf:"report_bug_url"`
	ReconnectDelay    time.Duration `koanf:"reconnect_delay"`
}

// Timeout returns the per-command timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ConnectionTimeout) * time.Second
}

func defaults() map[string]interface{} {
	home, _ := os.UserHomeDir()
	sessionUser := "unknown"
	if u, err := user.Current(); err == nil {
		sessionUser = u.Username
	}
	return map[string]interface{}{
		"datadir":            "/usr/share/mtui",
		"template_dir":       filepath.Join(home, "testreports"),
		"local_tempdir":      os.TempDir(),
		"session_user":       sessionUser,
		"install_logs":       "install_logs",
		"connection_timeout": 300,
		"target_tempdir":     "/tmp",
		"location":           "default",
		"refhosts_path":      filepath.Join(home, ".config", "mtui", "refhosts.yml"),
		"concurrency":        8,
		"auto":               false,
		"report_bug_url":     "https://bugzilla.suse.com/enter_bug.cgi",
		"reconnect_delay":    "10s",
	}
}

// configFiles returns the files to merge in order. MTUI_CONF names a
// single file and replaces the default search.
func configFiles(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if p := os.Getenv("MTUI_CONF"); p != "" {
		return []string{p}
	}
	files := []string{"/etc/mtui.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".mtui.yaml"))
	}
	return files
}

// Load merges defaults, config files and MTUI_* environment variables.
// Missing default files are skipped, an explicit file must exist.
func Load(explicit string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range configFiles(explicit) {
		if _, err := os.Stat(path); err != nil {
			if explicit != "" {
				return nil, fmt.Errorf("config file %s: %w", path, err)
			}
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		if s == "MTUI_CONF" {
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return cfg, nil
}

// Overrides carries command line values. Zero values leave the loaded
// setting alone.
type Overrides struct {
	Location    string
	TemplateDir string
	Timeout     int
	Auto        bool
}

func (c *Config) MergeFlags(o Overrides) {
	if o.Location != "" {
		c.Location = o.Location
	}
	if o.TemplateDir != "" {
		c.TemplateDir = o.TemplateDir
	}
	if o.Timeout > 0 {
		c.ConnectionTimeout = o.Timeout
	}
	if o.Auto {
		c.Auto = true
	}
}
