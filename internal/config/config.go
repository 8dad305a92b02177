package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"lockwatch/internal/qumulo"
)

//go:embed sample_config.toml
var sampleConfig string

// Cluster contains the storage cluster connection settings.
type Cluster struct {
	Endpoint           string `toml:"endpoint"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
	InsecureTLS        bool   `toml:"insecure_tls"`
}

// Watch identifies the subtree to monitor and which notifications qualify.
type Watch struct {
	// DirectoryPath and FileID identify the watch root; exactly one is
	// required.
	DirectoryPath string `toml:"directory_path"`
	FileID        uint64 `toml:"file_id"`
	Recursive     bool   `toml:"recursive"`
	// Kinds is the admitted notification-kind set.
	Kinds []string `toml:"kinds"`
	// IntervalSeconds is the debounce window; zero locks immediately.
	IntervalSeconds int `toml:"interval_seconds"`
	// DebouncePolicy decides whether a repeat event keeps ("first-event")
	// or slides ("last-event") the pending due time.
	DebouncePolicy string `toml:"debounce_policy"`
}

// Lock describes the WORM lock applied to qualifying files.
type Lock struct {
	LegalHold bool `toml:"legal_hold"`
	// Retention is a relative duration like "2d" or "7y"; empty means
	// legal hold only.
	Retention string `toml:"retention"`
}

// Workers contains lock apply concurrency and retry settings.
type Workers struct {
	Count             int `toml:"count"`
	MaxAttempts       int `toml:"max_attempts"`
	RetryBaseSeconds  int `toml:"retry_base_seconds"`
	RetryMaxSeconds   int `toml:"retry_max_seconds"`
	ReconnectMaxSecs  int `toml:"reconnect_max_seconds"`
	ReconnectBaseSecs int `toml:"reconnect_base_seconds"`
}

// Paths contains directory and database locations.
type Paths struct {
	LogDir      string `toml:"log_dir"`
	JournalPath string `toml:"journal_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lockwatch.
type Config struct {
	Cluster Cluster `toml:"cluster"`
	Watch   Watch   `toml:"watch"`
	Lock    Lock    `toml:"lock"`
	Workers Workers `toml:"workers"`
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lockwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	c.Cluster.Endpoint = strings.TrimRight(strings.TrimSpace(c.Cluster.Endpoint), "/")
	c.Cluster.Username = strings.TrimSpace(c.Cluster.Username)
	c.Cluster.Password = strings.TrimSpace(c.Cluster.Password)
	c.Watch.DirectoryPath = strings.TrimSpace(c.Watch.DirectoryPath)
	c.Watch.DebouncePolicy = strings.TrimSpace(c.Watch.DebouncePolicy)
	c.Lock.Retention = strings.TrimSpace(c.Lock.Retention)

	// Credentials may come from the environment instead of the file.
	if env := strings.TrimSpace(os.Getenv("LOCKWATCH_USERNAME")); env != "" {
		c.Cluster.Username = env
	}
	if env := strings.TrimSpace(os.Getenv("LOCKWATCH_PASSWORD")); env != "" {
		c.Cluster.Password = env
	}

	for _, field := range []*string{&c.Paths.LogDir, &c.Paths.JournalPath} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

// WatchRef returns the configured watch root as a file reference.
func (c *Config) WatchRef() qumulo.FileRef {
	if c.Watch.FileID != 0 {
		return qumulo.RefByID(c.Watch.FileID)
	}
	return qumulo.RefByPath(c.Watch.DirectoryPath)
}

// DebounceInterval returns the configured debounce window.
func (c *Config) DebounceInterval() time.Duration {
	return time.Duration(c.Watch.IntervalSeconds) * time.Second
}

// ClusterConfig converts the cluster section into client settings.
func (c *Config) ClusterConfig() qumulo.Config {
	return qumulo.Config{
		BaseURL:     c.Cluster.Endpoint,
		Username:    c.Cluster.Username,
		Password:    c.Cluster.Password,
		CallTimeout: time.Duration(c.Cluster.CallTimeoutSeconds) * time.Second,
		InsecureTLS: c.Cluster.InsecureTLS,
	}
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "lockwatch.log")
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, filepath.Dir(c.Paths.JournalPath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes the embedded sample configuration to path, refusing
// to overwrite an existing file.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration text.
func Sample() string { return sampleConfig }

func expandPath(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, strings.TrimPrefix(pathValue, "~"))
	}
	return filepath.Abs(pathValue)
}

// ExpandPath resolves ~ and relative segments for user-supplied paths.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
