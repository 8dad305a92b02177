package config

import (
	"errors"
	"fmt"
	"net/url"

	"lockwatch/internal/debounce"
	"lockwatch/internal/locker"
	"lockwatch/internal/notify"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCluster(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateLock(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCluster() error {
	if c.Cluster.Endpoint == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/lockwatch/config.toml"
		}
		return fmt.Errorf("cluster.endpoint is required; edit %s (create with 'lockwatch config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Cluster.Endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("cluster.endpoint %q must be an http(s) URL", c.Cluster.Endpoint)
	}
	if c.Cluster.Username == "" {
		return errors.New("cluster.username is required (or set LOCKWATCH_USERNAME)")
	}
	if c.Cluster.Password == "" {
		return errors.New("cluster.password is required (or set LOCKWATCH_PASSWORD)")
	}
	if c.Cluster.CallTimeoutSeconds <= 0 {
		return errors.New("cluster.call_timeout_seconds must be positive; unbounded cluster calls are not permitted")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.DirectoryPath == "" && c.Watch.FileID == 0 {
		return errors.New("watch requires directory_path or file_id")
	}
	if c.Watch.DirectoryPath != "" && c.Watch.FileID != 0 {
		return errors.New("watch.directory_path and watch.file_id are mutually exclusive")
	}
	if c.Watch.IntervalSeconds < 0 {
		return errors.New("watch.interval_seconds must not be negative")
	}
	if _, err := notify.NewKindSet(c.Watch.Kinds); err != nil {
		return err
	}
	if _, err := debounce.ParsePolicy(c.Watch.DebouncePolicy); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLock() error {
	_, err := locker.NewLockSpec(c.Lock.LegalHold, c.Lock.Retention)
	return err
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count <= 0 {
		return errors.New("workers.count must be positive")
	}
	if c.Workers.MaxAttempts <= 0 {
		return errors.New("workers.max_attempts must be positive")
	}
	if c.Workers.RetryBaseSeconds <= 0 || c.Workers.RetryMaxSeconds < c.Workers.RetryBaseSeconds {
		return errors.New("workers retry backoff must satisfy 0 < retry_base_seconds <= retry_max_seconds")
	}
	if c.Workers.ReconnectBaseSecs <= 0 || c.Workers.ReconnectMaxSecs < c.Workers.ReconnectBaseSecs {
		return errors.New("workers reconnect backoff must satisfy 0 < reconnect_base_seconds <= reconnect_max_seconds")
	}
	return nil
}

// KindSet returns the validated admitted notification kinds.
func (c *Config) KindSet() (notify.KindSet, error) {
	return notify.NewKindSet(c.Watch.Kinds)
}

// LockSpec returns the validated lock spec.
func (c *Config) LockSpec() (locker.LockSpec, error) {
	return locker.NewLockSpec(c.Lock.LegalHold, c.Lock.Retention)
}

// DebouncePolicy returns the validated debounce policy.
func (c *Config) DebouncePolicy() (debounce.Policy, error) {
	return debounce.ParsePolicy(c.Watch.DebouncePolicy)
}
