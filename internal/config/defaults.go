package config

const (
	defaultCallTimeoutSeconds = 30
	defaultIntervalSeconds    = 15
	defaultWorkerCount        = 4
	defaultMaxAttempts        = 3
	defaultRetryBaseSeconds   = 1
	defaultRetryMaxSeconds    = 10
	defaultReconnectBaseSecs  = 1
	defaultReconnectMaxSecs   = 30
	defaultLogDir             = "~/.local/share/lockwatch/logs"
	defaultJournalPath        = "~/.local/share/lockwatch/journal.db"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultDebouncePolicy     = "first-event"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Cluster: Cluster{
			CallTimeoutSeconds: defaultCallTimeoutSeconds,
		},
		Watch: Watch{
			Kinds: []string{
				"child_file_added",
				"child_acl_changed",
				"child_extra_attrs_changed",
			},
			IntervalSeconds: defaultIntervalSeconds,
			DebouncePolicy:  defaultDebouncePolicy,
		},
		Lock: Lock{
			Retention: "1d",
		},
		Workers: Workers{
			Count:             defaultWorkerCount,
			MaxAttempts:       defaultMaxAttempts,
			RetryBaseSeconds:  defaultRetryBaseSeconds,
			RetryMaxSeconds:   defaultRetryMaxSeconds,
			ReconnectBaseSecs: defaultReconnectBaseSecs,
			ReconnectMaxSecs:  defaultReconnectMaxSecs,
		},
		Paths: Paths{
			LogDir:      defaultLogDir,
			JournalPath: defaultJournalPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
