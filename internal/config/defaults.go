package config

const (
	defaultQueueDir                = "~/.local/share/spool/queue"
	defaultLogDir                  = "~/.local/share/spool/logs"
	defaultHashQueueDepth          = 1
	defaultCreateRetryDelaySeconds = 10
	defaultMaxCollisions           = 1000
	defaultIdleTimeoutSeconds      = 5
	defaultTTLSeconds              = 1000
	defaultRewriteService          = "private/rewrite"
	defaultRetryBaseDelayMillis    = 1000
	defaultRetryMaxDelayMillis     = 10000
	defaultMyOrigin                = "localhost"
	defaultTransport               = "smtp"
	defaultLocalTransport          = "local"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"

	maxHashQueueDepth = 16
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			QueueDir: defaultQueueDir,
			LogDir:   defaultLogDir,
		},
		Queue: Queue{
			HashQueueNames:          []string{"deferred", "defer"},
			HashQueueDepth:          defaultHashQueueDepth,
			CreateRetryDelaySeconds: defaultCreateRetryDelaySeconds,
			MaxCollisions:           defaultMaxCollisions,
		},
		IPC: IPC{
			IdleTimeoutSeconds:    defaultIdleTimeoutSeconds,
			TTLSeconds:            defaultTTLSeconds,
			RewriteService:        defaultRewriteService,
			RetryBaseDelayMS:      defaultRetryBaseDelayMillis,
			RetryMaxDelayMS:       defaultRetryMaxDelayMillis,
			RetryAttempts:         0,
			LegacyRewriteCacheKey: false,
		},
		Rewrite: Rewrite{
			MyOrigin:         defaultMyOrigin,
			MyDestination:    []string{"localhost"},
			DefaultTransport: defaultTransport,
			LocalTransport:   defaultLocalTransport,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
