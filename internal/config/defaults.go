package config

const (
	defaultDataDir             = "~/.local/share/linotype"
	defaultLogDir              = "~/.local/share/linotype/logs"
	defaultTargetsPath         = "~/.config/linotype/targets.toml"
	defaultAPIBind             = "127.0.0.1:7663"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogMaxSizeMB        = 50
	defaultLogMaxBackups       = 5
	defaultConverterTimeout    = 120
	defaultImageGenModel       = "leonardo-diffusion-xl"
	defaultImageWidth          = 1024
	defaultImageHeight         = 576
	defaultImagePollInterval   = 3
	defaultImagePollTimeout    = 120
	defaultQueuePollInterval   = 5
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultMaxAttempts         = 3
	defaultRetryBackoffSeconds = 30
	defaultRetryBackoffCap     = 900
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			TargetsPath: defaultTargetsPath,
			APIBind:     defaultAPIBind,
		},
		Converter: Converter{
			TimeoutSeconds: defaultConverterTimeout,
		},
		ImageGen: ImageGen{
			Enabled:             true,
			Model:               defaultImageGenModel,
			Width:               defaultImageWidth,
			Height:              defaultImageHeight,
			PollIntervalSeconds: defaultImagePollInterval,
			PollTimeoutSeconds:  defaultImagePollTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			MaxAttempts:         defaultMaxAttempts,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			RetryBackoffCap:     defaultRetryBackoffCap,
			ImageOptional:       true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
	}
}
