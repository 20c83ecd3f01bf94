package config

const (
	defaultStagingDir           = "~/.local/share/reelpipe/staging"
	defaultLogDir               = "~/.local/share/reelpipe/logs"
	defaultAPIBind              = "127.0.0.1:7519"
	defaultThumbnailCount       = 3
	defaultPollInterval         = 5
	defaultBatchTimeout         = 3600
	defaultAudioBitrateKbps     = 128
	defaultWorkerTimeout        = 30
	defaultWorkerSubmitsPerSec  = 5.0
	defaultWorkerSubmitBurst    = 10
	defaultHostingTimeout       = 15
	defaultHostingCallsPerSec   = 20.0
	defaultHostingCallBurst     = 40
	defaultRunnerPollInterval   = 5
	defaultSweepInterval        = 60
	defaultSweepBatchLimit      = 10
	defaultReviewRetryThreshold = 20
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Transcode: Transcode{
			Tiers:            []string{"480p", "720p", "1080p"},
			ThumbnailCount:   defaultThumbnailCount,
			PollInterval:     defaultPollInterval,
			BatchTimeout:     defaultBatchTimeout,
			SegmentedOutput:  true,
			AudioBitrateKbps: defaultAudioBitrateKbps,
		},
		Worker: Worker{
			RequestTimeout: defaultWorkerTimeout,
			SubmitsPerSec:  defaultWorkerSubmitsPerSec,
			SubmitBurst:    defaultWorkerSubmitBurst,
		},
		Hosting: Hosting{
			RequestTimeout: defaultHostingTimeout,
			CallsPerSec:    defaultHostingCallsPerSec,
			CallBurst:      defaultHostingCallBurst,
		},
		AccessSync: AccessSync{
			RunnerPollInterval:   defaultRunnerPollInterval,
			SweepInterval:        defaultSweepInterval,
			SweepBatchLimit:      defaultSweepBatchLimit,
			ReviewRetryThreshold: defaultReviewRetryThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			AssetReady:     true,
			BatchFailed:    true,
			SyncBacklog:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
