package config

const (
	defaultDataDir                    = "~/.local/share/reelcast"
	defaultLogDir                     = "~/.local/share/reelcast/logs"
	defaultBind                       = "127.0.0.1:8787"
	defaultRenderBaseURL              = "https://api.render.example.com"
	defaultRenderWidth                = 1080
	defaultRenderHeight               = 1920
	defaultCaptionBaseURL             = "https://api.captions.example.com"
	defaultCaptionTemplate            = "Hormozi 2"
	defaultCaptionLanguage            = "en"
	defaultDistributionBaseURL        = "https://api.distribution.example.com"
	defaultRateLimitDelayMS           = 1000
	defaultProviderTimeoutSeconds     = 8
	defaultStorageRegion              = "us-east-1"
	defaultStoragePrefix              = "videos"
	defaultDownloadTimeoutSeconds     = 120
	defaultReconcileInterval          = 600
	defaultStuckThreshold             = 1800
	defaultDistributionStuckThreshold = 7200
	defaultDispatchWorkers            = 4
	defaultDispatchQueueSize          = 256
	defaultDispatchMaxRetries         = 3
	defaultDispatchBaseDelayMS        = 2000
	defaultDispatchMaxDelayMS         = 30000
	defaultDispatchEnqueueTimeoutMS   = 2000
	defaultTimezone                   = "America/Chicago"
	defaultFeedTimeoutSeconds         = 10
	defaultFeedCacheTTLSeconds        = 3600
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Server: Server{
			Bind: defaultBind,
		},
		Render: Render{
			BaseURL:        defaultRenderBaseURL,
			Width:          defaultRenderWidth,
			Height:         defaultRenderHeight,
			TimeoutSeconds: defaultProviderTimeoutSeconds,
		},
		Caption: Caption{
			BaseURL:        defaultCaptionBaseURL,
			Template:       defaultCaptionTemplate,
			Language:       defaultCaptionLanguage,
			TimeoutSeconds: defaultProviderTimeoutSeconds,
		},
		Distribution: Distribution{
			BaseURL:          defaultDistributionBaseURL,
			RateLimitDelayMS: defaultRateLimitDelayMS,
			TimeoutSeconds:   defaultProviderTimeoutSeconds,
		},
		Storage: Storage{
			Region:                 defaultStorageRegion,
			Prefix:                 defaultStoragePrefix,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Reconcile: Reconcile{
			Enabled:                           true,
			IntervalSeconds:                   defaultReconcileInterval,
			StuckThresholdSeconds:             defaultStuckThreshold,
			DistributionStuckThresholdSeconds: defaultDistributionStuckThreshold,
		},
		Dispatch: Dispatch{
			Workers:     defaultDispatchWorkers,
			QueueSize:   defaultDispatchQueueSize,
			MaxRetries:  defaultDispatchMaxRetries,
			BaseDelayMS: defaultDispatchBaseDelayMS,
			MaxDelayMS:  defaultDispatchMaxDelayMS,

			EnqueueTimeoutMS: defaultDispatchEnqueueTimeoutMS,
		},
		Schedule: Schedule{
			Timezone: defaultTimezone,
		},
		FeedHealth: FeedHealth{
			TimeoutSeconds:  defaultFeedTimeoutSeconds,
			CacheTTLSeconds: defaultFeedCacheTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
