package config

const (
	defaultConfigPath           = "~/.config/lectern/config.toml"
	defaultDataDir              = "~/.local/share/lectern"
	defaultScratchDir           = "~/.local/share/lectern/scratch"
	defaultStorageDir           = "~/.local/share/lectern/objects"
	defaultLogDir               = "~/.local/share/lectern/logs"
	defaultAPIBind              = "127.0.0.1:7510"
	defaultOpenAIBaseURL        = "https://api.openai.com/v1/"
	defaultTranscriptionModel   = "whisper-1"
	defaultContentModel         = "gpt-4o-mini"
	defaultOpenAITimeoutSeconds = 300
	defaultRetryMaxAttempts     = 3
	defaultRetryBaseDelay       = 2
	defaultRetryMaxDelay        = 32
	defaultMaxFileBytes         = 25 * 1024 * 1024
	defaultExcerptChars         = 4000
	defaultMaxDescriptionWords  = 800
	defaultTone                 = ToneProfessional
	defaultTemperature          = 0.7
	defaultBucket               = "audiobooks"
	defaultSignedURLTTLSeconds  = 3600
	defaultPollInterval         = 5
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultMaxRunAttempts       = 2
	defaultWorkers              = 2
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Tones accepted by the content generator.
const (
	ToneProfessional = "professional"
	ToneCasual       = "casual"
	ToneAcademic     = "academic"
	ToneMarketing    = "marketing"
)

// Object store backends.
const (
	StorageBackendFS   = "fs"
	StorageBackendHTTP = "http"
)

func defaultExtensions() []string {
	return []string{".mp3", ".m4a", ".m4b", ".wav", ".flac", ".ogg", ".aac", ".webm", ".mp4", ".mpeg", ".mpga"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			ScratchDir: defaultScratchDir,
			StorageDir: defaultStorageDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		OpenAI: OpenAI{
			BaseURL:            defaultOpenAIBaseURL,
			TranscriptionModel: defaultTranscriptionModel,
			ContentModel:       defaultContentModel,
			TimeoutSeconds:     defaultOpenAITimeoutSeconds,
		},
		Retry: Retry{
			MaxAttempts:      defaultRetryMaxAttempts,
			BaseDelaySeconds: defaultRetryBaseDelay,
			MaxDelaySeconds:  defaultRetryMaxDelay,
		},
		Audio: Audio{
			MaxFileBytes: defaultMaxFileBytes,
			Extensions:   defaultExtensions(),
		},
		Content: Content{
			ExcerptChars:        defaultExcerptChars,
			MaxDescriptionWords: defaultMaxDescriptionWords,
			Tone:                defaultTone,
			KeywordsEnabled:     true,
			Temperature:         defaultTemperature,
		},
		Storage: Storage{
			Backend:             StorageBackendFS,
			Bucket:              defaultBucket,
			SignedURLTTLSeconds: defaultSignedURLTTLSeconds,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			MaxRunAttempts:     defaultMaxRunAttempts,
			Workers:            defaultWorkers,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
