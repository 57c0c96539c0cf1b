package config

import "time"

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string        `env:"POSTGRES_DSN,required"`
	MaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	MinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// TelegramBotConfig holds notification bot settings.
type TelegramBotConfig struct {
	Token        string  `env:"BOT_TOKEN,required"`
	AdminIDs     []int64 `env:"ADMIN_IDS" envSeparator:","`
	TargetChatID int64   `env:"TARGET_CHAT_ID,required"`
}

// TelegramMTProtoConfig holds the reader account settings.
type TelegramMTProtoConfig struct {
	APIID        int    `env:"TG_API_ID,required"`
	APIHash      string `env:"TG_API_HASH,required"`
	Phone        string `env:"TG_PHONE"`
	Password2FA  string `env:"TG_2FA_PASSWORD"`
	SessionPath  string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`
	ChatFolder   string `env:"TG_CHAT_FOLDER" envDefault:"*"`
	FetchLimit   int    `env:"TG_FETCH_LIMIT" envDefault:"100"`
	RateLimitRPS int    `env:"TG_RATE_LIMIT_RPS" envDefault:"1"`
}

// LLMConfig holds classification backend settings.
type LLMConfig struct {
	Provider         string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	GeminiModel      string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	OpenRouterAPIKey string        `env:"OPENROUTER_API_KEY"`
	OpenRouterModel  string        `env:"OPENROUTER_MODEL" envDefault:"google/gemini-2.0-flash-001"`
	RequestsPerMin   int           `env:"LLM_REQUESTS_PER_MIN" envDefault:"30"`
	Timeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	CircuitThreshold int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	CircuitTimeout   time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`
}

// ScanConfig holds cycle scheduling and filtering settings shared by both
// platforms.
type ScanConfig struct {
	Mode             string        `env:"SCAN_MODE" envDefault:"timer"`
	TelegramInterval time.Duration `env:"SCAN_INTERVAL" envDefault:"30m"`
	FacebookInterval time.Duration `env:"FACEBOOK_SCAN_INTERVAL" envDefault:"15m"`
	ExcludeWords     []string      `env:"EXCLUDE_WORDS" envSeparator:","`
}

// BatchConfig holds classification batcher settings.
type BatchConfig struct {
	Size          int           `env:"BATCH_SIZE" envDefault:"100"`
	MaxParallel   int           `env:"BATCH_MAX_PARALLEL" envDefault:"3"`
	MaxRetries    int           `env:"BATCH_MAX_RETRIES" envDefault:"3"`
	RateLimitWait time.Duration `env:"BATCH_RATE_LIMIT_WAIT" envDefault:"60s"`
}

// FacebookConfig holds the group feed adapter settings.
type FacebookConfig struct {
	Enabled       bool          `env:"FACEBOOK_ENABLED" envDefault:"false"`
	BaseURL       string        `env:"FACEBOOK_BASE_URL" envDefault:"https://m.facebook.com"`
	Cookie        string        `env:"FACEBOOK_COOKIE"`
	UserAgent     string        `env:"FACEBOOK_USER_AGENT"`
	GroupIDs      []string      `env:"FACEBOOK_GROUP_IDS" envSeparator:","`
	PostsPerGroup int           `env:"FACEBOOK_POSTS_PER_GROUP" envDefault:"20"`
	MaxWorkers    int           `env:"FACEBOOK_MAX_WORKERS" envDefault:"3"`
	MaxPages      int           `env:"FACEBOOK_MAX_PAGES" envDefault:"10"`
	FetchTimeout  time.Duration `env:"FACEBOOK_FETCH_TIMEOUT" envDefault:"30s"`
}

// DatabaseCfg returns the database configuration extracted from Config.
func (c *Config) DatabaseCfg() DatabaseConfig {
	return DatabaseConfig{
		PostgresDSN:       c.PostgresDSN,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// TelegramBotCfg returns the notification bot configuration.
func (c *Config) TelegramBotCfg() TelegramBotConfig {
	return TelegramBotConfig{
		Token:        c.BotToken,
		AdminIDs:     c.AdminIDs,
		TargetChatID: c.TargetChatID,
	}
}

// TelegramMTProtoCfg returns the reader account configuration.
func (c *Config) TelegramMTProtoCfg() TelegramMTProtoConfig {
	return TelegramMTProtoConfig{
		APIID:        c.TGAPIID,
		APIHash:      c.TGAPIHash,
		Phone:        c.TGPhone,
		Password2FA:  c.TG2FAPassword,
		SessionPath:  c.TGSessionPath,
		ChatFolder:   c.TGChatFolder,
		FetchLimit:   c.TGFetchLimit,
		RateLimitRPS: c.TGRateLimitRPS,
	}
}

// LLMCfg returns the classification backend configuration.
func (c *Config) LLMCfg() LLMConfig {
	return LLMConfig{
		Provider:         c.LLMProvider,
		GeminiAPIKey:     c.GeminiAPIKey,
		GeminiModel:      c.GeminiModel,
		OpenRouterAPIKey: c.OpenRouterAPIKey,
		OpenRouterModel:  c.OpenRouterModel,
		RequestsPerMin:   c.LLMRequestsPerMin,
		Timeout:          c.LLMTimeout,
		CircuitThreshold: c.LLMCircuitThreshold,
		CircuitTimeout:   c.LLMCircuitTimeout,
	}
}

// ScanCfg returns the scan scheduling configuration.
func (c *Config) ScanCfg() ScanConfig {
	return ScanConfig{
		Mode:             c.ScanMode,
		TelegramInterval: c.ScanInterval,
		FacebookInterval: c.FacebookScanInterval,
		ExcludeWords:     c.ExcludeWords,
	}
}

// BatchCfg returns the classification batcher configuration.
func (c *Config) BatchCfg() BatchConfig {
	return BatchConfig{
		Size:          c.BatchSize,
		MaxParallel:   c.BatchMaxParallel,
		MaxRetries:    c.BatchMaxRetries,
		RateLimitWait: c.BatchRateLimitWait,
	}
}

// FacebookCfg returns the group feed adapter configuration.
func (c *Config) FacebookCfg() FacebookConfig {
	return FacebookConfig{
		Enabled:       c.FacebookEnabled,
		BaseURL:       c.FacebookBaseURL,
		Cookie:        c.FacebookCookie,
		UserAgent:     c.FacebookUserAgent,
		GroupIDs:      c.FacebookGroupIDs,
		PostsPerGroup: c.FacebookPostsPerGroup,
		MaxWorkers:    c.FacebookMaxWorkers,
		MaxPages:      c.FacebookMaxPages,
		FetchTimeout:  c.FacebookFetchTimeout,
	}
}
