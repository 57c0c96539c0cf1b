package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Notification bot
	BotToken     string  `env:"BOT_TOKEN,required"`
	AdminIDs     []int64 `env:"ADMIN_IDS" envSeparator:","`
	TargetChatID int64   `env:"TARGET_CHAT_ID,required"`

	// Telegram MTProto account used for reading chats
	TGAPIID       int    `env:"TG_API_ID,required"`
	TGAPIHash     string `env:"TG_API_HASH,required"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`

	// Chat discovery: a Telegram Desktop folder name, or "*" for every
	// group chat on the account.
	TGChatFolder   string `env:"TG_CHAT_FOLDER" envDefault:"*"`
	TGFetchLimit   int    `env:"TG_FETCH_LIMIT" envDefault:"100"`
	TGRateLimitRPS int    `env:"TG_RATE_LIMIT_RPS" envDefault:"1"`

	// LLM backend
	LLMProvider         string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey        string        `env:"GEMINI_API_KEY"`
	GeminiModel         string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	OpenRouterAPIKey    string        `env:"OPENROUTER_API_KEY"`
	OpenRouterModel     string        `env:"OPENROUTER_MODEL" envDefault:"google/gemini-2.0-flash-001"`
	LLMRequestsPerMin   int           `env:"LLM_REQUESTS_PER_MIN" envDefault:"30"`
	LLMTimeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	LLMCircuitThreshold int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout   time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`

	// Scanning
	ScanMode     string        `env:"SCAN_MODE" envDefault:"timer"`
	ScanInterval time.Duration `env:"SCAN_INTERVAL" envDefault:"30m"`
	ExcludeWords []string      `env:"EXCLUDE_WORDS" envSeparator:"," envDefault:"аренда,сдам,сдаю,сниму"`

	// Classification batching
	BatchSize          int           `env:"BATCH_SIZE" envDefault:"100"`
	BatchMaxParallel   int           `env:"BATCH_MAX_PARALLEL" envDefault:"3"`
	BatchMaxRetries    int           `env:"BATCH_MAX_RETRIES" envDefault:"3"`
	BatchRateLimitWait time.Duration `env:"BATCH_RATE_LIMIT_WAIT" envDefault:"60s"`

	// Facebook groups
	FacebookEnabled       bool          `env:"FACEBOOK_ENABLED" envDefault:"false"`
	FacebookBaseURL       string        `env:"FACEBOOK_BASE_URL" envDefault:"https://m.facebook.com"`
	FacebookCookie        string        `env:"FACEBOOK_COOKIE"`
	FacebookUserAgent     string        `env:"FACEBOOK_USER_AGENT" envDefault:"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"`
	FacebookGroupIDs      []string      `env:"FACEBOOK_GROUP_IDS" envSeparator:","`
	FacebookPostsPerGroup int           `env:"FACEBOOK_POSTS_PER_GROUP" envDefault:"20"`
	FacebookScanInterval  time.Duration `env:"FACEBOOK_SCAN_INTERVAL" envDefault:"15m"`
	FacebookMaxWorkers    int           `env:"FACEBOOK_MAX_WORKERS" envDefault:"3"`
	FacebookMaxPages      int           `env:"FACEBOOK_MAX_PAGES" envDefault:"10"`
	FacebookFetchTimeout  time.Duration `env:"FACEBOOK_FETCH_TIMEOUT" envDefault:"30s"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	normalize(cfg)

	return cfg, nil
}

// normalize folds free-form values so downstream comparisons stay simple:
// provider and mode names are matched case-insensitively, exclusion words
// are stored lowercase.
func normalize(cfg *Config) {
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.ScanMode = strings.ToLower(strings.TrimSpace(cfg.ScanMode))

	words := cfg.ExcludeWords[:0]
	for _, w := range cfg.ExcludeWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words = append(words, w)
		}
	}
	cfg.ExcludeWords = words
}
