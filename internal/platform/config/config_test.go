package config

import (
	"os"
	"testing"
	"time"
)

// Test environment variable keys.
const (
	testEnvPostgresDSN  = "POSTGRES_DSN"
	testEnvBotToken     = "BOT_TOKEN"
	testEnvTargetChatID = "TARGET_CHAT_ID"
	testEnvTGAPIID      = "TG_API_ID"
	testEnvTGAPIHash    = "TG_API_HASH"
	testEnvAdminIDs     = "ADMIN_IDS"
)

// Test values.
const (
	testPostgresDSN        = "postgres://localhost/test"
	testBotToken           = "123456:ABC-DEF"
	testTargetChatID       = "-1001234567890"
	testTGAPIID            = "12345"
	testTGAPIHash          = "abcdef123456"
	testErrLoad            = "Load() error = %v"
	testDefaultEnv         = "local"
	testDefaultProvider    = "gemini"
	testDefaultModel       = "gemini-2.0-flash"
	testDefaultSessionPath = "./tg.session"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv(testEnvBotToken, testBotToken)
	t.Setenv(testEnvTargetChatID, testTargetChatID)
	t.Setenv(testEnvTGAPIID, testTGAPIID)
	t.Setenv(testEnvTGAPIHash, testTGAPIHash)
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear all required vars
	os.Unsetenv(testEnvPostgresDSN)
	os.Unsetenv(testEnvBotToken)
	os.Unsetenv(testEnvTargetChatID)
	os.Unsetenv(testEnvTGAPIID)
	os.Unsetenv(testEnvTGAPIHash)

	_, err := Load()
	if err == nil {
		t.Error("expected error for missing required env vars")
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.PostgresDSN != testPostgresDSN {
		t.Errorf("PostgresDSN = %q, want %q", cfg.PostgresDSN, testPostgresDSN)
	}

	if cfg.BotToken != testBotToken {
		t.Errorf("BotToken = %q, want %q", cfg.BotToken, testBotToken)
	}

	if cfg.TargetChatID != -1001234567890 {
		t.Errorf("TargetChatID = %d, want %d", cfg.TargetChatID, -1001234567890)
	}

	if cfg.TGAPIID != 12345 {
		t.Errorf("TGAPIID = %d, want %d", cfg.TGAPIID, 12345)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	// Explicitly unset variables that might be in .env to test actual defaults
	os.Unsetenv("APP_ENV")
	os.Unsetenv("LLM_PROVIDER")
	os.Unsetenv("GEMINI_MODEL")
	os.Unsetenv("SCAN_MODE")
	os.Unsetenv("BATCH_SIZE")
	os.Unsetenv("BATCH_RATE_LIMIT_WAIT")
	os.Unsetenv("HEALTH_PORT")
	os.Unsetenv("TG_SESSION_PATH")
	os.Unsetenv("TG_CHAT_FOLDER")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.AppEnv != testDefaultEnv {
		t.Errorf("AppEnv default = %q, want %q", cfg.AppEnv, testDefaultEnv)
	}

	if cfg.LLMProvider != testDefaultProvider {
		t.Errorf("LLMProvider default = %q, want %q", cfg.LLMProvider, testDefaultProvider)
	}

	if cfg.GeminiModel != testDefaultModel {
		t.Errorf("GeminiModel default = %q, want %q", cfg.GeminiModel, testDefaultModel)
	}

	if cfg.ScanMode != "timer" {
		t.Errorf("ScanMode default = %q, want %q", cfg.ScanMode, "timer")
	}

	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize default = %d, want %d", cfg.BatchSize, 100)
	}

	if cfg.BatchRateLimitWait != 60*time.Second {
		t.Errorf("BatchRateLimitWait default = %v, want %v", cfg.BatchRateLimitWait, 60*time.Second)
	}

	if cfg.HealthPort != 8080 {
		t.Errorf("HealthPort default = %d, want %d", cfg.HealthPort, 8080)
	}

	if cfg.TGSessionPath != testDefaultSessionPath {
		t.Errorf("TGSessionPath default = %q, want %q", cfg.TGSessionPath, testDefaultSessionPath)
	}

	if cfg.TGChatFolder != "*" {
		t.Errorf("TGChatFolder default = %q, want %q", cfg.TGChatFolder, "*")
	}
}

func TestLoad_AdminIDs(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv(testEnvAdminIDs, "111,222,333")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if len(cfg.AdminIDs) != 3 {
		t.Fatalf("AdminIDs length = %d, want %d", len(cfg.AdminIDs), 3)
	}

	expected := []int64{111, 222, 333}
	for i, want := range expected {
		if cfg.AdminIDs[i] != want {
			t.Errorf("AdminIDs[%d] = %d, want %d", i, cfg.AdminIDs[i], want)
		}
	}
}

func TestLoad_Normalize(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("LLM_PROVIDER", " OpenRouter ")
	t.Setenv("SCAN_MODE", "MANUAL")
	t.Setenv("EXCLUDE_WORDS", "Аренда, сдам ,,СНИМУ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.LLMProvider != "openrouter" {
		t.Errorf("LLMProvider = %q, want %q", cfg.LLMProvider, "openrouter")
	}

	if cfg.ScanMode != "manual" {
		t.Errorf("ScanMode = %q, want %q", cfg.ScanMode, "manual")
	}

	wantWords := []string{"аренда", "сдам", "сниму"}
	if len(cfg.ExcludeWords) != len(wantWords) {
		t.Fatalf("ExcludeWords = %v, want %v", cfg.ExcludeWords, wantWords)
	}
	for i, want := range wantWords {
		if cfg.ExcludeWords[i] != want {
			t.Errorf("ExcludeWords[%d] = %q, want %q", i, cfg.ExcludeWords[i], want)
		}
	}
}

func TestLoad_InvalidNumeric(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv(testEnvTargetChatID, "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("expected error for invalid TARGET_CHAT_ID")
	}
}
