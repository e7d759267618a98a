package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joho/godotenv"
)

var (
	configOnce  sync.Once
	configValue *Config
)

const (
	// LedgerStorePostgres 는 Postgres 원장 저장소 식별자다.
	LedgerStorePostgres = "postgres"
	// LedgerStoreValkey 는 Valkey 원장 저장소 식별자다.
	LedgerStoreValkey = "valkey"
)

// Load 는 환경 변수 기반 설정을 로드한다.
func Load() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		configValue = buildConfig()
	})
	return configValue
}

// ProvideConfig 는 설정을 로드하고 검증한다.
func ProvideConfig() (*Config, error) {
	cfg := Load()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 는 설정 유효성을 검사한다.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Ledger.Store {
	case LedgerStorePostgres, LedgerStoreValkey:
	default:
		return fmt.Errorf("unknown ledger store: %s", c.Ledger.Store)
	}
	if c.Router.HeadroomMarginPercent < 0 || c.Router.HeadroomMarginPercent >= 100 {
		return fmt.Errorf("headroom margin out of range: %v", c.Router.HeadroomMarginPercent)
	}
	if c.Router.RateLimitThreshold <= 0 {
		return fmt.Errorf("rate limit threshold must be positive: %d", c.Router.RateLimitThreshold)
	}
	if c.Router.ErrorThreshold <= 0 {
		return fmt.Errorf("error threshold must be positive: %d", c.Router.ErrorThreshold)
	}
	return nil
}

// LogEnvStatus 는 환경 설정 상태를 로그로 남긴다.
func LogEnvStatus(cfg *Config, logger *slog.Logger) {
	if logger == nil || cfg == nil {
		return
	}

	envFilePresent := fileExists(".env")
	logger.Debug(
		"env_status",
		"env_file", envFilePresent,
		"ledger_store", cfg.Ledger.Store,
		"catalog_file", cfg.Catalog.File,
		"headroom_margin", cfg.Router.HeadroomMarginPercent,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"valkey_url", cfg.Valkey.URL,
		"api_key", maskSecret(cfg.HTTPAuth.APIKey),
	)
}

func buildConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			File: getEnvString("CATALOG_FILE", ""),
			Flash: BackendQuotaConfig{
				DailyTokenLimit:   getEnvInt64("FLASH_DAILY_TOKEN_LIMIT", 1_000_000),
				DailyRequestLimit: getEnvInt64("FLASH_DAILY_REQUEST_LIMIT", 1_500),
				Priority:          getEnvInt("FLASH_PRIORITY", 1),
			},
			FlashLite: BackendQuotaConfig{
				DailyTokenLimit:   getEnvInt64("FLASH_LITE_DAILY_TOKEN_LIMIT", 1_000_000),
				DailyRequestLimit: getEnvInt64("FLASH_LITE_DAILY_REQUEST_LIMIT", 1_500),
				Priority:          getEnvInt("FLASH_LITE_PRIORITY", 2),
			},
			Pro: BackendQuotaConfig{
				DailyTokenLimit:   getEnvInt64("PRO_DAILY_TOKEN_LIMIT", 250_000),
				DailyRequestLimit: getEnvInt64("PRO_DAILY_REQUEST_LIMIT", 100),
				Priority:          getEnvInt("PRO_PRIORITY", 3),
			},
		},
		Router: RouterConfig{
			HeadroomMarginPercent: getEnvFloat("ROUTER_HEADROOM_MARGIN_PERCENT", 5),
			RateLimitThreshold:    int64(max(1, getEnvInt("ROUTER_RATE_LIMIT_THRESHOLD", 1))),
			ErrorThreshold:        int64(max(1, getEnvInt("ROUTER_ERROR_THRESHOLD", 3))),
			SelectTimeoutSeconds:  max(1, getEnvInt("ROUTER_SELECT_TIMEOUT_SECONDS", 5)),
			HistoryMaxDays:        max(1, getEnvInt("ROUTER_HISTORY_MAX_DAYS", 90)),
		},
		Ledger: LedgerConfig{
			Store:         getEnvString("LEDGER_STORE", LedgerStorePostgres),
			RetentionDays: max(1, getEnvInt("LEDGER_RETENTION_DAYS", 90)),
		},
		Valkey: ValkeyConfig{
			URL:          getEnvString("LEDGER_VALKEY_URL", "redis://localhost:6379"),
			DisableCache: getEnvBool("LEDGER_VALKEY_DISABLE_CACHE", false),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			LogDir:     getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 1),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_FILE_COMPRESS", true),
		},
		HTTP: HTTPConfig{
			Host:         getEnvString("HTTP_HOST", "127.0.0.1"),
			Port:         getEnvInt("HTTP_PORT", 40613),
			HTTP2Enabled: getEnvBool("HTTP2_ENABLED", true),
		},
		HTTPAuth: HTTPAuthConfig{
			APIKey: getEnvString("HTTP_API_KEY", ""),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			RequestsPerMinute: getEnvNonNegativeInt("HTTP_RATE_LIMIT_RPM", 0),
			CacheSize:         max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_SIZE", 10000)),
			CacheTTLSeconds:   max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_TTL_SECONDS", 120)),
		},
		Database: DatabaseConfig{
			Host:                                 getEnvString("DB_HOST", "localhost"),
			Port:                                 getEnvInt("DB_PORT", 5432),
			Name:                                 getEnvString("DB_NAME", "modelrouter"),
			User:                                 getEnvString("DB_USER", "modelrouter"),
			Password:                             getEnvString("DB_PASSWORD", ""),
			MinPool:                              getEnvInt("DB_MIN_POOL", 1),
			MaxPool:                              getEnvInt("DB_MAX_POOL", 5),
			ConnMaxLifetimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			ConnMaxIdleTimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
			UsageBatchEnabled:                    getEnvBool("DB_USAGE_BATCH_ENABLED", false),
			UsageBatchFlushIntervalSeconds:       max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_INTERVAL_SECONDS", 1)),
			UsageBatchFlushTimeoutSeconds:        getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_TIMEOUT_SECONDS", 5),
			UsageBatchMaxPendingRequests:         max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_PENDING_REQUESTS", 50)),
			UsageBatchMaxBackoffSeconds:          getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_BACKOFF_SECONDS", 60),
			UsageBatchErrorLogMaxIntervalSeconds: getEnvNonNegativeInt("DB_USAGE_BATCH_ERROR_LOG_MAX_INTERVAL_SECONDS", 60),
		},
		Telemetry: readTelemetryConfig(),
	}
}
