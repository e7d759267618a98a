package config

import (
	"net"
	"net/url"
	"strconv"
)

// BackendQuotaConfig 는 백엔드 하나의 일일 한도 설정이다.
type BackendQuotaConfig struct {
	DailyTokenLimit   int64
	DailyRequestLimit int64
	Priority          int
}

// CatalogConfig 는 백엔드 카탈로그 설정이다.
// File 이 지정되면 YAML 파일이 env 기본값을 대체한다.
type CatalogConfig struct {
	File      string
	Flash     BackendQuotaConfig
	FlashLite BackendQuotaConfig
	Pro       BackendQuotaConfig
}

// RouterConfig 는 백엔드 선택 정책 설정이다.
type RouterConfig struct {
	HeadroomMarginPercent float64
	RateLimitThreshold    int64
	ErrorThreshold        int64
	SelectTimeoutSeconds  int
	HistoryMaxDays        int
}

// LedgerConfig 는 사용량 원장 저장소 선택 설정이다.
type LedgerConfig struct {
	Store         string // "postgres" 또는 "valkey"
	RetentionDays int
}

// ValkeyConfig 는 Valkey 원장 연결 설정이다.
type ValkeyConfig struct {
	URL          string
	DisableCache bool
}

// LoggingConfig 는 로깅 설정이다.
type LoggingConfig struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HTTPConfig 는 HTTP 서버 설정이다.
type HTTPConfig struct {
	Host         string
	Port         int
	HTTP2Enabled bool
}

// HTTPAuthConfig 는 API 키 인증 설정이다.
type HTTPAuthConfig struct {
	APIKey string
}

// HTTPRateLimitConfig 는 요청 제한 설정이다.
type HTTPRateLimitConfig struct {
	RequestsPerMinute int
	CacheSize         int
	CacheTTLSeconds   int
}

// DatabaseConfig 는 DB 연결 및 저장 설정이다.
type DatabaseConfig struct {
	Host                                 string
	Port                                 int
	Name                                 string
	User                                 string
	Password                             string
	MinPool                              int
	MaxPool                              int
	ConnMaxLifetimeMinutes               int
	ConnMaxIdleTimeMinutes               int
	UsageBatchEnabled                    bool
	UsageBatchFlushIntervalSeconds       int
	UsageBatchFlushTimeoutSeconds        int
	UsageBatchMaxPendingRequests         int
	UsageBatchMaxBackoffSeconds          int
	UsageBatchErrorLogMaxIntervalSeconds int
}

// DSN 은 DB 접속 문자열을 반환한다.
func (d DatabaseConfig) DSN() string {
	host := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host,
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	} else {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// TelemetryConfig 는 OpenTelemetry 설정이다.
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SampleRate     float64
}

// Config 는 애플리케이션 전체 설정이다.
type Config struct {
	Catalog       CatalogConfig
	Router        RouterConfig
	Ledger        LedgerConfig
	Valkey        ValkeyConfig
	Logging       LoggingConfig
	HTTP          HTTPConfig
	HTTPAuth      HTTPAuthConfig
	HTTPRateLimit HTTPRateLimitConfig
	Database      DatabaseConfig
	Telemetry     TelemetryConfig
}
