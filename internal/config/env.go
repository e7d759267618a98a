package config

import (
	"os"
	"strconv"
	"strings"
)

func getEnvString(key string, def string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	return value
}

func getEnvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvNonNegativeInt(key string, def int) int {
	value := getEnvInt(key, def)
	if value < 0 {
		return 0
	}
	return value
}

func getEnvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	value = strings.ToLower(value)
	return value == "true" || value == "1" || value == "yes" || value == "y"
}

func maskSecret(value string) string {
	if value == "" {
		return "<missing>"
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:2] + "***" + value[len(value)-2:]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// readTelemetryConfig: OpenTelemetry 설정을 환경 변수에서 읽습니다.
func readTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        getEnvBool("OTEL_ENABLED", false),
		ServiceName:    getEnvString("OTEL_SERVICE_NAME", "model-router"),
		ServiceVersion: getEnvString("OTEL_SERVICE_VERSION", "1.0.0"),
		Environment:    getEnvString("OTEL_ENVIRONMENT", "production"),
		OTLPEndpoint:   getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"),
		OTLPInsecure:   getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SampleRate:     getEnvFloat("OTEL_SAMPLE_RATE", 1.0),
	}
}
