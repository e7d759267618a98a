package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/logging"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/telemetry"
)

// ProvideLogger: 로거를 구성해 반환합니다.
// OTel이 활성화된 경우 로그에 trace_id/span_id가 자동으로 추가됩니다.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewLoggerWithOTel(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// ProvideTelemetry: OpenTelemetry provider를 초기화합니다.
// cfg.Telemetry.Enabled가 false면 no-op provider를 반환합니다.
func ProvideTelemetry(cfg *config.Config) (*telemetry.Provider, error) {
	return telemetry.NewProvider(context.Background(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
}
