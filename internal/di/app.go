package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/telemetry"
)

// App: 애플리케이션 구성 요소를 묶는다.
type App struct {
	Server    *http.Server
	Logger    *slog.Logger
	Config    *config.Config
	Telemetry *telemetry.Provider
	Store     ledger.Store
	Recorder  *ledger.Recorder
}

// NewApp: App 인스턴스를 생성합니다.
func NewApp(
	server *http.Server,
	logger *slog.Logger,
	cfg *config.Config,
	provider *telemetry.Provider,
	store ledger.Store,
	recorder *ledger.Recorder,
) *App {
	return &App{
		Server:    server,
		Logger:    logger,
		Config:    cfg,
		Telemetry: provider,
		Store:     store,
		Recorder:  recorder,
	}
}

// Close: 앱 리소스를 정리합니다.
// Recorder를 먼저 닫아 배치에 남은 사용량 델타를 저장소로 플러시합니다.
func (a *App) Close() {
	if a.Recorder != nil {
		a.Recorder.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Telemetry.Shutdown(shutdownCtx); err != nil && a.Logger != nil {
			a.Logger.Warn("telemetry_shutdown_failed", "err", err)
		}
	}
}
