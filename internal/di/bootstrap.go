package di

import (
	"fmt"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/handler"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/router"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/server"
)

// InitializeApp 은 애플리케이션 의존성을 초기화하고 App 인스턴스를 반환한다.
func InitializeApp() (*App, error) {
	cfg, err := config.ProvideConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	telemetryProvider, err := ProvideTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	cat, err := catalog.Provide(cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	store, err := ledger.NewStore(cfg, cat, logger)
	if err != nil {
		return nil, fmt.Errorf("ledger store: %w", err)
	}

	recorder := ledger.NewRecorder(cfg, store, logger)

	snapshots, err := router.NewSnapshotService(cfg, cat, store)
	if err != nil {
		return nil, fmt.Errorf("snapshot service: %w", err)
	}

	engine, err := router.NewEngine(cfg, snapshots, logger)
	if err != nil {
		return nil, fmt.Errorf("router engine: %w", err)
	}

	metricsStore := metrics.NewStore()

	routerHandler := handler.NewRouterHandler(cfg, engine, snapshots, metricsStore, logger)
	usageHandler := handler.NewUsageHandler(cfg, store, recorder, metricsStore, logger)

	ginRouter := handler.NewRouter(cfg, logger, cat, store, metricsStore, routerHandler, usageHandler)
	httpServer := server.NewHTTPServer(cfg, ginRouter)

	return NewApp(httpServer, logger, cfg, telemetryProvider, store, recorder), nil
}
