//go:build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/handler"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/router"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/server"
)

func InitializeApp() (*App, error) {
	wire.Build(
		config.ProvideConfig,
		ProvideLogger,
		ProvideTelemetry,
		catalog.Provide,
		ledger.NewStore,
		ledger.NewRecorder,
		router.NewSnapshotService,
		router.NewEngine,
		metrics.NewStore,
		handler.NewRouterHandler,
		handler.NewUsageHandler,
		handler.NewRouter,
		server.NewHTTPServer,
		NewApp,
	)
	return nil, nil
}
