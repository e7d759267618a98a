package health

import (
	"context"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
)

var startTime = time.Now()

// Component 는 상태 구성 요소다.
type Component struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail"`
}

// Response 는 상태 응답 본문이다.
type Response struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
}

// Collect 는 헬스 상태를 수집한다.
// deepChecks 가 켜지면 원장 저장소까지 왕복 확인한다. liveness 경로는
// 외부 의존성 장애로 다운 판정되지 않도록 shallow 로 유지한다.
func Collect(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, store ledger.Store, deepChecks bool) Response {
	components := make(map[string]Component)

	components["app"] = buildAppStatus()
	components["catalog"] = buildCatalogStatus(cat)
	components["ledger"] = buildLedgerStatus(ctx, cfg, store, deepChecks)

	overall := "ok"
	for _, component := range components {
		if component.Status != "ok" {
			overall = "degraded"
			break
		}
	}

	return Response{
		Status:     overall,
		Components: components,
	}
}

func buildAppStatus() Component {
	uptimeSeconds := int(time.Since(startTime).Seconds())
	return Component{
		Status: "ok",
		Detail: map[string]any{
			"uptime_seconds": uptimeSeconds,
		},
	}
}

func buildCatalogStatus(cat *catalog.Catalog) Component {
	if cat == nil || cat.Size() == 0 {
		return Component{
			Status: "degraded",
			Detail: map[string]any{"backend_count": 0},
		}
	}

	backends := make([]string, 0, cat.Size())
	for _, backend := range cat.Backends() {
		backends = append(backends, backend.String())
	}
	return Component{
		Status: "ok",
		Detail: map[string]any{
			"backend_count": cat.Size(),
			"backends":      backends,
		},
	}
}

func buildLedgerStatus(ctx context.Context, cfg *config.Config, store ledger.Store, deepChecks bool) Component {
	storeKind := ""
	if cfg != nil {
		storeKind = cfg.Ledger.Store
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reachability := false
	pingErr := ""
	if deepChecks && store != nil {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		if err := store.Ping(checkCtx); err != nil {
			pingErr = err.Error()
		} else {
			reachability = true
		}
	}

	status := "ok"
	if deepChecks && !reachability {
		status = "degraded"
	}

	detail := map[string]any{
		"store":           storeKind,
		"store_connected": reachability,
		"deep_checked":    deepChecks,
	}
	if pingErr != "" {
		detail["ping_error"] = pingErr
	}

	return Component{
		Status: status,
		Detail: detail,
	}
}
