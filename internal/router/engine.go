package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
)

// ErrNoBackendAvailable 은 모든 백엔드가 소진되었거나 포화 상태일 때 반환된다.
var ErrNoBackendAvailable = errors.New("no backend available")

// Selection 은 선택 결과와 판단 근거다.
type Selection struct {
	Backend      catalog.Backend
	Priority     int
	UsagePercent float64
	Reasoning    string
	Fallback     bool
	Snapshots    []Snapshot
}

// Engine 은 2단계 정책으로 호출 대상 백엔드를 고른다.
// 1단계: 여유분을 남긴 한도 아래의 백엔드 중 최우선순위.
// 2단계: 전부 임계선을 넘었으면 포화되지 않은 백엔드 중 사용률 최저.
type Engine struct {
	snapshots *SnapshotService
	headroom  float64
	logger    *slog.Logger
}

// NewEngine 은 선택 엔진을 생성한다.
func NewEngine(cfg *config.Config, snapshots *SnapshotService, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot service is nil")
	}
	headroom := cfg.Router.HeadroomMarginPercent
	if headroom < 0 || headroom >= 100 {
		return nil, fmt.Errorf("invalid headroom margin: %v", headroom)
	}

	return &Engine{
		snapshots: snapshots,
		headroom:  headroom,
		logger:    logger,
	}, nil
}

// Select 는 오늘자 사용량 기준으로 백엔드를 선택한다.
func (e *Engine) Select(ctx context.Context) (Selection, error) {
	return e.SelectAt(ctx, time.Now())
}

// SelectAt 은 지정 시각이 속한 UTC 일자 기준으로 백엔드를 선택한다.
func (e *Engine) SelectAt(ctx context.Context, at time.Time) (Selection, error) {
	snapshots, err := e.snapshots.Snapshots(ctx, at)
	if err != nil {
		return Selection{}, err
	}

	cutoff := 100 - e.headroom

	// 1단계: 우선순위 순서에서 여유분이 남은 첫 백엔드
	for _, snapshot := range snapshots {
		if !snapshot.Available() {
			continue
		}
		if snapshot.UsagePercent >= cutoff {
			continue
		}
		selection := Selection{
			Backend:      snapshot.Backend,
			Priority:     snapshot.Priority,
			UsagePercent: snapshot.UsagePercent,
			Reasoning: fmt.Sprintf(
				"%s selected (priority %d, usage %.1f%%)",
				snapshot.Backend, snapshot.Priority, snapshot.UsagePercent,
			),
			Snapshots: snapshots,
		}
		return selection, nil
	}

	// 2단계: 포화되지 않은 백엔드 중 사용률 최저. 동률이면 우선순위가 앞선 쪽.
	best := -1
	for i, snapshot := range snapshots {
		if !snapshot.Available() {
			continue
		}
		if best < 0 || snapshot.UsagePercent < snapshots[best].UsagePercent {
			best = i
		}
	}
	if best >= 0 {
		snapshot := snapshots[best]
		if e.logger != nil {
			e.logger.Warn(
				"router_degraded_fallback",
				"backend", snapshot.Backend,
				"usage_percent", snapshot.UsagePercent,
			)
		}
		selection := Selection{
			Backend:      snapshot.Backend,
			Priority:     snapshot.Priority,
			UsagePercent: snapshot.UsagePercent,
			Fallback:     true,
			Reasoning: fmt.Sprintf(
				"%s selected as degraded fallback (usage %.1f%%, all primary backends near capacity)",
				snapshot.Backend, snapshot.UsagePercent,
			),
			Snapshots: snapshots,
		}
		return selection, nil
	}

	if e.logger != nil {
		e.logger.Error("router_exhausted", "day", ledger.DayKey(at).Format("2006-01-02"))
	}
	return Selection{Snapshots: snapshots}, fmt.Errorf("%w: all backends rate limited or saturated", ErrNoBackendAvailable)
}
