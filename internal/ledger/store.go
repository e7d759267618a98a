package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
)

// Store: 사용량 원장 저장소 인터페이스입니다.
// 테스트에서 mock 구현을 주입할 수 있도록 합니다.
type Store interface {
	// Record 는 완료된 호출 1회분의 증분을 원자적으로 누적한다.
	// 같은 (일자, 백엔드)에 대한 동시 호출은 순수 덧셈으로 교환 가능해야 한다.
	Record(ctx context.Context, backend catalog.Backend, tokens int64, requests int64, outcome Outcome) error

	// Read 는 특정 (일자, 백엔드) 레코드를 조회한다.
	// 행이 없으면 0 값 레코드를 반환하며 실패하지 않는다.
	Read(ctx context.Context, day time.Time, backend catalog.Backend) (Record, error)

	// ReadDay 는 특정 일자에 트래픽이 있었던 모든 백엔드 레코드를 조회한다.
	ReadDay(ctx context.Context, day time.Time) ([]Record, error)

	// ReadRange 는 일자 범위(양끝 포함)의 레코드를 일자, 백엔드 순으로 조회한다.
	ReadRange(ctx context.Context, from time.Time, to time.Time) ([]Record, error)

	// Ping 은 저장소 연결 상태를 확인한다.
	Ping(ctx context.Context) error

	// Close 는 리소스를 정리한다.
	Close()
}

// 구현체가 Store 인터페이스를 만족하는지 컴파일 타임 확인
var (
	_ Store = (*Repository)(nil)
	_ Store = (*ValkeyStore)(nil)
)

// NewStore 는 설정에 따라 원장 저장소 구현을 선택한다.
func NewStore(cfg *config.Config, cat *catalog.Catalog, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	switch cfg.Ledger.Store {
	case config.LedgerStorePostgres:
		return NewRepository(cfg, logger), nil
	case config.LedgerStoreValkey:
		return NewValkeyStore(cfg, cat, logger)
	default:
		return nil, fmt.Errorf("unknown ledger store: %s", cfg.Ledger.Store)
	}
}
