package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
)

// ErrWriteFailure 는 원장 증분을 내구성 있게 적용하지 못했을 때 반환된다.
// 호출자의 백엔드 호출 결과에는 영향이 없고 해당 이벤트 집계만 유실된다.
var ErrWriteFailure = errors.New("ledger write failure")

// Outcome 는 완료된 백엔드 호출의 결과 분류다.
type Outcome string

const (
	// OutcomeSuccess 는 정상 완료다.
	OutcomeSuccess Outcome = "success"
	// OutcomeRateLimited 는 제공자 측 요청 제한 응답이다.
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeError 는 그 외 실패다.
	OutcomeError Outcome = "error"
)

// Valid 는 허용된 outcome 값인지 확인한다.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeRateLimited, OutcomeError:
		return true
	default:
		return false
	}
}

// outcomeCounters 는 증분 인자를 검증하고 outcome 을 카운터 증분으로 변환한다.
func outcomeCounters(tokens int64, requests int64, outcome Outcome) (rateLimitHits int64, errorCount int64, err error) {
	if tokens < 0 || requests < 0 {
		return 0, 0, fmt.Errorf("%w: negative delta", ErrWriteFailure)
	}
	if !outcome.Valid() {
		return 0, 0, fmt.Errorf("%w: invalid outcome %q", ErrWriteFailure, outcome)
	}

	switch outcome {
	case OutcomeRateLimited:
		rateLimitHits = 1
	case OutcomeError:
		errorCount = 1
	}
	return rateLimitHits, errorCount, nil
}

// UsageRow 는 (일자, 백엔드)별 사용량 집계를 저장하는 DB 모델이다.
// 일자가 지나면 행은 더 이상 변경되지 않는다.
type UsageRow struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	UsageDate     time.Time `gorm:"column:usage_date;type:date"`
	BackendID     string    `gorm:"column:backend_id"`
	TokensUsed    int64     `gorm:"column:tokens_used"`
	RequestCount  int64     `gorm:"column:request_count"`
	RateLimitHits int64     `gorm:"column:rate_limit_hits"`
	ErrorCount    int64     `gorm:"column:error_count"`
	LastUpdated   time.Time `gorm:"column:last_updated"`
}

// TableName 은 GORM에서 사용할 테이블명을 반환한다.
func (UsageRow) TableName() string {
	return "usage_records"
}

// Record 는 API/집계용 (일자, 백엔드) 사용량 뷰 모델이다.
type Record struct {
	Day           time.Time
	Backend       catalog.Backend
	TokensUsed    int64
	RequestCount  int64
	RateLimitHits int64
	ErrorCount    int64
	LastUpdated   time.Time
}

// IsZero 는 카운터가 전부 0인지 확인한다.
func (r Record) IsZero() bool {
	return r.TokensUsed == 0 && r.RequestCount == 0 && r.RateLimitHits == 0 && r.ErrorCount == 0
}

// DayKey 는 UTC 자정으로 정규화한 일자 키를 반환한다.
func DayKey(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// Today 는 현재 시각의 일자 키를 반환한다.
func Today() time.Time {
	return DayKey(time.Now())
}
