package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
)

// memStore 는 테스트용 인메모리 원장이다.
type memStore struct {
	records map[time.Time]map[catalog.Backend]ledger.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[time.Time]map[catalog.Backend]ledger.Record)}
}

func (m *memStore) set(day time.Time, record ledger.Record) {
	dayKey := ledger.DayKey(day)
	if m.records[dayKey] == nil {
		m.records[dayKey] = make(map[catalog.Backend]ledger.Record)
	}
	record.Day = dayKey
	m.records[dayKey][record.Backend] = record
}

func (m *memStore) Record(_ context.Context, backend catalog.Backend, tokens int64, requests int64, outcome ledger.Outcome) error {
	dayKey := ledger.Today()
	if m.records[dayKey] == nil {
		m.records[dayKey] = make(map[catalog.Backend]ledger.Record)
	}
	record := m.records[dayKey][backend]
	record.Day = dayKey
	record.Backend = backend
	record.TokensUsed += tokens
	record.RequestCount += requests
	switch outcome {
	case ledger.OutcomeRateLimited:
		record.RateLimitHits++
	case ledger.OutcomeError:
		record.ErrorCount++
	}
	m.records[dayKey][backend] = record
	return nil
}

func (m *memStore) Read(_ context.Context, day time.Time, backend catalog.Backend) (ledger.Record, error) {
	dayKey := ledger.DayKey(day)
	if record, ok := m.records[dayKey][backend]; ok {
		return record, nil
	}
	return ledger.Record{Day: dayKey, Backend: backend}, nil
}

func (m *memStore) ReadDay(_ context.Context, day time.Time) ([]ledger.Record, error) {
	dayKey := ledger.DayKey(day)
	records := make([]ledger.Record, 0, len(m.records[dayKey]))
	for _, record := range m.records[dayKey] {
		records = append(records, record)
	}
	return records, nil
}

func (m *memStore) ReadRange(_ context.Context, from time.Time, to time.Time) ([]ledger.Record, error) {
	var records []ledger.Record
	for day := ledger.DayKey(from); !day.After(ledger.DayKey(to)); day = day.AddDate(0, 0, 1) {
		dayRecords, _ := m.ReadDay(context.Background(), day)
		records = append(records, dayRecords...)
	}
	return records, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Close() {}

func testEngine(t *testing.T, store ledger.Store) (*Engine, *SnapshotService) {
	t.Helper()
	cat, err := catalog.New([]catalog.BackendQuota{
		{Backend: catalog.BackendFlash, DailyTokenLimit: 300_000, DailyRequestLimit: 1_000, Priority: 1},
		{Backend: catalog.BackendFlashLite, DailyTokenLimit: 300_000, DailyRequestLimit: 1_000, Priority: 2},
		{Backend: catalog.BackendPro, DailyTokenLimit: 250_000, DailyRequestLimit: 100, Priority: 3},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	cfg := &config.Config{
		Router: config.RouterConfig{
			HeadroomMarginPercent: 5,
			RateLimitThreshold:    1,
			ErrorThreshold:        3,
		},
	}
	service, err := NewSnapshotService(cfg, cat, store)
	if err != nil {
		t.Fatalf("failed to build snapshot service: %v", err)
	}
	engine, err := NewEngine(cfg, service, nil)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return engine, service
}

func TestSelectPrefersHighestPriority(t *testing.T) {
	store := newMemStore()
	engine, _ := testEngine(t, store)

	selection, err := engine.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if selection.Backend != catalog.BackendFlash || selection.Fallback {
		t.Fatalf("unexpected selection: %+v", selection)
	}
	if selection.Reasoning != "gemini-3-flash selected (priority 1, usage 0.0%)" {
		t.Fatalf("unexpected reasoning: %q", selection.Reasoning)
	}
	if len(selection.Snapshots) != 3 {
		t.Fatalf("expected full snapshot list, got %d", len(selection.Snapshots))
	}
}

func TestSelectSkipsBackendsPastHeadroomCutoff(t *testing.T) {
	store := newMemStore()
	engine, _ := testEngine(t, store)
	now := time.Now()

	// 295000/300000 = 98.3% — 95% 기준선 초과
	store.set(now, ledger.Record{Backend: catalog.BackendFlash, TokensUsed: 295_000, RequestCount: 900})

	selection, err := engine.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if selection.Backend != catalog.BackendFlashLite || selection.Fallback {
		t.Fatalf("unexpected selection: %+v", selection)
	}
	if selection.Priority != 2 {
		t.Fatalf("unexpected priority: %d", selection.Priority)
	}
}

func TestSelectSkipsRateLimitedAndSaturated(t *testing.T) {
	store := newMemStore()
	engine, _ := testEngine(t, store)
	now := time.Now()

	store.set(now, ledger.Record{Backend: catalog.BackendFlash, TokensUsed: 10, RequestCount: 1, RateLimitHits: 1})
	store.set(now, ledger.Record{Backend: catalog.BackendFlashLite, TokensUsed: 10, RequestCount: 1, ErrorCount: 4})

	selection, err := engine.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if selection.Backend != catalog.BackendPro {
		t.Fatalf("unexpected selection: %+v", selection)
	}
}

func TestSelectFallsBackToLowestUsage(t *testing.T) {
	store := newMemStore()
	engine, _ := testEngine(t, store)
	now := time.Now()

	// 전 백엔드가 기준선을 넘었지만 포화는 아님
	store.set(now, ledger.Record{Backend: catalog.BackendFlash, TokensUsed: 299_000, RequestCount: 990})
	store.set(now, ledger.Record{Backend: catalog.BackendFlashLite, TokensUsed: 288_000, RequestCount: 950})
	store.set(now, ledger.Record{Backend: catalog.BackendPro, TokensUsed: 249_000, RequestCount: 99})

	selection, err := engine.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	// flash-lite: 96.0% — 세 후보 중 최저
	if selection.Backend != catalog.BackendFlashLite || !selection.Fallback {
		t.Fatalf("unexpected selection: %+v", selection)
	}
	if selection.Reasoning != "gemini-3-flash-lite selected as degraded fallback (usage 96.0%, all primary backends near capacity)" {
		t.Fatalf("unexpected reasoning: %q", selection.Reasoning)
	}
}

func TestSelectReturnsErrorWhenExhausted(t *testing.T) {
	store := newMemStore()
	engine, _ := testEngine(t, store)
	now := time.Now()

	store.set(now, ledger.Record{Backend: catalog.BackendFlash, RateLimitHits: 2})
	store.set(now, ledger.Record{Backend: catalog.BackendFlashLite, ErrorCount: 10})
	store.set(now, ledger.Record{Backend: catalog.BackendPro, RateLimitHits: 1})

	_, err := engine.Select(context.Background())
	if !errors.Is(err, ErrNoBackendAvailable) {
		t.Fatalf("expected ErrNoBackendAvailable, got %v", err)
	}
}

func TestSelectEndToEndScenario(t *testing.T) {
	store := newMemStore()
	engine, _ := testEngine(t, store)
	ctx := context.Background()
	now := time.Now()

	// flash 가 소비를 거듭해 기준선을 넘어서면 flash-lite 로 넘어간다
	store.set(now, ledger.Record{Backend: catalog.BackendFlash, TokensUsed: 295_000, RequestCount: 980})

	selection, err := engine.Select(ctx)
	if err != nil {
		t.Fatalf("select after flash drained: %v", err)
	}
	if selection.Backend != catalog.BackendFlashLite {
		t.Fatalf("unexpected selection: %+v", selection)
	}

	// flash-lite 가 제공자 제한에 걸리면 pro 가 남는다
	store.set(now, ledger.Record{Backend: catalog.BackendFlashLite, TokensUsed: 10_000, RequestCount: 40, RateLimitHits: 1})

	selection, err = engine.Select(ctx)
	if err != nil {
		t.Fatalf("select after flash-lite limited: %v", err)
	}
	if selection.Backend != catalog.BackendPro || selection.Fallback {
		t.Fatalf("unexpected selection: %+v", selection)
	}
}

func TestSelectAtUsesRequestedDay(t *testing.T) {
	store := newMemStore()
	engine, _ := testEngine(t, store)

	yesterday := time.Now().AddDate(0, 0, -1)
	store.set(yesterday, ledger.Record{Backend: catalog.BackendFlash, RateLimitHits: 5})

	// 어제의 제한 이력은 오늘 선택에 영향을 주지 않는다
	selection, err := engine.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if selection.Backend != catalog.BackendFlash {
		t.Fatalf("unexpected selection: %+v", selection)
	}

	// 어제 기준으로 보면 flash 가 막혀 있어 flash-lite 가 선택된다
	past, err := engine.SelectAt(context.Background(), yesterday)
	if err != nil {
		t.Fatalf("select at yesterday: %v", err)
	}
	if past.Backend != catalog.BackendFlashLite {
		t.Fatalf("unexpected selection: %+v", past)
	}
}
