package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
)

// Repository 는 Postgres 기반 원장 저장소다.
type Repository struct {
	cfg    *config.Config
	logger *slog.Logger
	mu     sync.Mutex
	db     *gorm.DB
	sqlDB  *sql.DB
}

// NewRepository 는 Postgres 원장 저장소를 생성한다.
func NewRepository(cfg *config.Config, logger *slog.Logger) *Repository {
	return &Repository{
		cfg:    cfg,
		logger: logger,
	}
}

// Record 는 지정 백엔드의 오늘자 사용량을 원자적으로 누적한다.
// 행이 없으면 생성하고, 있으면 DB 단 덧셈으로 갱신해 업데이트 유실을 막는다.
func (r *Repository) Record(
	ctx context.Context,
	backend catalog.Backend,
	tokens int64,
	requests int64,
	outcome Outcome,
) error {
	rateLimitHits, errorCount, err := outcomeCounters(tokens, requests, outcome)
	if err != nil {
		return err
	}
	return r.recordDelta(ctx, Today(), backend, tokens, requests, rateLimitHits, errorCount)
}

func (r *Repository) recordDelta(
	ctx context.Context,
	day time.Time,
	backend catalog.Backend,
	tokens int64,
	requests int64,
	rateLimitHits int64,
	errorCount int64,
) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}

	row := UsageRow{
		UsageDate:     DayKey(day),
		BackendID:     backend.String(),
		TokensUsed:    tokens,
		RequestCount:  requests,
		RateLimitHits: rateLimitHits,
		ErrorCount:    errorCount,
		LastUpdated:   time.Now().UTC(),
	}

	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "usage_date"}, {Name: "backend_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"tokens_used":     gorm.Expr("usage_records.tokens_used + EXCLUDED.tokens_used"),
			"request_count":   gorm.Expr("usage_records.request_count + EXCLUDED.request_count"),
			"rate_limit_hits": gorm.Expr("usage_records.rate_limit_hits + EXCLUDED.rate_limit_hits"),
			"error_count":     gorm.Expr("usage_records.error_count + EXCLUDED.error_count"),
			"last_updated":    gorm.Expr("EXCLUDED.last_updated"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	return nil
}

// Read 는 (일자, 백엔드) 레코드를 조회한다. 행이 없으면 0 값 레코드를 반환한다.
func (r *Repository) Read(ctx context.Context, day time.Time, backend catalog.Backend) (Record, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return Record{}, err
	}

	dayKey := DayKey(day)
	var row UsageRow
	result := db.WithContext(ctx).
		Where("usage_date = ? AND backend_id = ?", dayKey, backend.String()).
		First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return Record{Day: dayKey, Backend: backend}, nil
	}
	if result.Error != nil {
		return Record{}, result.Error
	}

	return recordFromRow(row), nil
}

// ReadDay 는 특정 일자의 모든 백엔드 레코드를 조회한다.
func (r *Repository) ReadDay(ctx context.Context, day time.Time) ([]Record, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var rows []UsageRow
	if err := db.WithContext(ctx).
		Where("usage_date = ?", DayKey(day)).
		Order("backend_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return recordsFromRows(rows), nil
}

// ReadRange 는 일자 범위(양끝 포함)의 레코드를 조회한다.
func (r *Repository) ReadRange(ctx context.Context, from time.Time, to time.Time) ([]Record, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var rows []UsageRow
	if err := db.WithContext(ctx).
		Where("usage_date >= ? AND usage_date <= ?", DayKey(from), DayKey(to)).
		Order("usage_date, backend_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return recordsFromRows(rows), nil
}

// Ping 은 DB 연결을 확인한다.
func (r *Repository) Ping(ctx context.Context) error {
	if _, err := r.getDB(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	sqlDB := r.sqlDB
	r.mu.Unlock()
	if sqlDB == nil {
		return errors.New("db not connected")
	}
	return sqlDB.PingContext(ctx)
}

// Close 는 DB 연결을 닫는다.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sqlDB == nil {
		return
	}
	_ = r.sqlDB.Close()
	r.sqlDB = nil
	r.db = nil
}

func recordFromRow(row UsageRow) Record {
	return Record{
		Day:           DayKey(row.UsageDate),
		Backend:       catalog.Backend(row.BackendID),
		TokensUsed:    row.TokensUsed,
		RequestCount:  row.RequestCount,
		RateLimitHits: row.RateLimitHits,
		ErrorCount:    row.ErrorCount,
		LastUpdated:   row.LastUpdated,
	}
}

func recordsFromRows(rows []UsageRow) []Record {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, recordFromRow(row))
	}
	return records
}

func (r *Repository) getDB(ctx context.Context) (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		return r.db, nil
	}
	if r.cfg == nil {
		return nil, errors.New("database config is nil")
	}

	hostUsed := r.cfg.Database.Host
	dsn := r.cfg.Database.DSN()
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil && shouldFallbackToLocalhost(err, r.cfg.Database.Host) {
		fallback := r.cfg.Database
		fallback.Host = "127.0.0.1"
		fallbackDSN := fallback.DSN()
		db, err = gorm.Open(postgres.Open(fallbackDSN), gormCfg)
		if err == nil {
			hostUsed = fallback.Host
			if r.logger != nil {
				r.logger.Warn(
					"ledger_db_host_fallback",
					"configured_host", r.cfg.Database.Host,
					"effective_host", hostUsed,
				)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if schemaErr := ensureLedgerSchema(db); schemaErr != nil {
		return nil, fmt.Errorf("prepare ledger db: %w", schemaErr)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get ledger db handle: %w", err)
	}

	sqlDB.SetMaxIdleConns(r.cfg.Database.MinPool)
	sqlDB.SetMaxOpenConns(r.cfg.Database.MaxPool)
	if r.cfg.Database.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(r.cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)
	}
	if r.cfg.Database.ConnMaxIdleTimeMinutes > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(r.cfg.Database.ConnMaxIdleTimeMinutes) * time.Minute)
	}

	if r.logger != nil {
		r.logger.Info("ledger_db_connected", "host", hostUsed, "name", r.cfg.Database.Name)
	}

	r.db = db
	r.sqlDB = sqlDB
	return db, nil
}

func ensureLedgerSchema(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if err := db.Exec(`
			CREATE TABLE IF NOT EXISTS usage_records (
				id BIGSERIAL PRIMARY KEY,
				usage_date DATE NOT NULL,
				backend_id TEXT NOT NULL,
				tokens_used BIGINT NOT NULL DEFAULT 0,
				request_count BIGINT NOT NULL DEFAULT 0,
				rate_limit_hits BIGINT NOT NULL DEFAULT 0,
				error_count BIGINT NOT NULL DEFAULT 0,
				last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`).Error; err != nil {
		return fmt.Errorf("create usage_records table: %w", err)
	}

	if err := db.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_records_date_backend
			ON usage_records (usage_date, backend_id)
		`).Error; err != nil {
		return fmt.Errorf("create usage_records unique index: %w", err)
	}

	return nil
}

func shouldFallbackToLocalhost(err error, host string) bool {
	if err == nil {
		return false
	}
	if host == "" || host == "127.0.0.1" || strings.EqualFold(host, "localhost") {
		return false
	}
	if !strings.EqualFold(host, "postgres") {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return strings.EqualFold(dnsErr.Name, host)
	}

	lower := strings.ToLower(err.Error())
	hostLower := strings.ToLower(host)
	if strings.Contains(lower, "lookup "+hostLower) && strings.Contains(lower, "no such host") {
		return true
	}
	return strings.Contains(lower, "no such host") && strings.Contains(lower, hostLower)
}
