package ledger

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
	"golang.org/x/sync/errgroup"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
)

// 증분 적용 스크립트. 카운터 덧셈과 TTL 갱신을 단일 원자 단위로 묶는다.
var recordScript = valkey.NewLuaScript(`
redis.call('HINCRBY', KEYS[1], 'tokens_used', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'request_count', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('HINCRBY', KEYS[1], 'rate_limit_hits', ARGV[3])
end
if tonumber(ARGV[4]) > 0 then
  redis.call('HINCRBY', KEYS[1], 'error_count', ARGV[4])
end
redis.call('HSET', KEYS[1], 'last_updated', ARGV[5])
if tonumber(ARGV[6]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[6])
end
return 1
`)

// ValkeyStore 는 Valkey 해시 기반 원장 저장소다.
// (일자, 백엔드)별 해시 키에 카운터를 보관하고 보존 기간 후 만료시킨다.
type ValkeyStore struct {
	client        valkey.Client
	cat           *catalog.Catalog
	logger        *slog.Logger
	retentionDays int
}

// NewValkeyStore 는 Valkey 원장 저장소를 생성한다.
func NewValkeyStore(cfg *config.Config, cat *catalog.Catalog, logger *slog.Logger) (*ValkeyStore, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cat == nil {
		return nil, errors.New("catalog is nil")
	}

	conn, err := parseValkeyURL(cfg.Valkey.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ledger store url: %w", err)
	}

	var tlsConfig *tls.Config
	if conn.useTLS {
		host, _, splitErr := net.SplitHostPort(conn.addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parse ledger store addr: %w", splitErr)
		}
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		TLSConfig:    tlsConfig,
		Username:     conn.username,
		Password:     conn.password,
		InitAddress:  []string{conn.addr},
		SelectDB:     conn.selectDB,
		DisableCache: cfg.Valkey.DisableCache,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	return newValkeyStore(client, cat, logger, cfg.Ledger.RetentionDays), nil
}

func newValkeyStore(client valkey.Client, cat *catalog.Catalog, logger *slog.Logger, retentionDays int) *ValkeyStore {
	return &ValkeyStore{
		client:        client,
		cat:           cat,
		logger:        logger,
		retentionDays: retentionDays,
	}
}

// usageKey (일자, 백엔드)별 해시 키
func usageKey(day time.Time, backend catalog.Backend) string {
	return fmt.Sprintf("usage:%s:%s", DayKey(day).Format("2006-01-02"), backend)
}

// Record 는 지정 백엔드의 오늘자 사용량을 단일 스크립트로 누적한다.
func (s *ValkeyStore) Record(
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
	return s.recordDelta(ctx, Today(), backend, tokens, requests, rateLimitHits, errorCount)
}

func (s *ValkeyStore) recordDelta(
	ctx context.Context,
	day time.Time,
	backend catalog.Backend,
	tokens int64,
	requests int64,
	rateLimitHits int64,
	errorCount int64,
) error {
	ttlSeconds := int64(0)
	if s.retentionDays > 0 {
		ttlSeconds = int64(s.retentionDays) * 86400
	}

	args := []string{
		strconv.FormatInt(tokens, 10),
		strconv.FormatInt(requests, 10),
		strconv.FormatInt(rateLimitHits, 10),
		strconv.FormatInt(errorCount, 10),
		time.Now().UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(ttlSeconds, 10),
	}

	key := usageKey(day, backend)
	if err := recordScript.Exec(ctx, s.client, []string{key}, args).Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	return nil
}

// Read 는 (일자, 백엔드) 레코드를 조회한다. 키가 없으면 0 값 레코드를 반환한다.
func (s *ValkeyStore) Read(ctx context.Context, day time.Time, backend catalog.Backend) (Record, error) {
	dayKey := DayKey(day)
	cmd := s.client.B().Hgetall().Key(usageKey(dayKey, backend)).Build()
	fields, err := s.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return Record{}, fmt.Errorf("read usage hash: %w", err)
	}

	record := Record{Day: dayKey, Backend: backend}
	if len(fields) == 0 {
		return record, nil
	}

	record.TokensUsed = parseCounter(fields["tokens_used"])
	record.RequestCount = parseCounter(fields["request_count"])
	record.RateLimitHits = parseCounter(fields["rate_limit_hits"])
	record.ErrorCount = parseCounter(fields["error_count"])
	if raw := fields["last_updated"]; raw != "" {
		if ts, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			record.LastUpdated = ts
		}
	}
	return record, nil
}

// ReadDay 는 특정 일자에 트래픽이 있었던 모든 백엔드 레코드를 조회한다.
// 카탈로그의 백엔드별로 병렬 조회한 뒤 0 값 레코드는 제외한다.
func (s *ValkeyStore) ReadDay(ctx context.Context, day time.Time) ([]Record, error) {
	backends := s.cat.Backends()
	results := make([]Record, len(backends))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, backend := range backends {
		group.Go(func() error {
			record, err := s.Read(groupCtx, day, backend)
			if err != nil {
				return err
			}
			results[i] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(results))
	for _, record := range results {
		if record.IsZero() {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Backend < records[j].Backend
	})
	return records, nil
}

// ReadRange 는 일자 범위(양끝 포함)의 레코드를 일자, 백엔드 순으로 조회한다.
func (s *ValkeyStore) ReadRange(ctx context.Context, from time.Time, to time.Time) ([]Record, error) {
	start := DayKey(from)
	end := DayKey(to)
	if end.Before(start) {
		return nil, errors.New("invalid range: to before from")
	}

	var records []Record
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayRecords, err := s.ReadDay(ctx, day)
		if err != nil {
			return nil, err
		}
		records = append(records, dayRecords...)
	}
	return records, nil
}

// Ping 은 Valkey 연결을 확인한다.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping valkey: %w", err)
	}
	return nil
}

// Close 는 Valkey 연결을 종료한다.
func (s *ValkeyStore) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Close()
}

func parseCounter(raw string) int64 {
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

type valkeyConnInfo struct {
	addr     string
	username string
	password string
	selectDB int
	useTLS   bool
}

func parseValkeyURL(raw string) (valkeyConnInfo, error) {
	if strings.TrimSpace(raw) == "" {
		return valkeyConnInfo{}, errors.New("ledger store url is empty")
	}

	if !strings.Contains(raw, "://") {
		return parseValkeyAddr(raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return valkeyConnInfo{}, fmt.Errorf("parse url: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return valkeyConnInfo{}, errors.New("ledger store host missing")
	}

	port := parsed.Port()
	if port == "" {
		port = "6379"
	}

	selectDB := 0
	if strings.TrimSpace(parsed.Path) != "" && parsed.Path != "/" {
		path := strings.TrimPrefix(parsed.Path, "/")
		db, err := strconv.Atoi(path)
		if err != nil {
			return valkeyConnInfo{}, fmt.Errorf("invalid ledger store db: %w", err)
		}
		if db < 0 {
			return valkeyConnInfo{}, errors.New("invalid ledger store db")
		}
		selectDB = db
	}

	username := ""
	password := ""
	if parsed.User != nil {
		username = parsed.User.Username()
		pw, _ := parsed.User.Password()
		password = pw
	}

	useTLS := strings.EqualFold(parsed.Scheme, "rediss")

	return valkeyConnInfo{
		addr:     net.JoinHostPort(host, port),
		username: username,
		password: password,
		selectDB: selectDB,
		useTLS:   useTLS,
	}, nil
}

func parseValkeyAddr(addr string) (valkeyConnInfo, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return valkeyConnInfo{}, errors.New("ledger store address is empty")
	}

	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		var addrErr *net.AddrError
		if !errors.As(err, &addrErr) {
			return valkeyConnInfo{}, fmt.Errorf("invalid ledger store address: %w", err)
		}
		switch addrErr.Err {
		case "missing port in address":
			host = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
			port = "6379"
		case "too many colons in address":
			host = trimmed
			port = "6379"
		default:
			return valkeyConnInfo{}, fmt.Errorf("invalid ledger store address: %w", err)
		}
	}

	if strings.TrimSpace(host) == "" {
		return valkeyConnInfo{}, errors.New("ledger store host missing")
	}

	return valkeyConnInfo{
		addr:     net.JoinHostPort(host, port),
		selectDB: 0,
		useTLS:   false,
	}, nil
}
