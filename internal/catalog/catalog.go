package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownBackend 는 카탈로그에 없는 백엔드일 때 반환된다.
var ErrUnknownBackend = errors.New("unknown backend")

// Backend 는 라우팅 대상 생성 백엔드 식별자다.
// 고정 집합이며 런타임에 추가되지 않는다.
type Backend string

const (
	// BackendFlash 는 기본 생성용 gemini-3-flash 백엔드다.
	BackendFlash Backend = "gemini-3-flash"
	// BackendFlashLite 는 경량 폴백용 gemini-3-flash-lite 백엔드다.
	BackendFlashLite Backend = "gemini-3-flash-lite"
	// BackendPro 는 고품질 생성용 gemini-3-pro 백엔드다.
	BackendPro Backend = "gemini-3-pro"
)

// All 는 알려진 모든 백엔드를 반환한다.
func All() []Backend {
	return []Backend{BackendFlash, BackendFlashLite, BackendPro}
}

// Parse 는 문자열을 Backend 로 변환한다.
func Parse(value string) (Backend, error) {
	for _, backend := range All() {
		if string(backend) == value {
			return backend, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, value)
}

// String 은 백엔드 식별자 문자열을 반환한다.
func (b Backend) String() string {
	return string(b)
}

// BackendQuota 는 백엔드별 일일 한도와 우선순위다.
type BackendQuota struct {
	Backend           Backend
	DailyTokenLimit   int64
	DailyRequestLimit int64
	Priority          int
}

// Catalog 는 시작 시 한 번 로드되는 불변 백엔드 카탈로그다.
// 엔트리는 우선순위 오름차순으로 정렬되어 있다.
type Catalog struct {
	entries   []BackendQuota
	byBackend map[Backend]BackendQuota
}

// New 는 카탈로그를 생성하고 검증한다.
func New(entries []BackendQuota) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, errors.New("catalog is empty")
	}

	byBackend := make(map[Backend]BackendQuota, len(entries))
	sorted := make([]BackendQuota, 0, len(entries))
	for _, entry := range entries {
		if _, err := Parse(string(entry.Backend)); err != nil {
			return nil, err
		}
		if _, exists := byBackend[entry.Backend]; exists {
			return nil, fmt.Errorf("duplicate backend: %s", entry.Backend)
		}
		if entry.DailyTokenLimit < 0 || entry.DailyRequestLimit < 0 {
			return nil, fmt.Errorf("negative limit for backend: %s", entry.Backend)
		}
		if entry.Priority <= 0 {
			return nil, fmt.Errorf("priority must be positive: %s", entry.Backend)
		}
		byBackend[entry.Backend] = entry
		sorted = append(sorted, entry)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Catalog{
		entries:   sorted,
		byBackend: byBackend,
	}, nil
}

// Entries 는 우선순위 순 엔트리 복사본을 반환한다.
func (c *Catalog) Entries() []BackendQuota {
	entries := make([]BackendQuota, len(c.entries))
	copy(entries, c.entries)
	return entries
}

// Quota 는 특정 백엔드의 한도를 반환한다.
func (c *Catalog) Quota(backend Backend) (BackendQuota, bool) {
	quota, ok := c.byBackend[backend]
	return quota, ok
}

// Backends 는 우선순위 순 백엔드 목록을 반환한다.
func (c *Catalog) Backends() []Backend {
	backends := make([]Backend, 0, len(c.entries))
	for _, entry := range c.entries {
		backends = append(backends, entry.Backend)
	}
	return backends
}

// Size 는 카탈로그의 백엔드 수를 반환한다.
func (c *Catalog) Size() int {
	return len(c.entries)
}
