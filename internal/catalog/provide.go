package catalog

import (
	"errors"
	"fmt"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
)

// Provide 는 설정에서 카탈로그를 구성한다.
// CATALOG_FILE 이 지정되면 파일 내용이 env 기본값을 통째로 대체한다.
func Provide(cfg *config.Config) (*Catalog, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if cfg.Catalog.File != "" {
		entries, err := LoadFile(cfg.Catalog.File)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		return New(entries)
	}

	return New([]BackendQuota{
		quotaFromConfig(BackendFlash, cfg.Catalog.Flash),
		quotaFromConfig(BackendFlashLite, cfg.Catalog.FlashLite),
		quotaFromConfig(BackendPro, cfg.Catalog.Pro),
	})
}

func quotaFromConfig(backend Backend, quota config.BackendQuotaConfig) BackendQuota {
	return BackendQuota{
		Backend:           backend,
		DailyTokenLimit:   quota.DailyTokenLimit,
		DailyRequestLimit: quota.DailyRequestLimit,
		Priority:          quota.Priority,
	}
}
