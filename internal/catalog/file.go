package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	Backend           string `yaml:"backend"`
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	DailyRequestLimit int64  `yaml:"daily_request_limit"`
	Priority          int    `yaml:"priority"`
}

type fileSpec struct {
	Backends []fileEntry `yaml:"backends"`
}

// LoadFile 은 YAML 카탈로그 파일에서 한도 엔트리를 읽는다.
func LoadFile(path string) ([]BackendQuota, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	entries := make([]BackendQuota, 0, len(spec.Backends))
	for _, item := range spec.Backends {
		backend, err := Parse(item.Backend)
		if err != nil {
			return nil, err
		}
		entries = append(entries, BackendQuota{
			Backend:           backend,
			DailyTokenLimit:   item.DailyTokenLimit,
			DailyRequestLimit: item.DailyRequestLimit,
			Priority:          item.Priority,
		})
	}
	return entries, nil
}
