package auth

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider 根据来源创建 Provider。
// source 允许：env/file/codex/auto/none；空值按 env 处理。file 来源需要 keyFile。
func NewProvider(source, keyFile string) (Provider, error) {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		s = string(SourceEnv)
	}
	switch Source(s) {
	case SourceEnv:
		return &envProvider{}, nil
	case SourceFile:
		if strings.TrimSpace(keyFile) == "" {
			return nil, fmt.Errorf("auth source file requires an api key file path")
		}
		return &fileProvider{path: strings.TrimSpace(keyFile)}, nil
	case SourceCodex:
		return &codexProvider{}, nil
	case SourceNone:
		return noneProvider{}, nil
	case SourceAuto:
		providers := []Provider{&envProvider{}}
		if strings.TrimSpace(keyFile) != "" {
			providers = append(providers, &fileProvider{path: strings.TrimSpace(keyFile)})
		}
		providers = append(providers, &codexProvider{})
		return &autoProvider{providers: providers}, nil
	default:
		return nil, fmt.Errorf("unsupported auth source: %s", source)
	}
}

type autoProvider struct {
	providers []Provider
}

func (p *autoProvider) APIKey(ctx context.Context) (string, error) {
	var lastErr error
	for _, provider := range p.providers {
		key, err := provider.APIKey(ctx)
		if err == nil && strings.TrimSpace(key) != "" {
			return key, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("no api key available")
}

type noneProvider struct{}

func (noneProvider) APIKey(ctx context.Context) (string, error) { return "", nil }
