package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	EnvAPIKey = "SHOPCHAT_API_KEY"
	// EnvOpenAIAPIKey 是未设置 EnvAPIKey 时的兜底。
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

type envProvider struct{}

func (p *envProvider) APIKey(ctx context.Context) (string, error) {
	for _, name := range []string{EnvAPIKey, EnvOpenAIAPIKey} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%s is not set", EnvAPIKey)
}
