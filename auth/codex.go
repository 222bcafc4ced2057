package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
)

type codexAuthFile struct {
	OpenAIAPIKey string `json:"OPENAI_API_KEY"`
}

// ReadCodexAPIKeyFromPath 读取 codex CLI auth.json 中的 OPENAI_API_KEY。
// ChatGPT 登录得到的 tokens.access_token 不能用于 chat/completions，不会被读取。
func ReadCodexAPIKeyFromPath(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read codex auth file: %w", err)
	}

	var auth codexAuthFile
	if err := sonic.Unmarshal(data, &auth); err != nil {
		return "", fmt.Errorf("failed to parse codex auth file: %w", err)
	}

	key := strings.TrimSpace(auth.OpenAIAPIKey)
	if key == "" {
		return "", fmt.Errorf("codex auth missing OPENAI_API_KEY")
	}
	return key, nil
}

func codexDefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codex", "auth.json"), nil
}

type codexProvider struct{}

func (p *codexProvider) APIKey(ctx context.Context) (string, error) {
	path, err := codexDefaultPath()
	if err != nil {
		return "", err
	}
	return ReadCodexAPIKeyFromPath(path)
}
