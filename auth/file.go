package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
)

type keyFile struct {
	APIKey string `json:"api_key"`
}

// ReadAPIKeyFromPath 读取 key 文件：JSON 形式 {"api_key": "..."}，或整个文件就是 key。
func ReadAPIKeyFromPath(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read api key file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if strings.HasPrefix(content, "{") {
		var f keyFile
		if err := sonic.UnmarshalString(content, &f); err != nil {
			return "", fmt.Errorf("failed to parse api key file: %w", err)
		}
		content = strings.TrimSpace(f.APIKey)
	}
	if content == "" {
		return "", fmt.Errorf("api key file %s is empty", path)
	}
	return content, nil
}

type fileProvider struct {
	path string
}

func (p *fileProvider) APIKey(ctx context.Context) (string, error) {
	return ReadAPIKeyFromPath(p.path)
}
