package auth

import "context"

// Provider 用于从不同来源读取模型服务的 API key。
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

type Source string

const (
	SourceEnv   Source = "env"
	SourceFile  Source = "file"
	SourceCodex Source = "codex"
	SourceAuto  Source = "auto"
	// SourceNone 表示不鉴权，适用于本地 Ollama/LM Studio 等 OpenAI 兼容服务。
	SourceNone Source = "none"
)
