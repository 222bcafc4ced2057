package chathttp

import (
	"context"
	"time"

	"github.com/LubyRuffy/shopchat/chatflow"
	"github.com/cloudwego/eino/schema"
)

// Runner 执行一次对话编排，*chatflow.Engine 实现了它。
type Runner interface {
	Run(ctx context.Context, conversation []*schema.Message, emit chatflow.Emitter) ([]*schema.Message, error)
}

type Config struct {
	// BasePath 仅用于 Gin 注册路由时拼接路径，默认 "/api"。
	BasePath string
	// Engine 必填。
	Engine Runner
	// SystemPrompt 为空时使用 shopchat.DefaultSystemPrompt。
	SystemPrompt string
	// MaxHistory 最多转发给模型的历史消息条数（取最近的），<=0 表示不截断。
	MaxHistory int
	// MaxBodyBytes 请求体上限，默认 1MiB。
	MaxBodyBytes int64
	// NewChatID 可选，默认 chatapi.NewChatID。
	NewChatID func() string
	// Now 可选，默认 time.Now。
	Now func() time.Time
}
