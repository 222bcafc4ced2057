package chatapi

import (
	"time"

	"github.com/google/uuid"
)

// HistoryMessage 客户端上传的历史消息。
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest POST /chat 的请求体。
type ChatRequest struct {
	Message string           `json:"message"`
	History []HistoryMessage `json:"history"`
}

// Product 是 search_products 返回给模型与客户端的商品投影。
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// APIError 请求在 SSE 打开之前被拒绝时返回的 JSON 错误体。
type APIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// HealthStatus GET /healthz 响应。
type HealthStatus struct {
	Status string `json:"status"`
	Time   int64  `json:"time"`
}

// NewChatID 生成单次聊天请求的 ID，用于日志关联。
func NewChatID() string {
	return "chat-" + uuid.New().String()[:8]
}

// NewHealthStatus 创建健康检查响应。
func NewHealthStatus(now time.Time) HealthStatus {
	return HealthStatus{Status: "ok", Time: now.Unix()}
}
