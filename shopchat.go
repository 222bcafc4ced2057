package shopchat

import "strings"

const (
	// DefaultProviderURL 是 OpenAI 兼容 chat/completions 接口的默认地址（不含 /chat/completions）。
	DefaultProviderURL = "https://api.openai.com/v1"
	// DefaultModel 是未指定模型时使用的模型 ID。
	DefaultModel = "gpt-4o-mini"

	// MaxSearchResults 是 search_products 单次返回的最大商品数，用于控制续写上下文体积。
	MaxSearchResults = 5

	// GenericErrorMessage 是会话致命错误时写入 error 事件的文案，不携带任何后端细节。
	GenericErrorMessage = "the assistant is temporarily unavailable, please try again later"
	// ClientFailureMessage 是客户端收到 error 事件后展示给用户的固定文案。
	ClientFailureMessage = "Sorry, something went wrong. Please try again."
)

// DefaultSystemPrompt 是导购助手的默认系统提示词。
const DefaultSystemPrompt = "You are a friendly shopping assistant for an online cosmetics store. " +
	"When the user asks about products, ingredients or recommendations, call the search_products tool " +
	"with a short keyword and answer only from the returned products. " +
	"Reply in the same language the user writes in."

// RoleAllowedInHistory 判断客户端上传的历史消息角色是否允许进入对话。
// 只接受 user/assistant，system/tool 由服务端自行生成。
func RoleAllowedInHistory(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "assistant":
		return true
	default:
		return false
	}
}

// NormalizeProviderURL 清理 provider 地址：去空白、去掉尾部的 / 与误带的 /chat/completions。
func NormalizeProviderURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultProviderURL
	}
	trimmed = strings.TrimRight(trimmed, "/")
	trimmed = strings.TrimSuffix(trimmed, "/chat/completions")
	return strings.TrimRight(trimmed, "/")
}
