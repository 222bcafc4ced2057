package chathttp

import (
	"strings"

	"github.com/LubyRuffy/shopchat"
	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/cloudwego/eino/schema"
)

// BuildConversation 组装发给模型的初始对话：system、过滤后的历史、本次用户消息。
// 历史中只保留内容非空的 user/assistant 消息，再取最近 maxHistory 条（<=0 不截断）。
func BuildConversation(systemPrompt string, history []chatapi.HistoryMessage, maxHistory int, message string) []*schema.Message {
	kept := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		if !shopchat.RoleAllowedInHistory(m.Role) || strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := schema.User
		if strings.EqualFold(strings.TrimSpace(m.Role), string(schema.Assistant)) {
			role = schema.Assistant
		}
		kept = append(kept, &schema.Message{Role: role, Content: m.Content})
	}
	if maxHistory > 0 && len(kept) > maxHistory {
		kept = kept[len(kept)-maxHistory:]
	}

	out := make([]*schema.Message, 0, len(kept)+2)
	out = append(out, schema.SystemMessage(systemPrompt))
	out = append(out, kept...)
	out = append(out, schema.UserMessage(message))
	return out
}
