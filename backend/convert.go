package backend

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

func toOpenAIMessages(input []*schema.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System, schema.User:
			content := resolveMessageContent(msg)
			if content == "" {
				continue
			}
			out = append(out, openai.ChatCompletionMessage{Role: string(msg.Role), Content: content})
		case schema.Assistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				callID := strings.TrimSpace(tc.ID)
				if callID == "" {
					continue
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   callID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      strings.TrimSpace(tc.Function.Name),
						Arguments: tc.Function.Arguments,
					},
				})
			}
			if oaiMsg.Content == "" && len(oaiMsg.ToolCalls) == 0 {
				continue
			}
			out = append(out, oaiMsg)
		case schema.Tool:
			if strings.TrimSpace(msg.ToolCallID) == "" {
				return nil, fmt.Errorf("tool message requires tool_call_id")
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}
	return out, nil
}

func resolveMessageContent(msg *schema.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if len(msg.UserInputMultiContent) > 0 {
		var builder strings.Builder
		for _, part := range msg.UserInputMultiContent {
			if part.Type == schema.ChatMessagePartTypeText {
				builder.WriteString(part.Text)
			}
		}
		return builder.String()
	}
	return ""
}

func messageFromOpenAI(msg openai.ChatCompletionMessage) *schema.Message {
	out := &schema.Message{
		Role:    schema.Assistant,
		Content: msg.Content,
	}
	for i, tc := range msg.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		out.ToolCalls = append(out.ToolCalls, toSchemaToolCall(tc, &index))
	}
	return out
}

// messageFromChunk 把一个流式分片转换为 schema.Message；没有任何有效信息的分片（如仅 usage）返回 nil。
func messageFromChunk(chunk openai.ChatCompletionStreamResponse) *schema.Message {
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	msg := &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Delta.Content,
	}
	for _, tc := range choice.Delta.ToolCalls {
		var index *int
		if tc.Index != nil {
			idx := *tc.Index
			index = &idx
		}
		msg.ToolCalls = append(msg.ToolCalls, toSchemaToolCall(tc, index))
	}
	if choice.FinishReason != "" {
		msg.ResponseMeta = &schema.ResponseMeta{FinishReason: string(choice.FinishReason)}
	}

	if msg.Content == "" && len(msg.ToolCalls) == 0 && msg.ResponseMeta == nil {
		return nil
	}
	return msg
}

func toSchemaToolCall(tc openai.ToolCall, index *int) schema.ToolCall {
	return schema.ToolCall{
		Index: index,
		ID:    tc.ID,
		Type:  string(tc.Type),
		Function: schema.FunctionCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		},
	}
}
