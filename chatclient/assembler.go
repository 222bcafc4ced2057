package chatclient

import (
	"context"
	"strings"

	"github.com/LubyRuffy/shopchat"
	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/rs/zerolog"
)

// Message 一条已完成的助手消息。
type Message struct {
	Content string
	// Failed 为 true 时 Content 是固定的失败提示。
	Failed    bool
	ToolCalls []chatapi.ToolCallEvent
}

// Assembler 把事件序列折叠为一条增长中的助手消息。
// text 追加到 Live；tool_call 只记录；end 把 Live 定稿为一条消息并重置；
// error 以固定失败文案定稿并重置。
type Assembler struct {
	live      strings.Builder
	toolCalls []chatapi.ToolCallEvent
	messages  []Message
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Apply 折叠一个事件。返回值为 true 表示本次事件完成了一条消息。
func (a *Assembler) Apply(ctx context.Context, ev chatapi.Event) bool {
	switch e := ev.(type) {
	case chatapi.TextEvent:
		a.live.WriteString(e.Content)
	case chatapi.ToolCallEvent:
		zerolog.Ctx(ctx).Debug().
			Str("tool", e.Name).
			Str("tool_call_id", e.ToolCallID).
			Int("results", len(e.Result)).
			Msg("tool call")
		a.toolCalls = append(a.toolCalls, e)
	case chatapi.EndEvent:
		a.finalize(Message{Content: a.live.String()})
		return true
	case chatapi.ErrorEvent:
		zerolog.Ctx(ctx).Warn().Str("message", e.Message).Msg("chat session failed")
		a.Fail()
		return true
	}
	return false
}

// Fail 以固定失败文案定稿当前消息，用于 error 事件或传输中断。
func (a *Assembler) Fail() {
	a.finalize(Message{Content: shopchat.ClientFailureMessage, Failed: true})
}

func (a *Assembler) finalize(msg Message) {
	msg.ToolCalls = a.toolCalls
	a.messages = append(a.messages, msg)
	a.live.Reset()
	a.toolCalls = nil
}

// Live 当前正在增长的文本。
func (a *Assembler) Live() string {
	return a.live.String()
}

// Messages 已定稿的消息（副本）。
func (a *Assembler) Messages() []Message {
	return append([]Message(nil), a.messages...)
}

// Last 最后一条定稿消息。
func (a *Assembler) Last() (Message, bool) {
	if len(a.messages) == 0 {
		return Message{}, false
	}
	return a.messages[len(a.messages)-1], true
}
