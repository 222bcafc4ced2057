package chatapi

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// EventType 是线路事件的判别字段取值。
type EventType string

const (
	EventText     EventType = "text"
	EventToolCall EventType = "tool_call"
	EventEnd      EventType = "end"
	EventError    EventType = "error"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidEvent     = errors.New("invalid event")
)

// Event 是 SSE 会话中的一个事件。实现只有本包内的四种类型。
type Event interface {
	Type() EventType
	// Terminal 为 true 时该事件结束会话，之后不允许再有事件。
	Terminal() bool
	isEvent()
}

// TextEvent 一段助手文本，按到达顺序拼接。
type TextEvent struct {
	Content string
}

// ToolCallEvent 一次已完成工具调用的通知（仅供展示，不影响正确性）。
type ToolCallEvent struct {
	ToolCallID string
	Name       string
	Result     []Product
}

// EndEvent 会话正常结束。
type EndEvent struct{}

// ErrorEvent 会话因致命错误结束，替代 EndEvent。
type ErrorEvent struct {
	Message string
}

func (TextEvent) Type() EventType     { return EventText }
func (ToolCallEvent) Type() EventType { return EventToolCall }
func (EndEvent) Type() EventType      { return EventEnd }
func (ErrorEvent) Type() EventType    { return EventError }

func (TextEvent) Terminal() bool     { return false }
func (ToolCallEvent) Terminal() bool { return false }
func (EndEvent) Terminal() bool      { return true }
func (ErrorEvent) Terminal() bool    { return true }

func (TextEvent) isEvent()     {}
func (ToolCallEvent) isEvent() {}
func (EndEvent) isEvent()      {}
func (ErrorEvent) isEvent()    {}

type eventHeader struct {
	Type EventType `json:"type"`
}

type textWire struct {
	Type    EventType `json:"type"`
	Content *string   `json:"content"`
}

type toolCallWire struct {
	Type       EventType  `json:"type"`
	ToolCallID string     `json:"tool_call_id"`
	Name       string     `json:"name"`
	Result     *[]Product `json:"result"`
}

type errorWire struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// MarshalEvent 把事件编码为单行 JSON（不含 data: 前缀）。
// tool_call 的 result 在无结果时编码为 []，不会省略。
func MarshalEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case TextEvent:
		content := e.Content
		return sonic.Marshal(textWire{Type: EventText, Content: &content})
	case ToolCallEvent:
		result := e.Result
		if result == nil {
			result = []Product{}
		}
		return sonic.Marshal(toolCallWire{Type: EventToolCall, ToolCallID: e.ToolCallID, Name: e.Name, Result: &result})
	case EndEvent:
		return sonic.Marshal(eventHeader{Type: EventEnd})
	case ErrorEvent:
		return sonic.Marshal(errorWire{Type: EventError, Message: e.Message})
	case nil:
		return nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventType, ev)
	}
}

// UnmarshalEvent 解析一行事件 JSON 并校验必需字段。
func UnmarshalEvent(data []byte) (Event, error) {
	var header eventHeader
	if err := sonic.ConfigStd.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch header.Type {
	case EventText:
		var w textWire
		if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if w.Content == nil {
			return nil, fmt.Errorf("%w: text event without content", ErrInvalidEvent)
		}
		return TextEvent{Content: *w.Content}, nil
	case EventToolCall:
		var w toolCallWire
		if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if w.Result == nil {
			return nil, fmt.Errorf("%w: tool_call event without result", ErrInvalidEvent)
		}
		result := *w.Result
		if result == nil {
			result = []Product{}
		}
		return ToolCallEvent{ToolCallID: w.ToolCallID, Name: w.Name, Result: result}, nil
	case EventEnd:
		return EndEvent{}, nil
	case EventError:
		var w errorWire
		if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return ErrorEvent{Message: w.Message}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, header.Type)
	}
}
