// Package tools 执行模型请求的工具调用。
//
// 工具边界是宽容的：参数不是合法 JSON、工具名未注册、查询失败都只影响当前这一次调用，
// 通过 Status 返回给调用方，不会中断整个会话。
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// ErrMalformedArguments 由 Handler 在参数无法解析时返回（可用 %w 包装）。
var ErrMalformedArguments = errors.New("malformed tool arguments")

// Status 是一次工具调用的结果分类。
type Status int

const (
	StatusOK Status = iota
	StatusMalformedArguments
	StatusUnknownTool
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMalformedArguments:
		return "malformed_arguments"
	case StatusUnknownTool:
		return "unknown_tool"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ToolResult 是写回对话的工具结果，Payload 永远不为 nil。
type ToolResult struct {
	ToolCallID string            `json:"tool_call_id"`
	Name       string            `json:"name"`
	Payload    []chatapi.Product `json:"result"`
}

// Handler 处理一次工具调用，arguments 为模型给出的原始 JSON 字符串。
type Handler func(ctx context.Context, arguments string) ([]chatapi.Product, error)

type registeredTool struct {
	info    *schema.ToolInfo
	handler Handler
}

// Dispatcher 按函数名把工具调用路由到已注册的 Handler。
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{tools: make(map[string]registeredTool)}
}

// Register 注册一个工具，名称重复时返回错误。
func (d *Dispatcher) Register(info *schema.ToolInfo, handler Handler) error {
	if info == nil {
		return fmt.Errorf("tool info is nil")
	}
	if handler == nil {
		return fmt.Errorf("tool %s handler is nil", info.Name)
	}
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	d.tools[name] = registeredTool{info: info, handler: handler}
	d.order = append(d.order, name)
	return nil
}

// Tools 返回按注册顺序排列的工具声明，用于绑定到模型。
func (d *Dispatcher) Tools() []*schema.ToolInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*schema.ToolInfo, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name].info)
	}
	return out
}

// Dispatch 执行一次完整的工具调用。只有 StatusOK 时 ToolResult 有意义。
func (d *Dispatcher) Dispatch(ctx context.Context, call schema.ToolCall) (ToolResult, Status) {
	name := strings.TrimSpace(call.Function.Name)
	logger := zerolog.Ctx(ctx).With().
		Str("tool", name).
		Str("tool_call_id", call.ID).
		Logger()

	d.mu.RLock()
	tool, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		logger.Warn().Msg("ignoring call to unknown tool")
		return ToolResult{}, StatusUnknownTool
	}

	payload, err := tool.handler(ctx, call.Function.Arguments)
	if err != nil {
		if errors.Is(err, ErrMalformedArguments) {
			logger.Warn().Err(err).Str("arguments", call.Function.Arguments).Msg("skipping tool call with malformed arguments")
			return ToolResult{}, StatusMalformedArguments
		}
		logger.Warn().Err(err).Msg("tool call failed")
		return ToolResult{}, StatusFailed
	}
	if payload == nil {
		payload = []chatapi.Product{}
	}

	logger.Debug().Int("results", len(payload)).Msg("tool call completed")
	return ToolResult{ToolCallID: call.ID, Name: name, Payload: payload}, StatusOK
}
