// Package chatflow 编排一次聊天请求：消费模型流，累积工具调用，执行工具后续写对话。
package chatflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/LubyRuffy/shopchat/backend"
	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/LubyRuffy/shopchat/tools"
	"github.com/bytedance/sonic"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStreamIdle 模型流在 StreamIdleTimeout 内没有任何分片。
var ErrStreamIdle = errors.New("model stream idle timeout")

// Emitter 接收需要下发给客户端的事件。返回错误视为会话致命错误。
type Emitter func(ev chatapi.Event) error

// Dispatcher 是引擎依赖的工具执行能力。
type Dispatcher interface {
	Tools() []*schema.ToolInfo
	Dispatch(ctx context.Context, call schema.ToolCall) (tools.ToolResult, tools.Status)
}

type EngineConfig struct {
	// Model 是未绑定工具的模型，引擎按轮次决定是否 WithTools。
	Model      einoModel.ToolCallingChatModel
	Dispatcher Dispatcher
	// MaxToolRounds 是单个请求允许的工具往返次数，0 表示不向模型声明工具。
	MaxToolRounds int
	// StreamIdleTimeout 是单个模型流两次分片之间的最长等待，0 表示不限制。
	StreamIdleTimeout time.Duration
}

// Engine 无状态，可被多个请求并发使用；对话列表只属于单次 Run。
type Engine struct {
	model         einoModel.ToolCallingChatModel
	dispatcher    Dispatcher
	maxToolRounds int
	idleTimeout   time.Duration
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxToolRounds < 0 {
		return nil, fmt.Errorf("max tool rounds must be >= 0, got %d", cfg.MaxToolRounds)
	}
	if cfg.MaxToolRounds > 0 && cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required when tool rounds are enabled")
	}
	if cfg.StreamIdleTimeout < 0 {
		return nil, fmt.Errorf("stream idle timeout must be >= 0")
	}
	return &Engine{
		model:         cfg.Model,
		dispatcher:    cfg.Dispatcher,
		maxToolRounds: cfg.MaxToolRounds,
		idleTimeout:   cfg.StreamIdleTimeout,
	}, nil
}

// Run 执行一次完整的对话编排，返回追加了工具消息后的对话。
//
// 每一轮先打开模型流并把文本增量原样转发；流结束时若累积到工具调用（且仍有剩余轮次），
// 逐个执行并把 assistant(tool_calls) + tool 消息追加到对话，然后打开下一条流。
// Run 不发送 end/error 终止事件，由调用方根据返回值决定。
func (e *Engine) Run(ctx context.Context, conversation []*schema.Message, emit Emitter) ([]*schema.Message, error) {
	if emit == nil {
		return nil, fmt.Errorf("emitter is required")
	}
	logger := zerolog.Ctx(ctx)
	messages := append(make([]*schema.Message, 0, len(conversation)+4), conversation...)

	for round := 0; ; round++ {
		toolsEnabled := round < e.maxToolRounds
		calls, err := e.consumeStream(ctx, messages, toolsEnabled, emit)
		if err != nil {
			return messages, err
		}
		if len(calls) == 0 {
			return messages, nil
		}

		logger.Debug().Int("round", round+1).Int("tool_calls", len(calls)).Msg("tool call burst completed")
		messages, err = e.applyToolCalls(ctx, messages, calls, emit)
		if err != nil {
			return messages, err
		}
		logger.Debug().Int("round", round+1).Int("messages", len(messages)).Msg("opening continuation stream")
	}
}

type recvResult struct {
	msg *schema.Message
	err error
}

// consumeStream 消费一条模型流直到结束。只有看到 finish_reason=tool_calls 时才返回工具调用。
func (e *Engine) consumeStream(ctx context.Context, messages []*schema.Message, toolsEnabled bool, emit Emitter) ([]schema.ToolCall, error) {
	model := e.model
	if toolsEnabled {
		bound, err := e.model.WithTools(e.dispatcher.Tools())
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		model = bound
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 打开阶段（等待 provider 响应头）同样受 idle 超时约束
	var openTimer *time.Timer
	if e.idleTimeout > 0 {
		openTimer = time.AfterFunc(e.idleTimeout, cancel)
	}
	sr, err := model.Stream(streamCtx, messages)
	if openTimer != nil && !openTimer.Stop() {
		if err == nil {
			sr.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrStreamIdle
	}
	if err != nil {
		return nil, fmt.Errorf("open model stream: %w", err)
	}
	defer sr.Close()

	chunks := make(chan recvResult)
	go func() {
		for {
			msg, err := sr.Recv()
			select {
			case chunks <- recvResult{msg: msg, err: err}:
			case <-streamCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var idle <-chan time.Time
	var timer *time.Timer
	if e.idleTimeout > 0 {
		timer = time.NewTimer(e.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	acc := backend.NewToolCallAccumulator()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-idle:
			return nil, ErrStreamIdle
		case r := <-chunks:
			if errors.Is(r.err, io.EOF) {
				return acc.Calls(), nil
			}
			if r.err != nil {
				return nil, fmt.Errorf("read model stream: %w", r.err)
			}
			if timer != nil {
				timer.Reset(e.idleTimeout)
			}
			if r.msg == nil {
				continue
			}
			if r.msg.Content != "" {
				if err := emit(chatapi.TextEvent{Content: r.msg.Content}); err != nil {
					return nil, fmt.Errorf("emit text: %w", err)
				}
			}
			if toolsEnabled {
				acc.Add(r.msg.ToolCalls...)
				if backend.IsToolCallsFinish(r.msg) {
					acc.Freeze()
				}
			}
		}
	}
}

// applyToolCalls 按累积顺序执行工具调用。被跳过的调用（参数错误、未知工具、查询失败）不写入对话。
func (e *Engine) applyToolCalls(ctx context.Context, messages []*schema.Message, calls []schema.ToolCall, emit Emitter) ([]*schema.Message, error) {
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		if strings.TrimSpace(call.ID) == "" {
			call.ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if call.Type == "" {
			call.Type = "function"
		}

		result, status := e.dispatcher.Dispatch(ctx, call)
		if status != tools.StatusOK {
			continue
		}

		content, err := sonic.MarshalString(result)
		if err != nil {
			return messages, fmt.Errorf("encode tool result: %w", err)
		}
		messages = append(messages,
			&schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{call}},
			&schema.Message{Role: schema.Tool, ToolCallID: call.ID, Content: content},
		)

		ev := chatapi.ToolCallEvent{ToolCallID: call.ID, Name: result.Name, Result: result.Payload}
		if err := emit(ev); err != nil {
			return messages, fmt.Errorf("emit tool call: %w", err)
		}
	}
	return messages, nil
}
