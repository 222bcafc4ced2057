package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/LubyRuffy/shopchat"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

const streamBufferSize = 64

type ChatModelConfig struct {
	Model string
	// BaseURL 是 OpenAI 兼容接口地址，例如 https://openrouter.ai/api/v1。
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	Temperature *float32
	MaxTokens   int
	// ReasoningEffort 会透传到 `reasoning_effort`（如 low/medium/high），不支持时降级重试一次。
	ReasoningEffort string
}

// ChatModel 是基于 OpenAI 兼容 chat/completions 流式接口的 ToolCallingChatModel 实现。
// 流中的每个分片会原样转换为 schema.Message：Content 为文本增量，ToolCalls 为带 Index 的分片，
// finish_reason 放在 ResponseMeta 里，由上层自行拼接。
type ChatModel struct {
	config ChatModelConfig
	client *openai.Client
	tools  []openai.Tool
}

var _ einoModel.ToolCallingChatModel = (*ChatModel)(nil)

func NewChatModel(config ChatModelConfig) (*ChatModel, error) {
	if strings.TrimSpace(config.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	config.BaseURL = shopchat.NormalizeProviderURL(config.BaseURL)
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	clientConfig := openai.DefaultConfig(strings.TrimSpace(config.APIKey))
	clientConfig.BaseURL = config.BaseURL
	clientConfig.HTTPClient = config.HTTPClient

	return &ChatModel{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	req, err := m.buildRequest(input, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		retryReq, ok := reasoningFallbackRequest(req, err)
		if !ok {
			return nil, fmt.Errorf("provider request failed: %w", err)
		}
		resp, err = m.client.CreateChatCompletion(ctx, retryReq)
		if err != nil {
			return nil, fmt.Errorf("provider request failed: %w", err)
		}
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	choice := resp.Choices[0]
	msg := messageFromOpenAI(choice.Message)
	if choice.FinishReason != "" {
		msg.ResponseMeta = &schema.ResponseMeta{FinishReason: string(choice.FinishReason)}
	}
	return msg, nil
}

// Stream 打开一个生成流。打开失败（网络错误、非 2xx）同步返回；读取过程中的错误
// 通过 StreamReader.Recv 返回。ctx 取消会中断底层 HTTP 读取。
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.buildRequest(input, opts...)
	if err != nil {
		return nil, err
	}
	req.Stream = true

	stream, err := m.openStream(ctx, req)
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*schema.Message](streamBufferSize)
	go func() {
		defer sw.Close()
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, fmt.Errorf("provider stream read failed: %w", err))
				return
			}
			msg := messageFromChunk(chunk)
			if msg == nil {
				continue
			}
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (einoModel.ToolCallingChatModel, error) {
	converted, err := toolsFromSchema(tools)
	if err != nil {
		return nil, err
	}
	cloned := *m
	cloned.tools = converted
	return &cloned, nil
}

func (m *ChatModel) openStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err == nil {
		return stream, nil
	}
	retryReq, ok := reasoningFallbackRequest(req, err)
	if !ok {
		return nil, fmt.Errorf("provider stream request failed: %w", err)
	}
	stream, err = m.client.CreateChatCompletionStream(ctx, retryReq)
	if err != nil {
		return nil, fmt.Errorf("provider stream request failed: %w", err)
	}
	return stream, nil
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts ...einoModel.Option) (openai.ChatCompletionRequest, error) {
	messages, err := toOpenAIMessages(input)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	options := einoModel.GetCommonOptions(&einoModel.Options{Temperature: m.config.Temperature}, opts...)

	req := openai.ChatCompletionRequest{
		Model:           m.config.Model,
		Messages:        messages,
		Tools:           m.tools,
		ReasoningEffort: NormalizeReasoningEffort(m.config.ReasoningEffort),
	}
	if options.Model != nil && strings.TrimSpace(*options.Model) != "" {
		req.Model = strings.TrimSpace(*options.Model)
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		req.MaxCompletionTokens = *options.MaxTokens
	} else if m.config.MaxTokens > 0 {
		req.MaxCompletionTokens = m.config.MaxTokens
	}
	if len(options.Tools) > 0 {
		tools, err := toolsFromSchema(options.Tools)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		req.Tools = tools
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	return req, nil
}

// reasoningFallbackRequest 在后端明确拒绝 reasoning_effort 取值时给出降级后的请求。
func reasoningFallbackRequest(req openai.ChatCompletionRequest, err error) (openai.ChatCompletionRequest, bool) {
	if req.ReasoningEffort == "" {
		return req, false
	}
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) || apiErr == nil {
		return req, false
	}
	if !rejectsReasoningEffort(apiErr, req.ReasoningEffort) {
		return req, false
	}
	req.ReasoningEffort = downgradeReasoningEffort(req.ReasoningEffort)
	return req, true
}
