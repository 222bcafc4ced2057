package chatclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/bytedance/sonic"
)

// Client 调用 POST {base}/chat。
type Client struct {
	chatURL    string
	httpClient *http.Client
}

// NewClient baseURL 形如 http://127.0.0.1:8080/api。
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		chatURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/chat",
		httpClient: httpClient,
	}
}

// Send 发送一次聊天请求并把事件依次交给 fn。
// 请求在 SSE 打开前被拒绝时返回服务端的错误信息。
func (c *Client) Send(ctx context.Context, req chatapi.ChatRequest, fn func(chatapi.Event) error) error {
	if req.History == nil {
		req.History = []chatapi.HistoryMessage{}
	}
	body, err := sonic.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return Decode(ctx, resp.Body, fn)
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr chatapi.APIError
	if err := sonic.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("chat request rejected (%d): %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("chat request rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

// Session 在客户端维护多轮历史：每轮成功后把用户消息和助手回复追加到历史。
type Session struct {
	client    *Client
	assembler *Assembler
	history   []chatapi.HistoryMessage
}

func NewSession(client *Client) *Session {
	return &Session{client: client, assembler: NewAssembler()}
}

// Ask 发送一条消息。onText 在每个 text 事件到达时收到增量（可为 nil）。
// 传输失败或服务端 error 事件都会得到 Failed 的消息，本轮不计入历史；
// 传输失败时同时返回错误。
func (s *Session) Ask(ctx context.Context, message string, onText func(delta string)) (Message, error) {
	req := chatapi.ChatRequest{
		Message: message,
		History: append([]chatapi.HistoryMessage(nil), s.history...),
	}

	completed := false
	err := s.client.Send(ctx, req, func(ev chatapi.Event) error {
		if t, ok := ev.(chatapi.TextEvent); ok && onText != nil {
			onText(t.Content)
		}
		if s.assembler.Apply(ctx, ev) {
			completed = true
		}
		return nil
	})
	if !completed {
		s.assembler.Fail()
	}

	msg, _ := s.assembler.Last()
	if !msg.Failed {
		s.history = append(s.history,
			chatapi.HistoryMessage{Role: "user", Content: message},
			chatapi.HistoryMessage{Role: "assistant", Content: msg.Content},
		)
	}
	return msg, err
}

// Client 返回会话使用的 Client。
func (s *Session) Client() *Client {
	return s.client
}

// History 当前历史（副本）。
func (s *Session) History() []chatapi.HistoryMessage {
	return append([]chatapi.HistoryMessage(nil), s.history...)
}
