package chathttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/shopchat"
	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

type handler struct {
	engine       Runner
	systemPrompt string
	maxHistory   int
	maxBodyBytes int64
	newChatID    func() string
	now          func() time.Time
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rejectRequest(w, &httpError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	writeJSON(w, chatapi.NewHealthStatus(h.now()))
}

func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(w, r)
	if err != nil {
		rejectRequest(w, err)
		return
	}

	chatID := h.newChatID()
	logger := zerolog.Ctx(r.Context()).With().Str("chat_id", chatID).Logger()
	ctx := logger.WithContext(r.Context())

	events, err := NewEventWriter(w)
	if err != nil {
		rejectRequest(w, &httpError{Status: http.StatusInternalServerError, Message: "streaming not supported", Err: err})
		return
	}

	conversation := BuildConversation(h.systemPrompt, req.History, h.maxHistory, req.Message)
	logger.Info().Int("history", len(conversation)-2).Msg("chat session started")

	events.Open()
	_, err = h.engine.Run(ctx, conversation, events.Write)
	h.finish(ctx, events, err)
}

// finish 写入唯一的终止事件。客户端已断开时不再写任何内容。
func (h *handler) finish(ctx context.Context, events *EventWriter, runErr error) {
	logger := zerolog.Ctx(ctx)
	if runErr == nil {
		if err := events.Write(chatapi.EndEvent{}); err != nil {
			logger.Info().Err(err).Msg("failed to write end event")
			return
		}
		logger.Info().Msg("chat session completed")
		return
	}

	if ctx.Err() != nil {
		logger.Info().Err(runErr).Msg("client disconnected, chat session aborted")
		return
	}

	logger.Error().Err(runErr).Msg("chat session failed")
	if err := events.Write(chatapi.ErrorEvent{Message: shopchat.GenericErrorMessage}); err != nil {
		logger.Info().Err(err).Msg("failed to write error event")
	}
}

func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request) (chatapi.ChatRequest, error) {
	if r.Method != http.MethodPost {
		return chatapi.ChatRequest{}, &httpError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return chatapi.ChatRequest{}, &httpError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large", Err: err}
		}
		return chatapi.ChatRequest{}, &httpError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err}
	}

	var req chatapi.ChatRequest
	if err := sonic.ConfigDefault.Unmarshal(data, &req); err != nil {
		return chatapi.ChatRequest{}, &httpError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err}
	}
	if strings.TrimSpace(req.Message) == "" {
		return chatapi.ChatRequest{}, &httpError{Status: http.StatusBadRequest, Message: "message is required"}
	}
	return req, nil
}
