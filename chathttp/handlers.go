package chathttp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/shopchat"
	"github.com/LubyRuffy/shopchat/chatapi"
)

const defaultMaxBodyBytes = 1 << 20

func Handlers(cfg Config) (chatHandler http.HandlerFunc, healthHandler http.HandlerFunc, err error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	h := &handler{
		engine:       resolved.Engine,
		systemPrompt: resolved.SystemPrompt,
		maxHistory:   resolved.MaxHistory,
		maxBodyBytes: resolved.MaxBodyBytes,
		newChatID:    resolved.NewChatID,
		now:          resolved.Now,
	}
	return h.handleChat, h.handleHealth, nil
}

type resolvedConfig struct {
	BasePath     string
	Engine       Runner
	SystemPrompt string
	MaxHistory   int
	MaxBodyBytes int64
	NewChatID    func() string
	Now          func() time.Time
}

func resolveConfig(cfg Config) (resolvedConfig, error) {
	if cfg.Engine == nil {
		return resolvedConfig{}, fmt.Errorf("Engine is required")
	}

	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = shopchat.DefaultSystemPrompt
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	newChatID := cfg.NewChatID
	if newChatID == nil {
		newChatID = chatapi.NewChatID
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return resolvedConfig{
		BasePath:     normalizeBasePath(cfg.BasePath),
		Engine:       cfg.Engine,
		SystemPrompt: prompt,
		MaxHistory:   cfg.MaxHistory,
		MaxBodyBytes: maxBody,
		NewChatID:    newChatID,
		Now:          now,
	}, nil
}
