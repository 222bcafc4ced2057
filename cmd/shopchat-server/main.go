package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LubyRuffy/shopchat/auth"
	"github.com/LubyRuffy/shopchat/backend"
	"github.com/LubyRuffy/shopchat/catalog"
	"github.com/LubyRuffy/shopchat/chatflow"
	"github.com/LubyRuffy/shopchat/chathttp"
	"github.com/LubyRuffy/shopchat/config"
	"github.com/LubyRuffy/shopchat/logging"
	"github.com/LubyRuffy/shopchat/tools"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const serverShutdownTimeout = 5 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg, err := config.LoadServer(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if _, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg config.Server) error {
	handler, closer, err := newServerHandler(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	local := addrForLocalClient(ln.Addr().String())
	basePath := "/" + strings.Trim(cfg.BasePath, "/")
	log.Info().Str("addr", ln.Addr().String()).Str("model", cfg.Model).Str("provider", cfg.ProviderURL).Msg("shopchat server listening")
	log.Info().Msgf("try: curl -N http://%s%s/chat -H 'Content-Type: application/json' -d '{\"message\":\"gợi ý sản phẩm chứa niacinamide\",\"history\":[]}'", local, basePath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newServerHandler 组装目录、模型、工具、编排引擎与 HTTP 路由。返回的 io.Closer 负责释放目录连接。
func newServerHandler(ctx context.Context, cfg config.Server) (http.Handler, io.Closer, error) {
	store, err := catalog.Open(cfg.CatalogDSN)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (http.Handler, io.Closer, error) {
		_ = store.Close()
		return nil, nil, err
	}

	if seed := strings.TrimSpace(cfg.CatalogSeed); seed != "" {
		n, err := store.LoadSeedFile(ctx, seed)
		if err != nil {
			return fail(err)
		}
		log.Info().Int("products", n).Str("file", seed).Msg("catalog seeded")
	}
	if count, err := store.Count(ctx); err == nil && count == 0 {
		log.Warn().Msg("catalog is empty, search_products will always return no results")
	}

	provider, err := auth.NewProvider(cfg.AuthSource, cfg.APIKeyFile)
	if err != nil {
		return fail(err)
	}
	if _, err := provider.APIKey(ctx); err != nil {
		return fail(fmt.Errorf("api key not available: %w", err))
	}

	model, err := backend.NewChatModel(backend.ChatModelConfig{
		Model:           cfg.Model,
		BaseURL:         cfg.ProviderURL,
		HTTPClient:      auth.NewHTTPClient(provider, nil),
		Temperature:     cfg.Temperature,
		ReasoningEffort: cfg.ReasoningEffort,
	})
	if err != nil {
		return fail(err)
	}

	dispatcher, err := tools.NewCatalogDispatcher(store)
	if err != nil {
		return fail(err)
	}
	engine, err := chatflow.NewEngine(chatflow.EngineConfig{
		Model:             model,
		Dispatcher:        dispatcher,
		MaxToolRounds:     cfg.MaxToolRounds,
		StreamIdleTimeout: cfg.StreamIdleTimeout,
	})
	if err != nil {
		return fail(err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	err = chathttp.RegisterGinRoutes(r, chathttp.Config{
		BasePath:     cfg.BasePath,
		Engine:       engine,
		SystemPrompt: cfg.SystemPrompt,
		MaxHistory:   cfg.MaxHistory,
	})
	if err != nil {
		return fail(fmt.Errorf("register routes failed: %w", err))
	}

	handler := chathttp.WithMiddleware(r, chathttp.MiddlewareOptions{
		ServiceName:    "shopchat-server",
		AllowedOrigins: cfg.AllowedOrigins,
		AccessLog:      cfg.AccessLog,
		AccessLogJSON:  !strings.EqualFold(cfg.LogFormat, "console"),
	})
	return handler, store, nil
}

// addrForLocalClient 把监听地址转换为本机客户端可访问的地址（通配地址替换为 127.0.0.1）。
func addrForLocalClient(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("127.0.0.1", port)
	default:
		return addr
	}
}
