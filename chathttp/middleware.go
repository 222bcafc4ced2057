package chathttp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
)

type MiddlewareOptions struct {
	// ServiceName 写入访问日志，默认 "shopchat"。
	ServiceName string
	// AllowedOrigins 默认 ["*"]。
	AllowedOrigins []string
	// AccessLog 为 false 时不记录访问日志。
	AccessLog bool
	// AccessLogJSON 访问日志是否为 JSON。
	AccessLogJSON bool
	AccessLogLevel slog.Level
}

// WithMiddleware 在 h 外层加上访问日志与 CORS（含预检请求）。
func WithMiddleware(h http.Handler, opts MiddlewareOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	out := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	})(h)

	if opts.AccessLog {
		name := opts.ServiceName
		if name == "" {
			name = "shopchat"
		}
		logger := httplog.NewLogger(name, httplog.Options{
			LogLevel: opts.AccessLogLevel,
			JSON:     opts.AccessLogJSON,
			Concise:  true,
		})
		out = httplog.RequestLogger(logger)(out)
	}
	return out
}
