// Package config 加载服务端与客户端配置，优先级：命令行 > 环境变量 (SHOPCHAT_*) > 配置文件 > 默认值。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LubyRuffy/shopchat"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "SHOPCHAT"

// Server 是 shopchat-server 的配置。
type Server struct {
	Listen          string
	BasePath        string
	ProviderURL     string
	Model           string
	AuthSource      string
	APIKeyFile      string
	Temperature     *float32
	ReasoningEffort string
	SystemPrompt    string

	MaxToolRounds     int
	StreamIdleTimeout time.Duration
	MaxHistory        int

	CatalogDSN  string
	CatalogSeed string

	LogLevel       string
	LogFormat      string
	AccessLog      bool
	AllowedOrigins []string
}

// Client 是 shopchat 终端客户端的配置。
type Client struct {
	ServerURL string
	Timeout   time.Duration
	LogLevel  string
	LogFormat string
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// LoadServer 解析 args（不含程序名）。
func LoadServer(args []string) (Server, error) {
	fs := pflag.NewFlagSet("shopchat-server", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml/json/toml)")
	fs.String("listen", "127.0.0.1:8080", "listen address")
	fs.String("base-path", "/api", "base path prefix")
	fs.String("provider-url", shopchat.DefaultProviderURL, "OpenAI compatible base url")
	fs.String("model", shopchat.DefaultModel, "model id")
	fs.String("auth-source", "env", "api key source: env|file|codex|auto|none")
	fs.String("api-key-file", "", "api key file for auth-source file/auto")
	fs.String("temperature", "", "sampling temperature (empty: provider default)")
	fs.String("reasoning-effort", "", "reasoning_effort passed to the provider (low|medium|high|xhigh)")
	fs.String("system-prompt", "", "system prompt (default: built-in shop assistant prompt)")
	fs.Int("max-tool-rounds", 1, "tool call round trips per request (0 disables tools)")
	fs.Duration("stream-idle-timeout", 60*time.Second, "max wait between model stream chunks (0 disables)")
	fs.Int("max-history", 20, "max history messages forwarded to the model (0: unlimited)")
	fs.String("catalog-dsn", "", "sqlite dsn for the product catalog (empty: in-memory)")
	fs.String("catalog-seed", "", "json file of products loaded at startup")
	fs.String("log-level", "info", "log level: debug|info|warn|error")
	fs.String("log-format", "json", "log format: json|console")
	fs.Bool("access-log", true, "write http access log")
	fs.StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")
	if err := fs.Parse(args); err != nil {
		return Server{}, err
	}

	v, err := newViper(fs)
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Listen:            v.GetString("listen"),
		BasePath:          v.GetString("base-path"),
		ProviderURL:       shopchat.NormalizeProviderURL(v.GetString("provider-url")),
		Model:             strings.TrimSpace(v.GetString("model")),
		AuthSource:        v.GetString("auth-source"),
		APIKeyFile:        v.GetString("api-key-file"),
		ReasoningEffort:   v.GetString("reasoning-effort"),
		SystemPrompt:      v.GetString("system-prompt"),
		MaxToolRounds:     v.GetInt("max-tool-rounds"),
		StreamIdleTimeout: v.GetDuration("stream-idle-timeout"),
		MaxHistory:        v.GetInt("max-history"),
		CatalogDSN:        v.GetString("catalog-dsn"),
		CatalogSeed:       v.GetString("catalog-seed"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
		AccessLog:         v.GetBool("access-log"),
		AllowedOrigins:    v.GetStringSlice("allowed-origins"),
	}
	if raw := strings.TrimSpace(v.GetString("temperature")); raw != "" {
		t, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return Server{}, fmt.Errorf("invalid temperature %q: %w", raw, err)
		}
		t32 := float32(t)
		cfg.Temperature = &t32
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}
	if c.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("max-tool-rounds must be >= 0"))
	}
	if c.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("max-history must be >= 0"))
	}
	if c.StreamIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("stream-idle-timeout must be >= 0"))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2]"))
	}
	return errors.Join(errs...)
}

// LoadClient 解析终端客户端参数。
func LoadClient(args []string) (Client, error) {
	fs := pflag.NewFlagSet("shopchat", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml/json/toml)")
	fs.String("server-url", "http://127.0.0.1:8080/api", "shopchat server base url")
	fs.Duration("timeout", 5*time.Minute, "per message timeout")
	fs.String("log-level", "warn", "log level: debug|info|warn|error")
	fs.String("log-format", "console", "log format: json|console")
	if err := fs.Parse(args); err != nil {
		return Client{}, err
	}

	v, err := newViper(fs)
	if err != nil {
		return Client{}, err
	}
	cfg := Client{
		ServerURL: strings.TrimSpace(v.GetString("server-url")),
		Timeout:   v.GetDuration("timeout"),
		LogLevel:  v.GetString("log-level"),
		LogFormat: v.GetString("log-format"),
	}
	if cfg.ServerURL == "" {
		return Client{}, fmt.Errorf("server-url is required")
	}
	return cfg, nil
}

// LoadDotEnv 依次加载存在的 .env 文件，已存在的环境变量不会被覆盖；文件不存在不算错误。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
