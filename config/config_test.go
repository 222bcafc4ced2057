package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LubyRuffy/shopchat"
	"github.com/stretchr/testify/require"
)

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := LoadServer(nil)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", cfg.Listen)
	require.Equal(t, "/api", cfg.BasePath)
	require.Equal(t, shopchat.DefaultProviderURL, cfg.ProviderURL)
	require.Equal(t, shopchat.DefaultModel, cfg.Model)
	require.Equal(t, 1, cfg.MaxToolRounds)
	require.Equal(t, 60*time.Second, cfg.StreamIdleTimeout)
	require.Equal(t, 20, cfg.MaxHistory)
	require.Nil(t, cfg.Temperature)
	require.True(t, cfg.AccessLog)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadServer_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SHOPCHAT_MODEL", "env-model")
	t.Setenv("SHOPCHAT_MAX_TOOL_ROUNDS", "3")
	t.Setenv("SHOPCHAT_PROVIDER_URL", "http://localhost:11434/v1/chat/completions")

	cfg, err := LoadServer([]string{"--model", "flag-model", "--temperature", "0.3", "--stream-idle-timeout", "5s"})
	require.NoError(t, err)
	require.Equal(t, "flag-model", cfg.Model)
	require.Equal(t, 3, cfg.MaxToolRounds)
	require.Equal(t, "http://localhost:11434/v1", cfg.ProviderURL)
	require.Equal(t, 5*time.Second, cfg.StreamIdleTimeout)
	require.NotNil(t, cfg.Temperature)
	require.InDelta(t, 0.3, *cfg.Temperature, 1e-6)
}

func TestLoadServer_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 0.0.0.0:9090\nmax-history: 4\ncatalog-seed: products.json\n"), 0o600))

	cfg, err := LoadServer([]string{"--config", path})
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9090", cfg.Listen)
	require.Equal(t, 4, cfg.MaxHistory)
	require.Equal(t, "products.json", cfg.CatalogSeed)
}

func TestLoadServer_Validation(t *testing.T) {
	_, err := LoadServer([]string{"--max-tool-rounds", "-1"})
	require.Error(t, err)

	_, err = LoadServer([]string{"--model", " "})
	require.Error(t, err)

	_, err = LoadServer([]string{"--temperature", "hot"})
	require.Error(t, err)

	_, err = LoadServer([]string{"--temperature", "3"})
	require.Error(t, err)

	_, err = LoadServer([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	_, err = LoadServer([]string{"--no-such-flag"})
	require.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	cfg, err := LoadClient([]string{"--server-url", "http://shop.local/api"})
	require.NoError(t, err)
	require.Equal(t, "http://shop.local/api", cfg.ServerURL)
	require.Equal(t, 5*time.Minute, cfg.Timeout)

	_, err = LoadClient([]string{"--server-url", ""})
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHOPCHAT_DOTENV_TEST=from-file\nSHOPCHAT_DOTENV_KEEP=from-file\n"), 0o600))

	t.Setenv("SHOPCHAT_DOTENV_KEEP", "from-env")
	// t.Setenv 只负责恢复已设置的变量，这里手动清理由文件写入的变量
	t.Cleanup(func() { os.Unsetenv("SHOPCHAT_DOTENV_TEST") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	require.Equal(t, "from-file", os.Getenv("SHOPCHAT_DOTENV_TEST"))
	require.Equal(t, "from-env", os.Getenv("SHOPCHAT_DOTENV_KEEP"))
}
