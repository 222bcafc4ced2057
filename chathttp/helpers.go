package chathttp

import (
	"net/http"
	"path"
	"strings"

	"github.com/bytedance/sonic"
)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(data)
}

// normalizeBasePath 空值回落到 /api，去掉结尾的 /。
func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return "/api"
	}
	return "/" + strings.Trim(basePath, "/")
}

// joinPath 拼接路由，例如 ("/api", "chat") -> "/api/chat"。
func joinPath(basePath, suffix string) string {
	return path.Join(normalizeBasePath(basePath), suffix)
}
