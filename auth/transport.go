package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Transport 在每个请求发出前从 Provider 读取 key 并写入 Authorization，key 轮换后无需重启。
type Transport struct {
	Provider Provider
	// Base 为空时使用 http.DefaultTransport。
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Provider == nil {
		return base.RoundTrip(req)
	}

	key, err := t.Provider.APIKey(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("resolve api key: %w", err)
	}

	// RoundTripper 不能修改调用方的请求
	out := req.Clone(req.Context())
	if key = strings.TrimSpace(key); key != "" {
		out.Header.Set("Authorization", "Bearer "+key)
	} else {
		out.Header.Del("Authorization")
	}
	return base.RoundTrip(out)
}

// NewHTTPClient 返回使用 Provider 鉴权的 http.Client。
func NewHTTPClient(provider Provider, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &Transport{Provider: provider, Base: base}}
}
