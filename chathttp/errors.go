package chathttp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/bytedance/sonic"
)

// httpError 是 SSE 打开之前的请求级拒绝，渲染为 {"error":{"message","type"}}。
type httpError struct {
	Status  int
	Message string
	Err     error
}

func (e *httpError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *httpError) Unwrap() error { return e.Err }

// Type 是响应体中的 error.type。
func (e *httpError) Type() string {
	switch e.Status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "invalid_request_error"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "api_error"
	}
}

func (e *httpError) writeTo(w http.ResponseWriter) {
	var body chatapi.APIError
	body.Error.Message = e.Error()
	body.Error.Type = e.Type()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(body)
}

// rejectRequest 写出 err 对应的 JSON 错误；非 httpError 一律按无效请求体处理。
func rejectRequest(w http.ResponseWriter, err error) {
	var he *httpError
	if !errors.As(err, &he) {
		he = &httpError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err}
	}
	he.writeTo(w)
}
