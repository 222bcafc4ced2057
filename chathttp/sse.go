package chathttp

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/LubyRuffy/shopchat/chatapi"
)

// ErrSessionClosed 终止事件（end/error）之后的写入。
var ErrSessionClosed = errors.New("sse session already terminated")

// EventWriter 把事件编码为 `data: <JSON>\n\n` 并立即 flush。
// 一个会话只允许一个终止事件，之后的写入返回 ErrSessionClosed。
type EventWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	opened  bool
	closed  bool
}

func NewEventWriter(w http.ResponseWriter) (*EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &EventWriter{w: w, flusher: flusher}, nil
}

// Open 写入 SSE 响应头。首次 Write 会自动调用。
func (e *EventWriter) Open() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
}

func (e *EventWriter) openLocked() {
	if e.opened {
		return
	}
	e.opened = true
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(http.StatusOK)
	e.flusher.Flush()
}

func (e *EventWriter) Write(ev chatapi.Event) error {
	data, err := chatapi.MarshalEvent(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	e.openLocked()
	if ev.Terminal() {
		e.closed = true
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	e.flusher.Flush()
	return nil
}

// Closed 是否已写入终止事件。
func (e *EventWriter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
