package chatclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/rs/zerolog"
)

// ErrNoTerminalEvent 流在收到 end/error 之前就结束了。
var ErrNoTerminalEvent = errors.New("event stream ended without a terminal event")

var dataPrefix = []byte("data: ")

const readBufferSize = 4096

// MaxLineBytes 是单行上限，超过的行记录日志后整行丢弃。
const MaxLineBytes = 1 << 20

// Decoder 增量解析 `data: <JSON>\n\n` 事件流。
// 读到的字节先拼到上次残留的半行后面，按 \n 切分，只处理完整行，最后一段留到下次。
// 非 data: 行被忽略；JSON 无法解析或超过 MaxLineBytes 的行记录日志后丢弃，不影响后续事件。
type Decoder struct {
	carry   []byte
	maxLine int
	// skipping 为 true 时丢弃字节直到下一个 \n
	skipping bool
}

func NewDecoder() *Decoder {
	return &Decoder{maxLine: MaxLineBytes}
}

func (d *Decoder) lineLimit() int {
	if d.maxLine <= 0 {
		return MaxLineBytes
	}
	return d.maxLine
}

// Feed 追加一段字节，返回其中所有完整行解析出的事件。
func (d *Decoder) Feed(ctx context.Context, chunk []byte) []chatapi.Event {
	if d.skipping {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			return nil
		}
		d.skipping = false
		chunk = chunk[idx+1:]
	}
	d.carry = append(d.carry, chunk...)

	limit := d.lineLimit()
	var events []chatapi.Event
	for {
		idx := bytes.IndexByte(d.carry, '\n')
		if idx < 0 {
			break
		}
		line := d.carry[:idx]
		if len(line) > limit {
			d.dropOversized(ctx, len(line))
		} else if ev, ok := parseLine(ctx, line); ok {
			events = append(events, ev)
		}
		d.carry = d.carry[idx+1:]
	}

	if len(d.carry) > limit {
		d.dropOversized(ctx, len(d.carry))
		d.carry = nil
		d.skipping = true
	}
	if len(d.carry) == 0 {
		d.carry = nil
	}
	return events
}

// Flush 处理流结束时残留的最后一行（没有以 \n 结尾）。
func (d *Decoder) Flush(ctx context.Context) []chatapi.Event {
	line := d.carry
	d.carry = nil
	d.skipping = false
	if len(line) == 0 {
		return nil
	}
	if ev, ok := parseLine(ctx, line); ok {
		return []chatapi.Event{ev}
	}
	return nil
}

func (d *Decoder) dropOversized(ctx context.Context, n int) {
	zerolog.Ctx(ctx).Warn().Int("bytes", n).Int("limit", d.lineLimit()).Msg("dropping oversized event line")
}

// Pending 当前缓存的未完成字节数。
func (d *Decoder) Pending() int {
	return len(d.carry)
}

func parseLine(ctx context.Context, line []byte) (chatapi.Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := line[len(dataPrefix):]
	ev, err := chatapi.UnmarshalEvent(payload)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Bytes("line", line).Msg("dropping malformed event")
		return nil, false
	}
	return ev, true
}

// Decode 从 r 读取事件并依次交给 fn，直到收到终止事件、r 结束或 ctx 取消。
// fn 返回错误时立即停止。r 在终止事件之前结束返回 ErrNoTerminalEvent。
func Decode(ctx context.Context, r io.Reader, fn func(chatapi.Event) error) error {
	dec := NewDecoder()
	buf := make([]byte, readBufferSize)

	deliver := func(events []chatapi.Event) (bool, error) {
		for _, ev := range events {
			if err := fn(ev); err != nil {
				return false, err
			}
			if ev.Terminal() {
				return true, nil
			}
		}
		return false, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			done, err := deliver(dec.Feed(ctx, buf[:n]))
			if err != nil || done {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			done, err := deliver(dec.Flush(ctx))
			if err != nil || done {
				return err
			}
			return ErrNoTerminalEvent
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read event stream: %w", readErr)
		}
	}
}
