package backend

import (
	"sort"

	"github.com/cloudwego/eino/schema"
)

// FinishReasonToolCalls 是模型表示本轮 tool call 分片已全部发出的 finish_reason。
const FinishReasonToolCalls = "tool_calls"

// IsToolCallsFinish 判断分片是否携带 finish_reason=tool_calls。
func IsToolCallsFinish(msg *schema.Message) bool {
	return msg != nil && msg.ResponseMeta != nil && msg.ResponseMeta.FinishReason == FinishReasonToolCalls
}

// ToolCallAccumulator 按 index 把流式 tool call 分片合并为完整调用。
//
// 合并规则：
//   - ID/Type/Function.Name 只在当前为空且分片非空时写入，之后不会被覆盖或清空
//   - Function.Arguments 按到达顺序追加
//
// 分片本身无法判断调用是否完整，必须由上层在看到 finish_reason=tool_calls 后调用 Freeze；
// 未冻结的累加器 Calls 返回 nil。Index 为空的分片按 0 处理。
type ToolCallAccumulator struct {
	byIndex map[int]*schema.ToolCall
	order   []int
	frozen  bool
}

func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{byIndex: make(map[int]*schema.ToolCall)}
}

// Add 合并一组分片。冻结之后的分片会被忽略。
func (a *ToolCallAccumulator) Add(deltas ...schema.ToolCall) {
	if a.frozen {
		return
	}
	for _, delta := range deltas {
		idx := 0
		if delta.Index != nil {
			idx = *delta.Index
		}
		call, ok := a.byIndex[idx]
		if !ok {
			index := idx
			call = &schema.ToolCall{Index: &index}
			a.byIndex[idx] = call
			a.order = append(a.order, idx)
		}
		if call.ID == "" && delta.ID != "" {
			call.ID = delta.ID
		}
		if call.Type == "" && delta.Type != "" {
			call.Type = delta.Type
		}
		if call.Function.Name == "" && delta.Function.Name != "" {
			call.Function.Name = delta.Function.Name
		}
		call.Function.Arguments += delta.Function.Arguments
	}
}

// Freeze 标记本轮分片结束。
func (a *ToolCallAccumulator) Freeze() {
	a.frozen = true
}

func (a *ToolCallAccumulator) Frozen() bool {
	return a.frozen
}

// Len 返回当前已见到的不同 index 数量（不论是否冻结）。
func (a *ToolCallAccumulator) Len() int {
	return len(a.order)
}

// Calls 返回按 index 排序的完整调用副本；未冻结时返回 nil。
func (a *ToolCallAccumulator) Calls() []schema.ToolCall {
	if !a.frozen || len(a.order) == 0 {
		return nil
	}
	indices := append([]int(nil), a.order...)
	sort.Ints(indices)

	calls := make([]schema.ToolCall, 0, len(indices))
	for _, idx := range indices {
		call := *a.byIndex[idx]
		index := idx
		call.Index = &index
		calls = append(calls, call)
	}
	return calls
}
