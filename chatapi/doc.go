// Package chatapi 定义聊天接口的请求结构与 SSE 事件（tagged union）。
//
// 每个事件在线路上是一行 `data: <JSON>\n\n`，事件类型由 JSON 的 type 字段区分，
// 不使用 SSE 的 event: 字段。
package chatapi
