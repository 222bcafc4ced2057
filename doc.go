// Package shopchat 提供电商导购场景下的 AI 聊天流式编排能力。
//
// 一次聊天请求会打开一个模型生成流，边转发文本增量边拼接 tool call 分片；
// 当模型以 finish_reason=tool_calls 结束时执行商品搜索工具，把结果拼回对话后
// 再打开一次续写流，全部输出统一编码为一个 SSE 会话。
//
// 该仓库主要包含以下能力：
//  1. HTTP 层：chathttp 包导出 POST /api/chat（SSE）handler 与 Gin 路由注册
//  2. 编排：chatflow 包实现主流/续写流状态机；backend 包提供模型客户端与 tool call 累加器
//  3. 客户端：chatclient 包提供增量 SSE 解码器与消息组装器
package shopchat
