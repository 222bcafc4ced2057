// Package chatclient 是 chat SSE 接口的客户端：
// Decoder 从任意切分的字节流中还原事件，Assembler 把事件折叠成一条不断增长的助手消息，
// Client/Session 负责发请求并在本地维护多轮历史（服务端不保存会话）。
package chatclient
