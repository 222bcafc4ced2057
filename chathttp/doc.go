// Package chathttp 提供导购聊天的 HTTP 入口：POST {base}/chat 以 SSE 下发事件流。
//
// 该包对外只暴露：
// - net/http 形式的 handlers（chat/healthz）
// - Gin 路由注册方法
// - SSE 事件写入器 EventWriter
// - CORS 与访问日志中间件
//
// 模型、工具与目录都通过 Config.Engine 注入，该包不持有任何全局状态。
//
// 使用示例：
//
//	engine, _ := chatflow.NewEngine(chatflow.EngineConfig{Model: m, Dispatcher: d, MaxToolRounds: 1})
//
//	// net/http
//	chatH, healthH, _ := chathttp.Handlers(chathttp.Config{Engine: engine})
//	mux.HandleFunc("/api/chat", chatH)
//	mux.HandleFunc("/api/healthz", healthH)
//
//	// gin
//	_ = chathttp.RegisterGinRoutes(r, chathttp.Config{BasePath: "/api", Engine: engine})
package chathttp
