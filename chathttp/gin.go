package chathttp

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

func RegisterGinRoutes(r gin.IRouter, cfg Config) error {
	if r == nil {
		return fmt.Errorf("router is nil")
	}
	chatHandler, healthHandler, err := Handlers(cfg)
	if err != nil {
		return err
	}

	basePath := normalizeBasePath(cfg.BasePath)
	r.POST(joinPath(basePath, "/chat"), gin.WrapF(chatHandler))
	r.GET(joinPath(basePath, "/healthz"), gin.WrapF(healthHandler))
	return nil
}
