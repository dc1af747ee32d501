package api

import (
	"souniq-server/config"
	"souniq-server/service"
	"souniq-server/store"

	"github.com/gin-gonic/gin"
)

// 包级依赖，启动时由 Setup 注入
var (
	Store     store.Store
	Orch      *service.Orchestrator
	Artifacts service.ArtifactStore
	Cfg       *config.Config
)

// Setup 注入 handler 依赖
func Setup(st store.Store, orch *service.Orchestrator, artifacts service.ArtifactStore, cfg *config.Config) {
	Store = st
	Orch = orch
	Artifacts = artifacts
	Cfg = cfg
}

// currentUser 取调用方身份。没接入认证，直接信 header。
func currentUser(c *gin.Context) string {
	if uid := c.GetHeader("X-User-ID"); uid != "" {
		return uid
	}
	return "default"
}
