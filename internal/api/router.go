package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/trustcore/config"
	_ "github.com/d60-Lab/trustcore/docs"
	"github.com/d60-Lab/trustcore/internal/api/handler"
	"github.com/d60-Lab/trustcore/internal/api/middleware"
	"github.com/d60-Lab/trustcore/internal/repository"
)

// NewRouter 组装中间件与路由
// @title trustcore API
// @version 1.0
// @description 社区信任与安全服务：私信反滥用、内容审核、审核队列、信誉与信号升级
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func NewRouter(cfg *config.Config, h *handler.Handler, users repository.UserRepository) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	middleware.RegisterValidators()

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.AccessLog(), gzip.Gzip(gzip.DefaultCompression))
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	v1 := r.Group("/api/v1")
	v1.GET("/contents/trending", limiter.Middleware(), h.Trending)
	v1.GET("/reputation/:actor_id", limiter.Middleware(), h.GetReputation)

	authed := v1.Group("", middleware.Auth(cfg.JWT), limiter.Middleware())
	{
		authed.POST("/messages", h.SendMessage)
		authed.POST("/messages/:id/read", h.MarkRead)
		authed.GET("/notifications", h.ListNotifications)

		authed.POST("/classify", h.Classify)
		authed.POST("/contents", h.Publish)
		authed.POST("/contents/:id/report", h.Report)
		authed.POST("/contents/:id/raise-hand", h.RaiseHand)
		authed.POST("/contents/:id/reactions", h.React)
		authed.POST("/contents/:id/votes", h.Vote)
	}

	// 管理员路由；服务层仍会再次校验
	admin := authed.Group("", middleware.RequireAdmin(users))
	{
		admin.POST("/contents/:id/recheck", h.Recheck)
		admin.GET("/moderation/queue", h.ListQueue)
		admin.POST("/moderation/queue/:id/resolve", h.Resolve)
		admin.POST("/reputation/:actor_id/recompute", h.RecomputeReputation)

		admin.POST("/admin/actors/:id/ban", h.BanMessaging)
		admin.POST("/admin/actors/:id/unban", h.UnbanMessaging)
		admin.POST("/admin/actors/:id/expert", h.GrantExpert)
		admin.DELETE("/admin/actors/:id/expert", h.RevokeExpert)
		admin.POST("/admin/actors/:id/reset-reputation", h.ResetReputation)
		admin.POST("/admin/blacklist", h.AddKeyword)
		admin.DELETE("/admin/blacklist/:id", h.RemoveKeyword)
		admin.POST("/admin/contents/:id/clear-flags", h.ClearFlags)
		admin.GET("/admin/audit", h.ListAuditLog)
	}
	return r
}
