package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/api/docs"
	"github.com/taoyao-code/wallbox-server/internal/api/middleware"
)

// Handlers 路由依赖；为 nil 的分组不注册
type Handlers struct {
	Requests *RequestHandler
	Stations *StationHandler
	Devices  *DeviceHandler
	Admin    *AdminHandler
	Webhooks *WebhookHandler
	Payments *PaymentHandler
}

// RouteConfig 路由级认证与限流
type RouteConfig struct {
	Auth         middleware.AuthConfig
	WebhookToken string
	RateLimit    middleware.RateLimitConfig
	Swagger      bool
}

// RegisterRoutes 注册全部业务路由
func RegisterRoutes(r *gin.Engine, h Handlers, cfg RouteConfig, logger *zap.Logger) {
	r.Use(middleware.RequestTracing(), middleware.CORS(), middleware.AccessLog(logger), middleware.RateLimit(cfg.RateLimit))

	if !cfg.Auth.Enabled {
		logger.Warn("user authentication disabled - only for development!")
	}
	v1 := r.Group("/api/v1")
	user := v1.Group("", middleware.JWTAuth(cfg.Auth, logger))

	if h.Requests != nil {
		rq := user.Group("/requests")
		rq.POST("", h.Requests.Create)
		rq.GET("/mine", h.Requests.ListMine)
		rq.GET("/incoming", h.Requests.ListIncoming)
		rq.GET("/:id", h.Requests.Get)
		rq.PATCH("/:id", h.Requests.Update)
		rq.DELETE("/:id", h.Requests.Delete)
		rq.POST("/:id/submit", h.Requests.Submit)
		rq.POST("/:id/approve", h.Requests.Approve)
		rq.POST("/:id/schedule", h.Requests.Schedule)
		rq.POST("/:id/start", h.Requests.Start)
		rq.POST("/:id/complete", h.Requests.Complete)
		rq.POST("/:id/cancel", h.Requests.Cancel)
	}
	if h.Stations != nil {
		st := user.Group("/stations")
		st.POST("", h.Stations.Register)
		st.GET("", h.Stations.List)
		st.GET("/:id", h.Stations.Get)
		st.PATCH("/:id", h.Stations.Update)
		st.DELETE("/:id", h.Stations.Delete)
		st.PUT("/:id/partners", h.Stations.SetPartners)
		st.PUT("/:id/rfid-tags", h.Stations.SetRFIDTags)
		st.POST("/:id/sync", h.Stations.Sync)
		st.POST("/:id/reset", h.Stations.Reset)
	}
	if h.Devices != nil {
		user.POST("/devices/tokens", h.Devices.RegisterToken)
	}
	if h.Admin != nil {
		admin := v1.Group("/admin", middleware.AdminKeyAuth(cfg.Auth.AdminKeys, logger))
		admin.POST("/requests/:id/unlock", h.Admin.RetryUnlock)
		admin.POST("/requests/:id/unlock/confirm", h.Admin.ConfirmUnlock)
	}

	if h.Webhooks != nil {
		wb := r.Group("/api/wallbox", middleware.WebhookAuth(cfg.WebhookToken, logger))
		wb.POST("/sessions", h.Webhooks.Sessions)
		wb.POST("/status-update", h.Webhooks.StatusUpdate)
		wb.POST("/logs", h.Webhooks.Logs)
	}
	// 支付回调在处理器内验签
	if h.Payments != nil {
		r.POST("/api/payments/transactions", h.Payments.Transactions)
	}

	if cfg.Swagger {
		docs.SwaggerInfo.BasePath = "/"
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	logger.Info("http routes registered", zap.Int("routes", len(r.Routes())))
}
