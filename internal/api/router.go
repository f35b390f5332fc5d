package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/uvc-capture/internal/repository"
	"github.com/wfunc/uvc-capture/internal/uvc"
	ws "github.com/wfunc/uvc-capture/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	cameraHandler  *CameraHandler
	sessionHandler *SessionHandler
	wsHandler      *WebSocketHandler
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, device *uvc.DeviceController, hub *ws.Hub, log *zap.Logger) *Router {
	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	// 创建处理器
	repos := repository.NewManager(db)
	router := &Router{
		engine:         engine,
		db:             db,
		cameraHandler:  NewCameraHandler(device, log),
		sessionHandler: NewSessionHandler(repos, log),
		wsHandler:      NewWebSocketHandler(hub, log),
		log:            log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 相机控制路由
		camera := v1.Group("/camera")
		{
			camera.POST("/start", r.cameraHandler.Start)
			camera.POST("/stop", r.cameraHandler.Stop)
			camera.GET("/status", r.cameraHandler.Status)
			camera.GET("/info", r.cameraHandler.Info)
			camera.GET("/config", r.cameraHandler.GetConfig)
			camera.PUT("/config", r.cameraHandler.UpdateConfig)
		}

		// 采集会话路由
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", r.sessionHandler.Query)
			sessions.GET("/stats", r.sessionHandler.GetStats)
			sessions.GET("/:session_id", r.sessionHandler.Get)
			sessions.POST("/cleanup", r.sessionHandler.Cleanup)
		}
	}

	// WebSocket路由
	ws := r.engine.Group("/ws")
	{
		ws.GET("/preview", r.wsHandler.Preview)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
