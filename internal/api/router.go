package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/repoanalyzer/config"
	"github.com/qs3c/repoanalyzer/internal/api/handler"
	"github.com/qs3c/repoanalyzer/internal/api/middleware"
)

type Router struct {
	authHandler      *handler.AuthHandler
	repoHandler      *handler.RepoHandler
	taskHandler      *handler.TaskHandler
	healthHandler    *handler.HealthHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	repoHandler *handler.RepoHandler,
	taskHandler *handler.TaskHandler,
	healthHandler *handler.HealthHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		repoHandler:      repoHandler,
		taskHandler:      taskHandler,
		healthHandler:    healthHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket 进度推送
		api.GET("/ws", r.websocketHandler.Handle)

		// 健康与队列状态
		api.GET("/health", r.healthHandler.Report)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.GET("/github", r.authHandler.GithubAuth)
			auth.GET("/github/callback", r.authHandler.GithubCallback)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/auth/me", r.authHandler.Me)

			// 仓库
			repos := authenticated.Group("/repositories")
			{
				repos.POST("/upload", r.repoHandler.Upload)
				repos.POST("/git", r.repoHandler.CreateFromGit)
				repos.GET("", r.repoHandler.List)
				repos.GET("/:id", r.repoHandler.Get)
				repos.DELETE("/:id", r.repoHandler.Delete)
			}

			// 分析任务
			tasks := authenticated.Group("/tasks")
			{
				tasks.GET("/queue", r.taskHandler.Queue)
				tasks.POST("", r.taskHandler.Create)
				tasks.GET("/:id", r.taskHandler.Get)
				tasks.PUT("/:id", r.taskHandler.Update)
				tasks.POST("/:id/cancel", r.taskHandler.Cancel)
			}
		}
	}

	return engine
}
