package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/repoanalyzer/config"
	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
	"github.com/qs3c/repoanalyzer/internal/api"
	"github.com/qs3c/repoanalyzer/internal/api/handler"
	"github.com/qs3c/repoanalyzer/internal/artifact"
	"github.com/qs3c/repoanalyzer/internal/database"
	"github.com/qs3c/repoanalyzer/internal/health"
	"github.com/qs3c/repoanalyzer/internal/pkg/oauth"
	"github.com/qs3c/repoanalyzer/internal/pkg/oss"
	"github.com/qs3c/repoanalyzer/internal/pkg/pubsub"
	"github.com/qs3c/repoanalyzer/internal/pkg/ws"
	"github.com/qs3c/repoanalyzer/internal/queue"
	"github.com/qs3c/repoanalyzer/internal/repository"
	"github.com/qs3c/repoanalyzer/internal/service"
	"github.com/qs3c/repoanalyzer/internal/store"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// Task Store 与队列
	taskStore := store.New(db)
	if err := taskStore.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate task store: %v", err)
	}
	admissionQueue := queue.New(taskStore, rdb, cfg.Concurrency.GlobalRunningTasks)

	// 外部服务客户端
	vectorClient := vectorindex.NewClient(cfg.VectorIndex.BaseURL, cfg.VectorIndex.Timeout)

	var artifacts *artifact.Store
	if cfg.OSS.Endpoint != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Fatalf("Failed to create OSS client: %v", err)
		}
		artifacts = artifact.NewStore(ossClient)
	}

	// WebSocket Hub：转发 Redis 进度消息给订阅连接
	wsHub := ws.NewHub()
	go runProgressForwarder(rdb, wsHub)
	log.Println("WebSocket hub started")

	// Repository / Service
	userRepo := repository.NewUserRepository(db)
	authService := service.NewAuthService(userRepo, cfg)
	repoService := service.NewRepoService(taskStore, vectorClient, artifacts, cfg)
	taskService := service.NewTaskService(taskStore, admissionQueue, 90*time.Second)

	registry := health.NewRegistry(admissionQueue, 15*time.Second, 90*time.Second)

	// Handler
	stateStore := oauth.NewStateStore(rdb)
	authHandler := handler.NewAuthHandler(authService, stateStore)
	repoHandler := handler.NewRepoHandler(repoService, cfg)
	taskHandler := handler.NewTaskHandler(taskService)
	healthHandler := handler.NewHealthHandler(registry)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	// Router
	router := api.NewRouter(
		authHandler,
		repoHandler,
		taskHandler,
		healthHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runProgressForwarder 订阅 Redis 进度频道并转发给 WebSocket 订阅者
func runProgressForwarder(rdb *redis.Client, hub *ws.Hub) {
	sub := pubsub.NewSubscriber(rdb)
	for {
		err := sub.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
			if !hub.HasWatchers(msg.TaskID) {
				return
			}
			hub.SendToTask(msg.TaskID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil {
			log.Printf("progress forwarder stopped: %v, restarting", err)
			time.Sleep(time.Second)
		}
	}
}
