// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/photo-forge/internal/config"
	"github.com/yourusername/photo-forge/internal/imaging"
	"github.com/yourusername/photo-forge/internal/jobs"
	"github.com/yourusername/photo-forge/internal/logger"
	"github.com/yourusername/photo-forge/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ttl := time.Duration(cfg.JobExpireMinutes) * time.Minute
	timeout := time.Duration(cfg.ConvertTimeoutSeconds) * time.Second

	// レコードストアの選択（memory: プロセス内、redis: 共有ストア）
	var store jobs.Store
	switch cfg.StoreBackend {
	case "redis":
		opt, err := redis.ParseURL(cfg.StoreRedisURL)
		if err != nil {
			log.Fatalf("Failed to parse STORE_REDIS_URL: %v", err)
		}
		store = jobs.NewRedisStore(redis.NewClient(opt), ttl)
	default:
		memStore := jobs.NewMemoryStore(ttl)
		defer memStore.Close()
		store = memStore
	}

	blobs, err := storage.NewLocal(cfg.DataDir, ttl)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	svc := imaging.NewService(nil, cfg.MaxFileSize)
	executor := jobs.NewExecutor(store, blobs, svc, timeout, slogger)

	// 実行経路の選択（QUEUE_REDIS_URL指定時はasynqによる分散実行）
	var enqueuer jobs.Enqueuer
	if cfg.QueueRedisURL != "" {
		redisOpt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
		if err != nil {
			log.Fatalf("Failed to parse QUEUE_REDIS_URL: %v", err)
		}
		dispatcher := jobs.NewAsynqDispatcher(redisOpt, executor, cfg.WorkerCount, slogger)
		if err := dispatcher.StartWorkers(); err != nil {
			log.Fatalf("Failed to start task server: %v", err)
		}
		defer dispatcher.Shutdown()
		enqueuer = dispatcher
	} else {
		pool := jobs.NewPool(executor, cfg.WorkerCount, cfg.QueueCapacity, slogger)
		pool.Start()
		defer pool.Stop()
		enqueuer = pool
	}

	coordinator := jobs.NewCoordinator(store, blobs, svc, enqueuer, cfg.MaxBatchFiles, slogger)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, svc, coordinator)

	// サーバーの起動
	addr := ":" + cfg.Port
	slogger.Info("starting API server", "addr", addr, "mode", cfg.GinMode, "workers", cfg.WorkerCount)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "photo-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は変換APIの配線を行います。
func setupRoutes(router *gin.Engine, svc *imaging.Service, coordinator *jobs.Coordinator) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	// 同期変換（変換完了までブロックして画像を直接返す）
	router.POST("/convert", imaging.ConvertHandler(svc, imaging.FormatJPEG))
	router.POST("/convert-to-webp", imaging.ConvertHandler(svc, imaging.FormatWebP))

	api := router.Group("/api")
	{
		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.POST("/convert", jobs.SubmitJobHandler(coordinator))
			jobRoutes.GET("/:id", jobs.JobStatusHandler(coordinator))
			jobRoutes.GET("/:id/result", jobs.JobResultHandler(coordinator))
		}

		batchRoutes := api.Group("/batches")
		{
			batchRoutes.POST("", jobs.SubmitBatchHandler(coordinator))
			batchRoutes.GET("/:id", jobs.BatchStatusHandler(coordinator))
			batchRoutes.GET("/:id/results", jobs.BatchArchiveHandler(coordinator))
		}
	}
}
