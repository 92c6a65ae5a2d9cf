// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// ログ設定
	LogLevel  string // ログレベル (debug, info, warn, error)
	LogFormat string // ログ形式 (console, json)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize   int64 // 単一ファイルの最大サイズ（バイト）
	MaxBatchFiles int   // 一括変換で受け付ける最大ファイル数

	// ジョブ設定
	JobExpireMinutes      int // ジョブ/バッチレコードの有効期限（分）
	WorkerCount           int // 変換ワーカー数
	QueueCapacity         int // 変換待ちキューの容量
	ConvertTimeoutSeconds int // 1件あたりの変換タイムアウト（秒）

	// ストア/キュー設定
	StoreBackend  string // レコードストアの種別 (memory, redis)
	StoreRedisURL string // Redisストア用接続URL
	QueueRedisURL string // Asynq分散ディスパッチ用Redis接続URL（空ならプロセス内プール）

	// ストレージ設定
	DataDir string // 変換入出力ファイルの保存先ディレクトリ
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// ログ設定
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ファイル制限
		MaxFileSize:   getEnvAsInt64("MAX_FILE_SIZE", 209715200), // 200MB
		MaxBatchFiles: getEnvAsInt("MAX_BATCH_FILES", 50),

		// ジョブ設定
		JobExpireMinutes:      getEnvAsInt("JOB_EXPIRE_MINUTES", 60),
		WorkerCount:           getEnvAsInt("WORKER_COUNT", 2),
		QueueCapacity:         getEnvAsInt("QUEUE_CAPACITY", 100),
		ConvertTimeoutSeconds: getEnvAsInt("CONVERT_TIMEOUT_SECONDS", 600),

		// ストア/キュー設定
		StoreBackend:  getEnv("STORE_BACKEND", "memory"),
		StoreRedisURL: getEnv("STORE_REDIS_URL", "redis://127.0.0.1:6379/1"),
		QueueRedisURL: getEnv("QUEUE_REDIS_URL", ""),

		// ストレージ設定
		DataDir: getEnv("DATA_DIR", filepath.Join(os.TempDir(), "photo-forge")),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1")
	}
	if c.MaxBatchFiles < 1 {
		return fmt.Errorf("MAX_BATCH_FILES must be at least 1")
	}
	if c.StoreBackend != "memory" && c.StoreBackend != "redis" {
		return fmt.Errorf("STORE_BACKEND must be memory or redis, got %q", c.StoreBackend)
	}

	// ローカル開発では緩く、本番モードでは厳格にチェックする
	if c.GinMode == "release" {
		if c.StoreBackend == "redis" && c.StoreRedisURL == "" {
			return fmt.Errorf("STORE_REDIS_URL is required when STORE_BACKEND=redis")
		}
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
