package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合執行期設定，全部由環境變數注入，避免寫死。
// Redis / Kafka / OpenAI 都是選配：對應位址或金鑰留空即停用該功能，
// 機器人核心（指令解析 + SQLite 帳本）不依賴它們。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	// LINE Messaging API 憑證。留空時 webhook 會拒收（驗簽失敗），
	// 但服務仍可啟動供 /ping 健康檢查。
	LineChannelSecret      string
	LineChannelAccessToken string

	// Redis：webhook 事件去重與訊息限流。空位址 = 停用。
	RedisAddr string
	RedisDB   int

	// Kafka 訂單事件串流（逗號分隔 broker）。空 brokers = 停用。
	KafkaBrokers []string
	KafkaTopic   string

	// OpenAI 口語解析 fallback。空金鑰 = 停用。
	OpenAIAPIKey string
	OpenAIModel  string
	AITimeout    time.Duration

	// webhook 訊息限流（per-IP 滑動視窗）
	MsgRateLimit  int
	MsgRateWindow time.Duration
}

// Load 讀取並檢核設定，缺漏時用預設值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DBPath:                 getEnv("DB_PATH", "tuangou.db"),
		LineChannelSecret:      getEnv("LINE_CHANNEL_SECRET", ""),
		LineChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisDB:                0,
		KafkaBrokers:           splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", "tuangou-order-events"),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AITimeout:              5 * time.Second,
		MsgRateLimit:           20,
		MsgRateWindow:          time.Minute,
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	aiTimeoutSec, err := getEnvInt("AI_TIMEOUT_SEC", int(cfg.AITimeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid AI_TIMEOUT_SEC: %w", err)
	}
	if aiTimeoutSec <= 0 {
		return AppConfig{}, fmt.Errorf("AI_TIMEOUT_SEC must be > 0")
	}
	cfg.AITimeout = time.Duration(aiTimeoutSec) * time.Second

	rateLimit, err := getEnvInt("MSG_RATE_LIMIT", cfg.MsgRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MSG_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("MSG_RATE_LIMIT must be > 0")
	}
	cfg.MsgRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("MSG_RATE_WINDOW_SEC", int(cfg.MsgRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MSG_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("MSG_RATE_WINDOW_SEC must be > 0")
	}
	cfg.MsgRateWindow = time.Duration(rateWindowSec) * time.Second

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled 是否啟用訂單事件串流。
func (c AppConfig) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// RedisEnabled 是否啟用 Redis。
func (c AppConfig) RedisEnabled() bool { return c.RedisAddr != "" }

// AIEnabled 是否啟用 AI 口語解析。
func (c AppConfig) AIEnabled() bool { return c.OpenAIAPIKey != "" }

// getEnv 讀字串環境變數，空值回傳預設。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 讀整數環境變數，空值回傳預設。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 把逗號分隔字串切成 slice。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
