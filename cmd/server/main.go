package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	rd "github.com/redis/go-redis/v9"

	"tuangou/internal/ai"
	"tuangou/internal/bot"
	"tuangou/internal/config"
	"tuangou/internal/queue"
	"tuangou/internal/router"
	"tuangou/internal/service"
	"tuangou/internal/store"
	"tuangou/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup()

	// 1. SQLite 帳本，啟動時同步建表
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	logger.Info("資料庫就緒", "path", cfg.DBPath)

	// 2. 選配元件：Redis / Kafka / OpenAI，缺了都能跑
	var rdb *rd.Client
	if cfg.RedisEnabled() {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		logger.Info("Redis 啟用", "addr", cfg.RedisAddr)
	} else {
		logger.Warn("Redis 未設定，停用事件去重與限流")
	}

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.KafkaEnabled() {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		opts = append(opts, service.WithEvents(producer))
		logger.Info("Kafka 啟用", "topic", cfg.KafkaTopic)
	}
	if cfg.AIEnabled() {
		opts = append(opts, service.WithAI(ai.New(ai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.AITimeout,
		})))
		logger.Info("AI 口語解析啟用", "model", cfg.OpenAIModel)
	}

	svc := service.New(st, opts...)

	// 3. LINE Messaging API
	var api *messaging_api.MessagingApiAPI
	if cfg.LineChannelAccessToken != "" {
		api, err = messaging_api.NewMessagingApiAPI(cfg.LineChannelAccessToken)
		if err != nil {
			log.Fatalf("line api: %v", err)
		}
	} else {
		logger.Warn("LINE_CHANNEL_ACCESS_TOKEN 未設定，無法回覆訊息")
	}
	b := bot.New(svc, api, cfg.LineChannelSecret, rdb, logger)

	// 4. HTTP
	r := gin.Default()
	router.Setup(r, b, rdb, cfg)

	logger.Info("服務啟動", "addr", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http: %v", err)
	}
}
