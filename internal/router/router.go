// Package router 註冊 HTTP 路由。
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	"tuangou/internal/bot"
	"tuangou/internal/config"
	"tuangou/internal/middleware"
)

// Setup 註冊全部 HTTP 路由。rdb 為 nil 時 webhook 不掛限流。
func Setup(r *gin.Engine, b *bot.Bot, rdb *rd.Client, cfg config.AppConfig) {
	// 健康檢查，順帶回報憑證是否已設定，方便部署排錯
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"token_set":  cfg.LineChannelAccessToken != "",
			"secret_set": cfg.LineChannelSecret != "",
		})
	})

	webhookHandlers := []gin.HandlerFunc{}
	if rdb != nil {
		webhookHandlers = append(webhookHandlers,
			middleware.RedisRateLimit(rdb, cfg.MsgRateLimit, cfg.MsgRateWindow))
	}
	webhookHandlers = append(webhookHandlers, b.Webhook)
	r.POST("/webhook", webhookHandlers...)
}
