// Package bot 接 LINE Messaging API webhook：驗簽、事件去重、
// 取發話者顯示名稱，把文字訊息交給團購引擎並回覆結果。
package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	rd "github.com/redis/go-redis/v9"

	"tuangou/internal/service"
	"tuangou/pkg/redisx"
)

// LINE 單則訊息上限 5000 字，超過要截斷。
const (
	maxReplyRunes  = 5000
	truncateAt     = 4950
	truncateSuffix = "\n\n⋯（訊息過長已截斷，請輸入「列表」查看完整內容）"
)

// 事件去重標記保留時間，LINE 重送通常在幾分鐘內。
const eventDedupTTL = time.Hour

const joinGreeting = "👋 大家好！我是團購接龍助理\n\n" +
	"🛒 團主貼出商品清單即可開團\n" +
	"📝 格式：#開團 + 商品列表\n\n" +
	"下單方式：+品項編號\n" +
	"例如：+1 或 +1 2（2份）"

// Bot LINE webhook 處理器。
type Bot struct {
	svc           *service.Service
	api           *messaging_api.MessagingApiAPI
	channelSecret string
	rdb           *rd.Client // nil 表示不做事件去重
	log           *slog.Logger
}

// New 建立 webhook 處理器。api 可為 nil（例如本機測試），此時不回覆、
// 顯示名稱一律視為未知。rdb 為 nil 時停用事件去重。
func New(svc *service.Service, api *messaging_api.MessagingApiAPI, channelSecret string, rdb *rd.Client, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{svc: svc, api: api, channelSecret: channelSecret, rdb: rdb, log: log}
}

// Webhook gin handler。LINE 平台要求固定回 200，處理失敗只記 log，
// 簽章錯誤除外（回 400 讓平台知道設定有問題）。
func (b *Bot) Webhook(c *gin.Context) {
	cb, err := webhook.ParseRequest(b.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			b.log.Error("webhook 驗簽失敗")
			c.String(http.StatusBadRequest, "invalid signature")
			return
		}
		b.log.Error("webhook 解析失敗", "err", err)
		c.String(http.StatusBadRequest, "bad request")
		return
	}

	ctx := c.Request.Context()
	for _, ev := range cb.Events {
		switch e := ev.(type) {
		case webhook.MessageEvent:
			b.handleMessage(ctx, e)
		case webhook.JoinEvent:
			b.reply(e.ReplyToken, joinGreeting)
		}
	}
	c.String(http.StatusOK, "OK")
}

func (b *Bot) handleMessage(ctx context.Context, e webhook.MessageEvent) {
	msg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return
	}
	if !b.firstDelivery(ctx, e.WebhookEventId) {
		b.log.Info("重送事件，略過", "event_id", e.WebhookEventId)
		return
	}

	chatID, userID := chatAndUser(e.Source)
	if chatID == "" {
		return
	}

	reply := b.svc.HandleText(ctx, chatID, userID, b.nameLookup(e.Source, chatID, userID), msg.Text)
	if reply == "" {
		return
	}
	b.reply(e.ReplyToken, TruncateReply(reply))
}

// firstDelivery 判斷是否第一次收到這個事件。Redis 不可用時一律當作
// 第一次（降級：寧可偶爾重複回覆，不可整批靜默）。
func (b *Bot) firstDelivery(ctx context.Context, eventID string) bool {
	if b.rdb == nil {
		return true
	}
	first, err := redisx.MarkEventOnce(ctx, b.rdb, eventID, eventDedupTTL)
	if err != nil {
		b.log.Warn("事件去重檢查失敗", "err", err)
		return true
	}
	return first
}

func (b *Bot) reply(replyToken, text string) {
	if b.api == nil || replyToken == "" {
		return
	}
	_, err := b.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			&messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		b.log.Error("回覆失敗", "err", err)
	}
}

// nameLookup 延遲查發話者顯示名稱。查不到回空字串，由引擎決定佔位字。
func (b *Bot) nameLookup(src webhook.SourceInterface, chatID, userID string) func() string {
	return func() string {
		if b.api == nil || userID == "" {
			return ""
		}
		switch src.(type) {
		case webhook.GroupSource:
			if p, err := b.api.GetGroupMemberProfile(chatID, userID); err == nil {
				return p.DisplayName
			}
		case webhook.RoomSource:
			if p, err := b.api.GetRoomMemberProfile(chatID, userID); err == nil {
				return p.DisplayName
			}
		default:
			if p, err := b.api.GetProfile(userID); err == nil {
				return p.DisplayName
			}
		}
		return ""
	}
}

// chatAndUser 取事件的聊天室與發話者識別：群組用 groupId、
// 聊天室用 roomId、一對一用 userId。
func chatAndUser(src webhook.SourceInterface) (chatID, userID string) {
	switch s := src.(type) {
	case webhook.GroupSource:
		return s.GroupId, s.UserId
	case webhook.RoomSource:
		return s.RoomId, s.UserId
	case webhook.UserSource:
		return s.UserId, s.UserId
	}
	return "", ""
}

// TruncateReply 把超過 LINE 上限的回覆截斷並附上查詢指引。
func TruncateReply(s string) string {
	runes := []rune(s)
	if len(runes) <= maxReplyRunes {
		return s
	}
	return string(runes[:truncateAt]) + truncateSuffix
}
