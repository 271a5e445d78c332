// Package service 是團購引擎：把路由結果接到訂單帳本，
// 組出要回到聊天室的文字。回傳空字串代表保持靜默。
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tuangou/internal/ai"
	"tuangou/internal/command"
	"tuangou/internal/queue"
	"tuangou/internal/store"
	"tuangou/internal/text"
)

// 臨時性的內部錯誤統一回這句，細節只進 log。
const errBusy = "⚠️ 系統忙碌中，請稍後再試。"

// HelpText 團購說明指令的完整回覆。
const HelpText = `📖 團購指令說明
━━━━━━━━━━━━━━
【所有人可用】
+N / #N　　　　　下單品項N（累加1份）
+N 數量　　　　　下單品項N指定數量
+N 名字　　　　　幫人下單1份
+N 名字 數量　　 幫人下單指定數量
#1 #2 #3 名字　　一次下單多品項
品名×數量　　　　用品名下單，可「、」分隔多項
退出 N　　　　　 取消品項N的訂單
退出 N 名字　　　取消指定人的訂單
列表 [編號]　　　查看下單狀況
我的訂單　　　　　查看自己的訂單
團購說明　　　　　顯示本說明

━━━━━━━━━━━━━━
【團主專用】
結團 [編號]　　　封存最終訂單
取消團購 [編號]　刪除所有資料`

// EventPublisher 訂單事件的下游出口，*queue.Producer 即實作。
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.OrderEvent) error
}

// Service 團購引擎。所有指令以聊天室為單位序列化執行，
// 搭配儲存層交易保證限量檢查不會超賣。
type Service struct {
	store  *store.Store
	ai     ai.IntentParser
	events EventPublisher
	log    *slog.Logger

	mu     sync.Mutex
	chatMu map[string]*sync.Mutex
}

// Option 組態選項。
type Option func(*Service)

// WithAI 啟用 AI 口語解析 fallback。
func WithAI(p ai.IntentParser) Option {
	return func(s *Service) { s.ai = p }
}

// WithEvents 啟用訂單事件發佈。
func WithEvents(pub EventPublisher) Option {
	return func(s *Service) { s.events = pub }
}

// WithLogger 指定 logger。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New 建立團購引擎。
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		log:    slog.Default(),
		chatMu: map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// caller 一次指令的發話者。顯示名稱查詢要打 LINE API，
// 所以延遲到真正需要時才做，且一個指令內最多查一次。
type caller struct {
	chatID string
	userID string
	lookup func() string

	cached  string
	fetched bool
}

func (c *caller) name() string {
	if !c.fetched {
		c.fetched = true
		if c.lookup != nil {
			c.cached = strings.TrimSpace(c.lookup())
		}
		if c.cached == "" {
			c.cached = "（未知）"
		}
	}
	return c.cached
}

// HandleText 處理一則聊天室文字訊息，回傳回覆文字；空字串代表不回覆。
// lookupName 取發話者顯示名稱，查不到可回空字串。
func (s *Service) HandleText(ctx context.Context, chatID, userID string, lookupName func() string, raw string) string {
	msg := text.Normalize(strings.TrimSpace(raw))
	if msg == "" {
		return ""
	}
	in := command.Classify(msg)

	unlock := s.lockChat(chatID)
	defer unlock()

	c := &caller{chatID: chatID, userID: userID, lookup: lookupName}
	return s.dispatch(ctx, c, in, msg, true)
}

func (s *Service) dispatch(ctx context.Context, c *caller, in command.Intent, msg string, allowAI bool) string {
	switch in.Kind {
	case command.KindOpen:
		return s.handleOpen(ctx, c, msg)
	case command.KindOrder:
		return s.handleOrder(ctx, c, in)
	case command.KindMultiOrder:
		return s.handleMultiOrder(ctx, c, in)
	case command.KindBatchOrder:
		return s.handleBatchOrder(ctx, c, in)
	case command.KindQuantityPrompt:
		return s.handleQuantityPrompt(ctx, c, in)
	case command.KindCancelOrder:
		return s.handleCancelOrder(ctx, c, in)
	case command.KindList:
		return s.handleList(ctx, c, in.BuyNum)
	case command.KindMyOrders:
		return s.handleMyOrders(ctx, c)
	case command.KindHelp:
		return HelpText
	case command.KindClose:
		return s.handleClose(ctx, c, in.BuyNum)
	case command.KindCancelBuy:
		return s.handleCancelBuy(ctx, c, in.BuyNum)
	default:
		if allowAI {
			return s.handleUnknown(ctx, c, in, msg)
		}
		return ""
	}
}

// handleUnknown 在規則全部未命中時改問 AI。AI 不可用、沒有進行中的
// 團購、或解析失敗時保持靜默，避免在群組裡亂回話。
func (s *Service) handleUnknown(ctx context.Context, c *caller, in command.Intent, msg string) string {
	if !in.AIEligible || s.ai == nil {
		return ""
	}
	buys, err := s.store.OpenBuys(ctx, c.chatID)
	if err != nil || len(buys) == 0 {
		return ""
	}

	var catalog []ai.CatalogItem
	var mine []ai.OwnOrder
	for _, buy := range buys {
		items, err := s.store.ItemsByBuy(ctx, buy.ID)
		if err != nil {
			return ""
		}
		names := make(map[int]string, len(items))
		for _, it := range items {
			names[it.ItemNum] = it.Name
			catalog = append(catalog, ai.CatalogItem{BuyNum: buy.BuyNum, ItemNum: it.ItemNum, Name: it.Name, Title: buy.Title})
		}
		orders, err := s.store.OrdersByUser(ctx, buy.ID, c.userID)
		if err != nil {
			return ""
		}
		for _, o := range orders {
			mine = append(mine, ai.OwnOrder{BuyNum: buy.BuyNum, ItemNum: o.ItemNum, Name: names[o.ItemNum], Quantity: o.Quantity})
		}
	}

	parsed, err := s.ai.ParseIntent(ctx, ai.Request{Text: msg, Catalog: catalog, Orders: mine})
	if err != nil {
		s.log.Warn("AI 解析失敗", "chat_id", c.chatID, "err", err)
		return ""
	}
	if parsed.Kind == command.KindUnknown {
		return ""
	}
	s.log.Info("AI 解析命中", "chat_id", c.chatID, "kind", int(parsed.Kind))
	return s.dispatch(ctx, c, parsed, msg, false)
}

// lockChat 取聊天室層級的鎖，回傳解鎖函式。
func (s *Service) lockChat(chatID string) func() {
	s.mu.Lock()
	m, ok := s.chatMu[chatID]
	if !ok {
		m = &sync.Mutex{}
		s.chatMu[chatID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// publish 發佈訂單事件。未設定 Kafka 或發佈失敗都不影響主流程。
func (s *Service) publish(ctx context.Context, action, chatID string, buyNum, itemNum int, userName string, qty int) {
	if s.events == nil {
		return
	}
	ev := queue.OrderEvent{
		RequestID: uuid.NewString(),
		ChatID:    chatID,
		BuyNum:    buyNum,
		ItemNum:   itemNum,
		UserName:  userName,
		Quantity:  qty,
		Action:    action,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("訂單事件發佈失敗", "action", action, "chat_id", chatID, "err", err)
	}
}
