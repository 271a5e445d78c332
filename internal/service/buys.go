package service

import (
	"context"
	"fmt"
	"strings"

	"tuangou/internal/model"
	"tuangou/internal/posting"
	"tuangou/internal/queue"
	"tuangou/internal/store"
)

const openFormatHint = "⚠️ 無法解析品項，請確認格式：\n#開團\n標題\n1) 品名 價格\n2) 品名 價格"

// handleOpen 解析開團貼文並建立團購。同一聊天室允許多個團購並行，
// 第二團起回覆會帶 [團購N] 標籤。
func (s *Service) handleOpen(ctx context.Context, c *caller, msg string) string {
	p, ok := posting.Parse(msg)
	if !ok {
		return openFormatHint
	}

	gb := &model.GroupBuy{
		ChatID:      c.chatID,
		Title:       p.Title,
		PostText:    msg,
		CreatorID:   c.userID,
		CreatorName: c.name(),
	}
	items := make([]model.Item, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, model.Item{
			ItemNum:     it.Num,
			Name:        it.Name,
			PriceInfo:   it.Info,
			MaxQuantity: it.Cap,
		})
	}
	if err := s.store.CreateGroupBuy(ctx, gb, items); err != nil {
		s.log.Error("開團失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}

	buys, err := s.store.OpenBuys(ctx, c.chatID)
	if err != nil {
		s.log.Error("查詢團購失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}

	var b strings.Builder
	if len(buys) > 1 {
		fmt.Fprintf(&b, "🛒 開團成功！[團購%d] %s\n", gb.BuyNum, gb.Title)
	} else {
		fmt.Fprintf(&b, "🛒 開團成功！%s\n", gb.Title)
	}
	b.WriteString(sepLine + "\n")
	for _, it := range items {
		writeItemInfo(&b, it.ItemNum, it.PriceInfo)
		if it.MaxQuantity != nil {
			fmt.Fprintf(&b, "　　限量 %d 份\n", *it.MaxQuantity)
		}
	}
	b.WriteString(sepLine + "\n")
	b.WriteString("下單方式：+品項編號\n")
	b.WriteString("例如：+1 或 +1 2（2份）")
	if len(buys) > 1 {
		fmt.Fprintf(&b, "\n\n📢 目前共有 %d 個團購進行中", len(buys))
	}

	s.log.Info("開團", "chat_id", c.chatID, "buy_num", gb.BuyNum, "items", len(items))
	return b.String()
}

// resolveItem 在聊天室所有進行中的團購裡找品項編號。
// 回傳 (nil, nil, "") 代表沒有任何團購，呼叫端應保持靜默；
// 回傳非空 reply 代表找不到或有歧義，直接回給使用者。
func (s *Service) resolveItem(ctx context.Context, chatID string, itemNum int) (*model.GroupBuy, *model.Item, string) {
	buys, err := s.store.OpenBuys(ctx, chatID)
	if err != nil {
		s.log.Error("查詢團購失敗", "chat_id", chatID, "err", err)
		return nil, nil, errBusy
	}
	if len(buys) == 0 {
		return nil, nil, ""
	}

	type match struct {
		buy  model.GroupBuy
		item *model.Item
	}
	var matches []match
	for _, buy := range buys {
		item, err := s.store.FindItem(ctx, buy.ID, itemNum)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			s.log.Error("查詢品項失敗", "chat_id", chatID, "err", err)
			return nil, nil, errBusy
		}
		matches = append(matches, match{buy: buy, item: item})
	}

	switch len(matches) {
	case 0:
		return nil, nil, fmt.Sprintf("⚠️ 沒有品項【%d】，請確認編號。", itemNum)
	case 1:
		buy := matches[0].buy
		return &buy, matches[0].item, ""
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "⚠️ 多個團購都有品項【%d】：\n", itemNum)
		for _, m := range matches {
			fmt.Fprintf(&b, "[團購%d] %s\n", m.buy.BuyNum, m.buy.Title)
		}
		b.WriteString("請輸入「列表」確認後再下單。")
		return nil, nil, b.String()
	}
}

// pickBuy 為團主指令選定團購：指定編號就找該團，
// 只有一團直接用，多團未指定回傳提示文字。
func (s *Service) pickBuy(ctx context.Context, chatID string, buyNum int, verb string) (*model.GroupBuy, string) {
	buys, err := s.store.OpenBuys(ctx, chatID)
	if err != nil {
		s.log.Error("查詢團購失敗", "chat_id", chatID, "err", err)
		return nil, errBusy
	}
	if len(buys) == 0 {
		return nil, "目前沒有進行中的團購。"
	}
	if buyNum > 0 {
		for _, buy := range buys {
			if buy.BuyNum == buyNum {
				b := buy
				return &b, ""
			}
		}
		return nil, fmt.Sprintf("⚠️ 沒有團購%d", buyNum)
	}
	if len(buys) > 1 {
		var b strings.Builder
		b.WriteString("⚠️ 目前有多個團購進行中，請指定編號：\n")
		for _, buy := range buys {
			fmt.Fprintf(&b, "%s %d：%s\n", verb, buy.BuyNum, buy.Title)
		}
		return nil, strings.TrimRight(b.String(), "\n")
	}
	b := buys[0]
	return &b, ""
}

// handleClose 結團：封存最終訂單，僅團主可用。
func (s *Service) handleClose(ctx context.Context, c *caller, buyNum int) string {
	buy, reply := s.pickBuy(ctx, c.chatID, buyNum, "結團")
	if reply != "" || buy == nil {
		return reply
	}
	if c.userID != buy.CreatorID {
		return "⚠️ 只有團主可以結團。"
	}

	multi := false
	if buys, err := s.store.OpenBuys(ctx, c.chatID); err == nil {
		multi = len(buys) > 1
	}
	final, err := s.renderBuy(ctx, buy, multi)
	if err != nil {
		s.log.Error("產生最終列表失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}
	if err := s.store.CloseBuy(ctx, buy.ID); err != nil {
		s.log.Error("結團失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}
	s.publish(ctx, queue.ActionClose, c.chatID, buy.BuyNum, 0, "", 0)
	s.log.Info("結團", "chat_id", c.chatID, "buy_num", buy.BuyNum)
	return "🔒 團購已結團！\n\n" + final
}

// handleCancelBuy 取消團購：連同品項、訂單全部刪除，僅團主可用。
func (s *Service) handleCancelBuy(ctx context.Context, c *caller, buyNum int) string {
	buy, reply := s.pickBuy(ctx, c.chatID, buyNum, "取消團購")
	if reply != "" || buy == nil {
		return reply
	}
	if c.userID != buy.CreatorID {
		return "⚠️ 只有團主可以取消團購。"
	}
	if err := s.store.DeleteBuy(ctx, buy.ID); err != nil {
		s.log.Error("取消團購失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}
	s.publish(ctx, queue.ActionCancelBuy, c.chatID, buy.BuyNum, 0, "", 0)
	s.log.Info("取消團購", "chat_id", c.chatID, "buy_num", buy.BuyNum)
	return fmt.Sprintf("🗑️ 團購「%s」已取消，所有資料已刪除。", buy.Title)
}
