package service

import (
	"context"
	"fmt"
	"strings"

	"tuangou/internal/command"
	"tuangou/internal/model"
	"tuangou/internal/pricing"
	"tuangou/internal/queue"
	"tuangou/internal/store"
)

// handleOrder 單品項下單：+N / +N 數量 / +N 名字 / +N 名字 數量。
func (s *Service) handleOrder(ctx context.Context, c *caller, in command.Intent) string {
	buy, item, reply := s.resolveItem(ctx, c.chatID, in.ItemNum)
	if reply != "" || buy == nil {
		return reply
	}
	if in.Quantity < 1 {
		return "⚠️ 數量必須大於 0"
	}

	name := in.ForName
	proxy := name != ""
	if !proxy {
		name = c.name()
	}

	line, ok := s.applyOrder(ctx, c, buy, item, name, in.Quantity, in.Explicit, proxy)
	if !ok {
		return line
	}
	return line + s.autoCloseIfFull(ctx, c, buy)
}

// handleMultiOrder 多品項下單（#1 #2 #3 [名字]），每個品項隱含 1 份、累加制。
func (s *Service) handleMultiOrder(ctx context.Context, c *caller, in command.Intent) string {
	name := in.ForName
	proxy := name != ""
	if !proxy {
		name = c.name()
	}

	var lines []string
	touched := map[uint]*model.GroupBuy{}
	silent := true
	for _, num := range in.ItemNums {
		buy, item, reply := s.resolveItem(ctx, c.chatID, num)
		if buy == nil {
			if reply != "" {
				lines = append(lines, reply)
				silent = false
			}
			continue
		}
		silent = false
		line, ok := s.applyOrder(ctx, c, buy, item, name, 1, false, proxy)
		lines = append(lines, line)
		if ok {
			touched[buy.ID] = buy
		}
	}
	if silent {
		return ""
	}
	out := strings.Join(lines, "\n")
	// 自動結團在全部子下單完成後才判定一次
	for _, buy := range touched {
		out += s.autoCloseIfFull(ctx, c, buy)
	}
	return out
}

// handleBatchOrder 品名批次下單（水餃×2、蛋餃×3），以品名片段在
// 所有進行中的團購裡比對品項。
func (s *Service) handleBatchOrder(ctx context.Context, c *caller, in command.Intent) string {
	buys, err := s.store.OpenBuys(ctx, c.chatID)
	if err != nil {
		s.log.Error("查詢團購失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}
	if len(buys) == 0 {
		return ""
	}

	type catalogEntry struct {
		buy  model.GroupBuy
		item model.Item
	}
	var catalog []catalogEntry
	for _, buy := range buys {
		items, err := s.store.ItemsByBuy(ctx, buy.ID)
		if err != nil {
			s.log.Error("查詢品項失敗", "chat_id", c.chatID, "err", err)
			return errBusy
		}
		for _, it := range items {
			catalog = append(catalog, catalogEntry{buy: buy, item: it})
		}
	}

	name := in.ForName
	proxy := name != ""
	if !proxy {
		name = c.name()
	}

	var lines []string
	touched := map[uint]*model.GroupBuy{}
	for _, e := range in.Entries {
		var matches []catalogEntry
		for _, ce := range catalog {
			if strings.Contains(ce.item.Name, e.Name) {
				matches = append(matches, ce)
			}
		}
		switch len(matches) {
		case 0:
			lines = append(lines, fmt.Sprintf("⚠️ 找不到品項「%s」", e.Name))
		case 1:
			buy := matches[0].buy
			item := matches[0].item
			line, ok := s.applyOrder(ctx, c, &buy, &item, name, e.Quantity, true, proxy)
			lines = append(lines, line)
			if ok {
				touched[buy.ID] = &buy
			}
		default:
			lines = append(lines, fmt.Sprintf("⚠️「%s」符合多個品項，請改用品項編號下單", e.Name))
		}
	}

	out := strings.Join(lines, "\n")
	// 自動結團在全部子下單完成後才判定一次
	for _, buy := range touched {
		out += s.autoCloseIfFull(ctx, c, buy)
	}
	return out
}

// handleQuantityPrompt 單獨品項編號不能默默當 1 份，回問數量。
func (s *Service) handleQuantityPrompt(ctx context.Context, c *caller, in command.Intent) string {
	buy, item, reply := s.resolveItem(ctx, c.chatID, in.ItemNum)
	if reply != "" || buy == nil {
		return reply
	}
	return fmt.Sprintf("❓【%d】%s 請輸入數量，例如：#%d+2", item.ItemNum, item.Name, item.ItemNum)
}

// handleCancelOrder 退出：退出 N / 退出 N 名字。
func (s *Service) handleCancelOrder(ctx context.Context, c *caller, in command.Intent) string {
	buy, item, reply := s.resolveItem(ctx, c.chatID, in.ItemNum)
	if reply != "" || buy == nil {
		return reply
	}

	if in.ForName != "" {
		deleted, err := s.store.DeleteOrder(ctx, buy.ID, item.ItemNum, in.ForName)
		if err != nil {
			s.log.Error("取消訂單失敗", "chat_id", c.chatID, "err", err)
			return errBusy
		}
		if !deleted {
			return fmt.Sprintf("⚠️ 找不到 %s 在【%d】%s 的訂單", in.ForName, item.ItemNum, item.Name)
		}
		s.publish(ctx, queue.ActionCancel, c.chatID, buy.BuyNum, item.ItemNum, in.ForName, 0)
		return fmt.Sprintf("❌ 已取消 %s【%d】%s 的訂單", in.ForName, item.ItemNum, item.Name)
	}

	name := c.name()
	deleted, err := s.store.DeleteOrder(ctx, buy.ID, item.ItemNum, name)
	if err != nil {
		s.log.Error("取消訂單失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}
	if !deleted {
		return fmt.Sprintf("⚠️ 你沒有在【%d】%s 下單", item.ItemNum, item.Name)
	}
	s.publish(ctx, queue.ActionCancel, c.chatID, buy.BuyNum, item.ItemNum, name, 0)
	return fmt.Sprintf("❌ 已取消【%d】%s 的訂單", item.ItemNum, item.Name)
}

// applyOrder 把一筆下單寫進帳本。
// explicit 為 true 時數量是使用者明講的，覆寫既有訂單；
// false 時是簡寫隱含的份數，累加到既有訂單。
// 回傳 (回覆行, 是否成功)。限量檢查與寫入在同一個聊天室鎖內，不會超賣。
func (s *Service) applyOrder(ctx context.Context, c *caller, buy *model.GroupBuy, item *model.Item, name string, qty int, explicit, proxy bool) (string, bool) {
	// 帳本裡不存在 0 份的訂單，歸零要走退出
	if qty < 1 {
		return "⚠️ 數量必須大於 0", false
	}

	existing, err := s.store.FindOrder(ctx, buy.ID, item.ItemNum, name)
	if err != nil && err != store.ErrNotFound {
		s.log.Error("查詢訂單失敗", "chat_id", c.chatID, "err", err)
		return errBusy, false
	}

	// delta 是這筆指令造成的總量變化
	delta := qty
	if explicit && existing != nil {
		delta = qty - existing.Quantity
	}

	sold := 0
	if item.MaxQuantity != nil {
		sold, err = s.store.SoldQuantity(ctx, buy.ID, item.ItemNum)
		if err != nil {
			s.log.Error("查詢銷量失敗", "chat_id", c.chatID, "err", err)
			return errBusy, false
		}
		limit := *item.MaxQuantity
		if delta > 0 {
			if sold >= limit {
				return fmt.Sprintf("⚠️ 品項【%d】%s 已額滿（限量 %d 份）", item.ItemNum, item.Name, limit), false
			}
			if sold+delta > limit {
				return fmt.Sprintf("⚠️ 品項【%d】%s 剩餘 %d 份，無法再加 %d 份", item.ItemNum, item.Name, limit-sold, delta), false
			}
		}
	}

	var total int
	switch {
	case existing == nil:
		o := &model.Order{
			GroupBuyID: buy.ID,
			ItemNum:    item.ItemNum,
			UserID:     c.userID,
			UserName:   name,
			Quantity:   qty,
		}
		if proxy {
			o.RegisteredBy = c.name()
		}
		if err := s.store.CreateOrder(ctx, o); err != nil {
			s.log.Error("建立訂單失敗", "chat_id", c.chatID, "err", err)
			return errBusy, false
		}
		total = qty
	case explicit:
		total = qty
		if err := s.store.UpdateOrderQuantity(ctx, existing.ID, total); err != nil {
			s.log.Error("更新訂單失敗", "chat_id", c.chatID, "err", err)
			return errBusy, false
		}
	default:
		total = existing.Quantity + qty
		if err := s.store.UpdateOrderQuantity(ctx, existing.ID, total); err != nil {
			s.log.Error("更新訂單失敗", "chat_id", c.chatID, "err", err)
			return errBusy, false
		}
	}

	var line string
	if explicit && existing != nil {
		line = fmt.Sprintf("✅ %s【%d】%s → %d 份", name, item.ItemNum, item.Name, total)
		if amt, ok := pricing.PriceFor(item.PriceInfo, total); ok {
			line += fmt.Sprintf("（%d 元）", amt)
		}
	} else {
		if amt, ok := pricing.PriceFor(item.PriceInfo, total); ok {
			line = fmt.Sprintf("✅ %s【%d】%s +%d份（共 %d 份，%d 元）", name, item.ItemNum, item.Name, qty, total, amt)
		} else {
			line = fmt.Sprintf("✅ %s【%d】%s +%d份（共 %d 份）", name, item.ItemNum, item.Name, qty, total)
		}
	}

	if item.MaxQuantity != nil {
		limit := *item.MaxQuantity
		newSold := sold + delta
		if newSold < limit {
			line += fmt.Sprintf("\n📊 已訂 %d/%d，剩餘 %d 份", newSold, limit, limit-newSold)
		} else {
			line += fmt.Sprintf("\n📊 已訂 %d/%d，已額滿", newSold, limit)
		}
	}

	s.publish(ctx, queue.ActionOrder, c.chatID, buy.BuyNum, item.ItemNum, name, total)
	s.log.Info("下單", "chat_id", c.chatID, "buy_num", buy.BuyNum,
		"item_num", item.ItemNum, "name", name, "quantity", total, "proxy", proxy)
	return line, true
}

// autoCloseIfFull 在團購全部品項都有限量且都額滿時自動結團，
// 回傳要附加在回覆後面的結團訊息；條件不成立回傳空字串。
func (s *Service) autoCloseIfFull(ctx context.Context, c *caller, buy *model.GroupBuy) string {
	items, err := s.store.ItemsByBuy(ctx, buy.ID)
	if err != nil {
		s.log.Error("查詢品項失敗", "chat_id", c.chatID, "err", err)
		return ""
	}
	for _, it := range items {
		if it.MaxQuantity == nil {
			return ""
		}
		sold, err := s.store.SoldQuantity(ctx, buy.ID, it.ItemNum)
		if err != nil {
			s.log.Error("查詢銷量失敗", "chat_id", c.chatID, "err", err)
			return ""
		}
		if sold < *it.MaxQuantity {
			return ""
		}
	}

	multi := false
	if buys, err := s.store.OpenBuys(ctx, c.chatID); err == nil {
		multi = len(buys) > 1
	}
	final, err := s.renderBuy(ctx, buy, multi)
	if err != nil {
		final = ""
	}
	if err := s.store.CloseBuy(ctx, buy.ID); err != nil {
		s.log.Error("自動結團失敗", "chat_id", c.chatID, "err", err)
		return ""
	}
	s.publish(ctx, queue.ActionClose, c.chatID, buy.BuyNum, 0, "", 0)
	s.log.Info("自動結團", "chat_id", c.chatID, "buy_num", buy.BuyNum)

	out := "\n\n🔒 所有品項皆已額滿，自動結團！"
	if final != "" {
		out += "\n\n" + final
	}
	return out
}
