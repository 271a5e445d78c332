package service

import (
	"context"
	"fmt"
	"strings"

	"tuangou/internal/model"
	"tuangou/internal/pricing"
)

const sepLine = "────────────────"

// writeItemInfo 寫出品項完整描述：首行帶【N】，後續行縮排。
func writeItemInfo(b *strings.Builder, itemNum int, info string) {
	lines := strings.Split(info, "\n")
	fmt.Fprintf(b, "【%d】%s\n", itemNum, lines[0])
	for _, extra := range lines[1:] {
		fmt.Fprintf(b, "　　%s\n", extra)
	}
}

// handleList 列表：查看下單狀況。多團購時全部列出並帶 [團購N] 標籤，
// 指定編號只列該團。
func (s *Service) handleList(ctx context.Context, c *caller, buyNum int) string {
	buys, err := s.store.OpenBuys(ctx, c.chatID)
	if err != nil {
		s.log.Error("查詢團購失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}
	if len(buys) == 0 {
		return "目前沒有進行中的團購。"
	}

	if buyNum > 0 {
		for _, buy := range buys {
			if buy.BuyNum == buyNum {
				out, err := s.renderBuy(ctx, &buy, true)
				if err != nil {
					s.log.Error("產生列表失敗", "chat_id", c.chatID, "err", err)
					return errBusy
				}
				return out
			}
		}
		return fmt.Sprintf("⚠️ 沒有團購%d", buyNum)
	}

	label := len(buys) > 1
	var parts []string
	for _, buy := range buys {
		out, err := s.renderBuy(ctx, &buy, label)
		if err != nil {
			s.log.Error("產生列表失敗", "chat_id", c.chatID, "err", err)
			return errBusy
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n")
}

// renderBuy 組一個團購的完整下單狀況。
func (s *Service) renderBuy(ctx context.Context, buy *model.GroupBuy, label bool) (string, error) {
	items, err := s.store.ItemsByBuy(ctx, buy.ID)
	if err != nil {
		return "", err
	}
	orders, err := s.store.OrdersByBuy(ctx, buy.ID)
	if err != nil {
		return "", err
	}

	byItem := map[int][]model.Order{}
	for _, o := range orders {
		byItem[o.ItemNum] = append(byItem[o.ItemNum], o)
	}

	var b strings.Builder
	if label {
		fmt.Fprintf(&b, "🛒 [團購%d] %s\n", buy.BuyNum, buy.Title)
	} else {
		fmt.Fprintf(&b, "🛒 %s\n", buy.Title)
	}
	b.WriteString(sepLine + "\n")

	total := 0
	for _, it := range items {
		writeItemInfo(&b, it.ItemNum, it.PriceInfo)

		itemOrders := byItem[it.ItemNum]
		if len(itemOrders) == 0 {
			b.WriteString("   （尚無人下單）\n\n")
			continue
		}
		subtotal := 0
		for _, o := range itemOrders {
			fmt.Fprintf(&b, "   👤 %s x%d\n", o.UserName, o.Quantity)
			subtotal += o.Quantity
		}
		total += subtotal
		if amt, ok := pricing.PriceFor(it.PriceInfo, subtotal); ok {
			fmt.Fprintf(&b, "   小計：%d 份（%d 元）\n\n", subtotal, amt)
		} else {
			fmt.Fprintf(&b, "   小計：%d 份\n\n", subtotal)
		}
	}

	b.WriteString(sepLine + "\n")
	fmt.Fprintf(&b, "共 %d 份訂單", total)
	return b.String(), nil
}

// handleMyOrders 我的訂單：列出自己名下的訂單與幫別人代訂的，跨所有進行中的團購。
func (s *Service) handleMyOrders(ctx context.Context, c *caller) string {
	buys, err := s.store.OpenBuys(ctx, c.chatID)
	if err != nil {
		s.log.Error("查詢團購失敗", "chat_id", c.chatID, "err", err)
		return errBusy
	}
	if len(buys) == 0 {
		return "目前沒有進行中的團購。"
	}

	type entry struct {
		buyNum   int
		itemNum  int
		itemName string
		userName string
		quantity int
	}
	var own, proxied []entry

	for _, buy := range buys {
		items, err := s.store.ItemsByBuy(ctx, buy.ID)
		if err != nil {
			s.log.Error("查詢品項失敗", "chat_id", c.chatID, "err", err)
			return errBusy
		}
		nameByNum := map[int]string{}
		for _, it := range items {
			nameByNum[it.ItemNum] = it.Name
		}

		orders, err := s.store.OrdersByUser(ctx, buy.ID, c.userID)
		if err != nil {
			s.log.Error("查詢訂單失敗", "chat_id", c.chatID, "err", err)
			return errBusy
		}
		for _, o := range orders {
			itemName := nameByNum[o.ItemNum]
			if itemName == "" {
				itemName = fmt.Sprintf("品項%d", o.ItemNum)
			}
			e := entry{
				buyNum:   buy.BuyNum,
				itemNum:  o.ItemNum,
				itemName: itemName,
				userName: o.UserName,
				quantity: o.Quantity,
			}
			if o.RegisteredBy == "" {
				own = append(own, e)
			} else {
				proxied = append(proxied, e)
			}
		}
	}

	if len(own) == 0 && len(proxied) == 0 {
		return "📋 你目前沒有下單。"
	}

	label := len(buys) > 1
	prefix := func(e entry) string {
		if label {
			return fmt.Sprintf("[團購%d] ", e.buyNum)
		}
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s 的訂單\n", c.name())
	b.WriteString(sepLine + "\n")
	for _, e := range own {
		fmt.Fprintf(&b, "%s【%d】%s x%d\n", prefix(e), e.itemNum, e.itemName, e.quantity)
	}
	if len(proxied) > 0 {
		b.WriteString("\n📦 代訂：\n")
		for _, e := range proxied {
			fmt.Fprintf(&b, "%s【%d】%s x%d（%s）\n", prefix(e), e.itemNum, e.itemName, e.quantity, e.userName)
		}
	}
	b.WriteString(sepLine + "\n")
	fmt.Fprintf(&b, "共 %d 項", len(own)+len(proxied))
	return b.String()
}
