package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"tuangou/internal/ai"
	"tuangou/internal/command"
	"tuangou/internal/queue"
	"tuangou/internal/store"
)

const (
	gid    = "test_group"
	uid    = "user_001"
	uname  = "測試者"
	uid2   = "user_002"
	uname2 = "小明"
)

func testService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return New(st, opts...)
}

func handle(s *Service, userID, userName, msg string) string {
	return s.HandleText(context.Background(), gid, userID, func() string { return userName }, msg)
}

func openBuy(t *testing.T, s *Service) {
	t.Helper()
	reply := handle(s, uid, uname, "#開團\n今日美食\n1) 水餃 50元\n2) 蛋餃 60元\n3) 魚餃 70元")
	if !strings.Contains(reply, "開團成功") {
		t.Fatalf("open failed: %q", reply)
	}
}

func openBuyLimited(t *testing.T, s *Service, limit string) {
	t.Helper()
	reply := handle(s, uid, uname, "#開團 限量"+limit+"份\n限量美食\n1) 水餃 50元\n2) 蛋餃 60元")
	if !strings.Contains(reply, "開團成功") {
		t.Fatalf("open failed: %q", reply)
	}
}

func mustContain(t *testing.T, reply string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(reply, w) {
			t.Errorf("reply missing %q:\n%s", w, reply)
		}
	}
}

// ── 開團

func TestOpenBasic(t *testing.T) {
	s := testService(t)
	reply := handle(s, uid, uname, "#開團\n今日美食\n1) 水餃 50元\n2) 蛋餃 60元\n3) 魚餃 70元")
	mustContain(t, reply, "開團成功", "今日美食", "水餃", "蛋餃", "魚餃")
}

func TestOpenMultiBuyLabels(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元\n2) 排骨飯 90元")
	mustContain(t, reply, "[團購2]", "目前共有 2 個團購進行中")
}

func TestOpenNoItems(t *testing.T) {
	s := testService(t)
	reply := handle(s, uid, uname, "#開團\n沒有品項的文字")
	mustContain(t, reply, "無法解析品項")
}

func TestOpenPerItemCap(t *testing.T) {
	s := testService(t)
	reply := handle(s, uid, uname, "#開團\n冰品團購\n1) 新鮮冰花 200元 限量25組\n2) 芒果冰 150元")
	mustContain(t, reply, "【1】", "限量 25 份")
	if strings.Count(reply, "限量 ") != 1 {
		t.Errorf("only item 1 should carry a limit line:\n%s", reply)
	}
}

// ── 單品項下單

func TestOrderWithQuantity(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "+1 2")
	mustContain(t, reply, "水餃", "2", "100 元")
}

func TestOrderAccumulate(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1")
	reply := handle(s, uid, uname, "+1")
	mustContain(t, reply, "共 2 份")
}

func TestOrderExplicitOverride(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 5")
	reply := handle(s, uid, uname, "+1 3")
	mustContain(t, reply, "→ 3 份")
}

func TestOrderForSomeone(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "+1 小明 3")
	mustContain(t, reply, "小明", "3")
}

func TestOrderItemNotExist(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "+99")
	mustContain(t, reply, "沒有品項")
}

func TestOrderNoBuySilent(t *testing.T) {
	s := testService(t)
	if reply := handle(s, uid, uname, "+1 2"); reply != "" {
		t.Errorf("expected silence, got %q", reply)
	}
}

func TestOrderQuantityWithUnit(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "+1 2份")
	mustContain(t, reply, "共 2 份")
}

func TestOrderFullwidth(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "＋１　２")
	mustContain(t, reply, "水餃", "共 2 份")
}

func TestQuantityPrompt(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "#1")
	mustContain(t, reply, "請輸入數量", "水餃")
}

// ── 多品項下單

func TestMultiOrder(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "#1 #2 #3")
	mustContain(t, reply, "水餃", "蛋餃", "魚餃")
}

func TestMultiOrderForSomeone(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "+1 +2 小明")
	mustContain(t, reply, "小明", "水餃", "蛋餃")
}

func TestMultiOrderNoBuySilent(t *testing.T) {
	s := testService(t)
	if reply := handle(s, uid, uname, "#1 #2"); reply != "" {
		t.Errorf("expected silence, got %q", reply)
	}
}

// ── 批次下單

func TestBatchOrder(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "水餃×2、蛋餃×3")
	mustContain(t, reply, "水餃", "蛋餃")
	if got := strings.Count(reply, "✅"); got != 2 {
		t.Errorf("success lines = %d, want 2\n%s", got, reply)
	}
}

func TestBatchOrderCrossBuy(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元\n2) 排骨飯 90元")
	reply := handle(s, uid, uname, "滷肉飯×1")
	mustContain(t, reply, "滷肉飯")
}

func TestBatchOrderProxy(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "小明|水餃×2")
	mustContain(t, reply, "小明", "水餃")
}

func TestBatchOrderUnknownName(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "牛肉麵×2")
	mustContain(t, reply, "找不到品項")
}

func TestBatchOrderZeroQuantity(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "水餃×0")
	mustContain(t, reply, "數量必須大於 0")

	// 0 份不能寫進帳本
	buys, err := s.store.OpenBuys(context.Background(), gid)
	if err != nil || len(buys) != 1 {
		t.Fatalf("buys = %v, err %v", buys, err)
	}
	if _, err := s.store.FindOrder(context.Background(), buys[0].ID, 1, uname); err != store.ErrNotFound {
		t.Errorf("zero quantity order stored: err = %v", err)
	}
}

func TestBatchZeroQuantityKeepsExisting(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 3")
	reply := handle(s, uid, uname, "水餃×0")
	mustContain(t, reply, "數量必須大於 0")

	buys, _ := s.store.OpenBuys(context.Background(), gid)
	o, err := s.store.FindOrder(context.Background(), buys[0].ID, 1, uname)
	if err != nil || o.Quantity != 3 {
		t.Errorf("order = %+v, err %v, want quantity 3", o, err)
	}
}

func TestBatchOrderNoBuySilent(t *testing.T) {
	s := testService(t)
	if reply := handle(s, uid, uname, "水餃×2"); reply != "" {
		t.Errorf("expected silence, got %q", reply)
	}
}

func TestBatchNoPrematureAutoClose(t *testing.T) {
	s := testService(t)
	openBuyLimited(t, s, "5")
	reply := handle(s, uid, uname, "水餃×2、蛋餃×3")
	if got := strings.Count(reply, "✅"); got != 2 {
		t.Fatalf("success lines = %d, want 2\n%s", got, reply)
	}
	if strings.Contains(reply, "自動結團") {
		t.Errorf("should not auto close:\n%s", reply)
	}
	mustContain(t, handle(s, uid, uname, "列表"), "限量美食")
}

func TestBatchFirstItemFillsLimit(t *testing.T) {
	s := testService(t)
	openBuyLimited(t, s, "3")
	reply := handle(s, uid, uname, "水餃×3、蛋餃×2")
	if strings.Contains(reply, "自動結團") {
		t.Errorf("item 2 not full, should not auto close:\n%s", reply)
	}
	mustContain(t, handle(s, uid, uname, "列表"), "限量美食")
}

// ── 退出

func TestCancelOwn(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	reply := handle(s, uid, uname, "退出 1")
	mustContain(t, reply, "已取消", "水餃")
}

func TestCancelForSomeone(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 小明 2")
	reply := handle(s, uid, uname, "退出 1 小明")
	mustContain(t, reply, "已取消", "小明")
}

func TestCancelItemNotExist(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "退出 99")
	mustContain(t, reply, "沒有品項")
}

func TestCancelNoOrder(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "退出 1")
	mustContain(t, reply, "你沒有在")
}

func TestCancelMultiBuyResolve(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n4) 滷肉飯 80元\n5) 排骨飯 90元")
	handle(s, uid, uname, "+4 2")
	reply := handle(s, uid, uname, "退出 4")
	mustContain(t, reply, "已取消", "滷肉飯")
}

// ── 多團購解析

func TestResolveAmbiguous(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元")
	reply := handle(s, uid, uname, "+1 2")
	mustContain(t, reply, "多個團購")
}

// ── 列表

func TestListBasic(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	reply := handle(s, uid, uname, "列表")
	mustContain(t, reply, "水餃", uname, "x2", "小計：2 份", "共 2 份訂單")
}

func TestListSpecifiedBuy(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元")
	reply := handle(s, uid, uname, "列表 2")
	mustContain(t, reply, "第二團", "[團購2]")
	if strings.Contains(reply, "今日美食") {
		t.Errorf("should only show buy 2:\n%s", reply)
	}
}

func TestListMultiBuy(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元")
	reply := handle(s, uid, uname, "列表")
	mustContain(t, reply, "[團購1]", "[團購2]")
}

func TestListNoBuy(t *testing.T) {
	s := testService(t)
	mustContain(t, handle(s, uid, uname, "列表"), "沒有進行中的團購")
}

func TestListNonexistentBuyNum(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	mustContain(t, handle(s, uid, uname, "列表 99"), "沒有團購99")
}

// ── 我的訂單

func TestMyOrdersBasic(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	reply := handle(s, uid, uname, "我的訂單")
	mustContain(t, reply, uname, "水餃")
}

func TestMyOrdersWithProxy(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	handle(s, uid, uname, "+2 小明 1")
	reply := handle(s, uid, uname, "我的訂單")
	mustContain(t, reply, "代訂", "小明")
}

func TestMyOrdersMultiBuy(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n4) 滷肉飯 80元")
	handle(s, uid, uname, "+1 1")
	handle(s, uid, uname, "+4 1")
	reply := handle(s, uid, uname, "我的訂單")
	mustContain(t, reply, "水餃", "滷肉飯")
}

func TestMyOrdersNone(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	mustContain(t, handle(s, uid, uname, "我的訂單"), "沒有下單")
}

func TestMyOrdersNoBuy(t *testing.T) {
	s := testService(t)
	mustContain(t, handle(s, uid, uname, "我的訂單"), "沒有進行中的團購")
}

// ── 結團

func TestCloseByCreator(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	mustContain(t, handle(s, uid, uname, "結團"), "結團")
	mustContain(t, handle(s, uid, uname, "列表"), "沒有進行中的團購")
}

func TestCloseNotCreator(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	mustContain(t, handle(s, uid2, uname2, "結團"), "只有團主")
}

func TestCloseSpecificBuy(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元")
	mustContain(t, handle(s, uid, uname, "結團2"), "結團")
	// 第一團應該還在
	reply := handle(s, uid, uname, "列表")
	mustContain(t, reply, "今日美食")
	if strings.Contains(reply, "第二團") {
		t.Errorf("buy 2 should be closed:\n%s", reply)
	}
}

func TestCloseMultiNoSpecify(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元")
	mustContain(t, handle(s, uid, uname, "結團"), "多個團購", "結團 1")
}

func TestCloseNoBuy(t *testing.T) {
	s := testService(t)
	mustContain(t, handle(s, uid, uname, "結團"), "沒有進行中的團購")
}

// ── 取消團購

func TestCancelBuyByCreator(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	mustContain(t, handle(s, uid, uname, "取消團購"), "已取消")
	mustContain(t, handle(s, uid, uname, "列表"), "沒有進行中的團購")
}

func TestCancelBuyNotCreator(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	mustContain(t, handle(s, uid2, uname2, "取消團購"), "只有團主")
}

func TestCancelBuySpecific(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元")
	mustContain(t, handle(s, uid, uname, "取消團購2"), "已取消", "第二團")
	mustContain(t, handle(s, uid, uname, "列表"), "今日美食")
}

// ── 限量與自動結團

func TestProgressMessage(t *testing.T) {
	s := testService(t)
	openBuyLimited(t, s, "5")
	reply := handle(s, uid, uname, "+1 2")
	mustContain(t, reply, "已訂 2/5", "剩餘 3 份")
}

func TestSoldOutReject(t *testing.T) {
	s := testService(t)
	handle(s, uid, uname, "#開團\n冰品團購\n1) 新鮮冰花 200元 限量3組\n2) 芒果冰 150元")
	handle(s, uid, uname, "+1 3")
	reply := handle(s, uid2, uname2, "+1 1")
	mustContain(t, reply, "已額滿", "限量 3 份")

	// 品項2無限量，仍可下單；團購不結團
	reply2 := handle(s, uid2, uname2, "+2 3")
	mustContain(t, reply2, "✅", "芒果冰")
	mustContain(t, handle(s, uid, uname, "列表"), "冰品團購")
}

func TestRemainingReject(t *testing.T) {
	s := testService(t)
	handle(s, uid, uname, "#開團\n冰品團購\n1) 新鮮冰花 200元 限量5組\n2) 芒果冰 150元")
	handle(s, uid, uname, "+1 3")
	reply := handle(s, uid2, uname2, "+1 3")
	mustContain(t, reply, "剩餘 2 份", "無法再加 3 份")
}

func TestAutoCloseOnLimit(t *testing.T) {
	s := testService(t)
	openBuyLimited(t, s, "5")
	handle(s, uid, uname, "+1 5")
	reply := handle(s, uid, uname, "+2 5")
	mustContain(t, reply, "自動結團")
	mustContain(t, handle(s, uid, uname, "列表"), "沒有進行中的團購")
}

func TestAutoCloseLabelsWhenMultiBuy(t *testing.T) {
	s := testService(t)
	openBuyLimited(t, s, "2")
	handle(s, uid, uname, "#開團\n第二團\n1) 滷肉飯 80元")
	reply := handle(s, uid, uname, "水餃×2、蛋餃×2")
	// 還有別團進行中，結團快照要帶 [團購N] 標籤
	mustContain(t, reply, "自動結團", "[團購1]", "限量美食")
	mustContain(t, handle(s, uid, uname, "列表"), "第二團")
}

func TestNoAutoCloseWithoutLimit(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	reply := handle(s, uid, uname, "+1 100")
	if strings.Contains(reply, "自動結團") {
		t.Errorf("uncapped buy must not auto close:\n%s", reply)
	}
	mustContain(t, handle(s, uid, uname, "列表"), "今日美食")
}

func TestMixedLimitNoAutoClose(t *testing.T) {
	s := testService(t)
	handle(s, uid, uname, "#開團\n冰品團購\n1) 新鮮冰花 200元 限量2組\n2) 芒果冰 150元")
	reply := handle(s, uid, uname, "+1 2")
	if strings.Contains(reply, "自動結團") {
		t.Errorf("item 2 is uncapped, must not auto close:\n%s", reply)
	}
	mustContain(t, handle(s, uid, uname, "列表"), "冰品團購")
}

// ── 說明與靜默

func TestHelp(t *testing.T) {
	s := testService(t)
	mustContain(t, handle(s, uid, uname, "團購說明"), "指令說明")
}

func TestChatterSilent(t *testing.T) {
	s := testService(t)
	openBuy(t, s)
	if reply := handle(s, uid, uname, "大家晚安呀"); reply != "" {
		t.Errorf("chatter without AI should be silent, got %q", reply)
	}
}

// ── AI fallback

type fakeAI struct {
	intent command.Intent
	err    error
	called bool
	req    ai.Request
}

func (f *fakeAI) ParseIntent(ctx context.Context, req ai.Request) (command.Intent, error) {
	f.called = true
	f.req = req
	return f.intent, f.err
}

func TestAIFallbackOrder(t *testing.T) {
	fake := &fakeAI{intent: command.Intent{Kind: command.KindOrder, ItemNum: 1, Quantity: 1}}
	s := testService(t, WithAI(fake))
	openBuy(t, s)
	reply := handle(s, uid, uname, "我想要一份水餃")
	if !fake.called {
		t.Fatal("AI parser not invoked")
	}
	mustContain(t, reply, "水餃")
}

func TestAIFallbackErrorSilent(t *testing.T) {
	fake := &fakeAI{err: errors.New("boom")}
	s := testService(t, WithAI(fake))
	openBuy(t, s)
	if reply := handle(s, uid, uname, "我想要一份水餃"); reply != "" {
		t.Errorf("AI failure should be silent, got %q", reply)
	}
}

func TestAINotCalledForCommands(t *testing.T) {
	fake := &fakeAI{intent: command.Intent{Kind: command.KindList}}
	s := testService(t, WithAI(fake))
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	if fake.called {
		t.Error("AI must not run when a rule matched")
	}
}

func TestAIRequestCarriesContext(t *testing.T) {
	fake := &fakeAI{intent: command.Intent{Kind: command.KindUnknown}}
	s := testService(t, WithAI(fake))
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	handle(s, uid, uname, "我還要再加一份")
	if !fake.called {
		t.Fatal("AI parser not invoked")
	}
	// 目錄要帶團購標題，並附上發話者既有的訂單
	if len(fake.req.Catalog) != 3 || fake.req.Catalog[0].Title != "今日美食" {
		t.Errorf("catalog = %+v", fake.req.Catalog)
	}
	if len(fake.req.Orders) != 1 {
		t.Fatalf("orders = %+v, want 1", fake.req.Orders)
	}
	o := fake.req.Orders[0]
	if o.ItemNum != 1 || o.Quantity != 2 || !strings.Contains(o.Name, "水餃") {
		t.Errorf("order = %+v", o)
	}
}

func TestAISkippedWithoutOpenBuy(t *testing.T) {
	fake := &fakeAI{intent: command.Intent{Kind: command.KindList}}
	s := testService(t, WithAI(fake))
	if reply := handle(s, uid, uname, "我想要一份水餃"); reply != "" {
		t.Errorf("no open buy, expected silence, got %q", reply)
	}
	if fake.called {
		t.Error("AI must not run without an open buy")
	}
}

// ── 訂單事件

type captureEvents struct {
	events []queue.OrderEvent
}

func (c *captureEvents) Publish(ctx context.Context, ev queue.OrderEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestOrderEventsPublished(t *testing.T) {
	sink := &captureEvents{}
	s := testService(t, WithEvents(sink))
	openBuy(t, s)
	handle(s, uid, uname, "+1 2")
	handle(s, uid, uname, "退出 1")
	handle(s, uid, uname, "結團")

	var actions []string
	for _, ev := range sink.events {
		if err := ev.Validate(); err != nil {
			t.Errorf("invalid event %+v: %v", ev, err)
		}
		actions = append(actions, ev.Action)
	}
	want := []string{queue.ActionOrder, queue.ActionCancel, queue.ActionClose}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Errorf("actions = %v, want %v", actions, want)
	}
}

// ── 群組隔離

func TestChatsIsolated(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	s.HandleText(ctx, "chat_a", uid, func() string { return uname }, "#開團\nA團\n1) 水餃 50元")
	s.HandleText(ctx, "chat_b", uid, func() string { return uname }, "#開團\nB團\n1) 滷肉飯 80元")

	replyA := s.HandleText(ctx, "chat_a", uid, func() string { return uname }, "列表")
	if strings.Contains(replyA, "B團") || !strings.Contains(replyA, "A團") {
		t.Errorf("chat_a sees wrong buys:\n%s", replyA)
	}
}
