// Package command 把正規化後的訊息文字分類成標準指令（Intent）。
//
// 規則表依優先序排列、彼此互斥：前面的規則命中後不再往下比對，
// 所以像單獨的「#1」不會落到多品項規則。AI fallback 不在本套件內呼叫，
// 只在這裡判定文字是否適合送給 AI。
package command

// Kind 標準指令種類。
type Kind int

const (
	// KindUnknown 無法辨識；AIEligible 為 true 時呼叫端可改問 AI。
	KindUnknown Kind = iota
	// KindOpen 開團貼文
	KindOpen
	// KindOrder 單品項下單
	KindOrder
	// KindMultiOrder 多品項下單（#1 #2 #3 [名字]，每項 1 份）
	KindMultiOrder
	// KindBatchOrder 品名批次下單（水餃×2、蛋餃×3，可「名字|」代訂）
	KindBatchOrder
	// KindQuantityPrompt 單獨品項編號，需回問數量
	KindQuantityPrompt
	// KindCancelOrder 退出品項
	KindCancelOrder
	// KindList 列表
	KindList
	// KindMyOrders 我的訂單
	KindMyOrders
	// KindHelp 團購說明
	KindHelp
	// KindClose 結團（團主專用）
	KindClose
	// KindCancelBuy 取消團購（團主專用）
	KindCancelBuy
)

// BatchEntry 批次下單的一筆（品名片段 + 數量）。
type BatchEntry struct {
	Name     string
	Quantity int
}

// Intent 路由結果。各欄位依 Kind 取用：
//   - Order/QuantityPrompt: ItemNum、Quantity、Explicit、ForName
//   - MultiOrder: ItemNums、ForName
//   - BatchOrder: Entries、ForName
//   - CancelOrder: ItemNum、ForName
//   - List/Close/CancelBuy: BuyNum（0 = 未指定）
type Intent struct {
	Kind Kind

	ItemNum  int
	Quantity int
	// Explicit 表示數量是使用者明講的（覆寫既有訂單），
	// false 表示數量是簡寫隱含的 1（累加一份）。
	Explicit bool
	ForName  string

	ItemNums []int
	Entries  []BatchEntry
	BuyNum   int

	// AIEligible 僅在 KindUnknown 時有意義：長度在界內且非純符號。
	AIEligible bool
}
