package queue

import "errors"

// 訂單事件動作。
const (
	ActionOrder     = "order"
	ActionCancel    = "cancel"
	ActionClose     = "close"
	ActionCancelBuy = "cancel_buy"
)

// OrderEvent 訂單異動事件，寫入 Kafka 供對帳、統計等下游使用。
// 不參與主流程：訂單寫入一律同步進 SQLite，事件發佈失敗只記 log。
type OrderEvent struct {
	RequestID string `json:"request_id"`
	ChatID    string `json:"chat_id"`
	BuyNum    int    `json:"buy_num"`
	ItemNum   int    `json:"item_num,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Action    string `json:"action"`
}

// Validate 檢查事件必填欄位。
func (e OrderEvent) Validate() error {
	if e.RequestID == "" {
		return errors.New("request_id 不能為空")
	}
	if e.ChatID == "" {
		return errors.New("chat_id 不能為空")
	}
	switch e.Action {
	case ActionOrder, ActionCancel, ActionClose, ActionCancelBuy:
	default:
		return errors.New("未知的 action: " + e.Action)
	}
	return nil
}
