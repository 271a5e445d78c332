package model

import "time"

// Order 訂單列，以 (group_buy_id, item_num, user_name) 為業務主鍵。
// user_name 是訂單登記在誰名下（代訂時與送出指令的帳號不同），
// user_id / registered_by 只作稽核用途。數量恆 ≥ 1，取消即整列刪除。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GroupBuyID uint   `gorm:"not null;index;uniqueIndex:idx_orders_buy_item_name" json:"group_buy_id"`
	ItemNum    int    `gorm:"not null;uniqueIndex:idx_orders_buy_item_name" json:"item_num"`
	UserID     string `gorm:"size:64;not null;index" json:"user_id"`
	UserName   string `gorm:"size:128;not null;uniqueIndex:idx_orders_buy_item_name" json:"user_name"`
	Quantity   int    `gorm:"not null;default:1" json:"quantity"`

	// RegisteredBy 非空代表這是代訂，值為代訂人的顯示名稱。
	RegisteredBy string `gorm:"size:128" json:"registered_by"`
}

func (Order) TableName() string { return "orders" }
