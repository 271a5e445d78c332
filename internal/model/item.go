package model

import "time"

// Item 團購品項。PriceInfo 保留品項的完整描述（可多行），
// 單價、階梯價與限量標記都從這段文字解析，不另外存欄位。
type Item struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	GroupBuyID uint   `gorm:"not null;index;uniqueIndex:idx_items_buy_num" json:"group_buy_id"`
	ItemNum    int    `gorm:"not null;uniqueIndex:idx_items_buy_num" json:"item_num"`
	Name       string `gorm:"size:255;not null" json:"name"`
	PriceInfo  string `gorm:"type:text" json:"price_info"`

	// MaxQuantity 為 nil 表示不限量；開團時解析，之後不再修改。
	MaxQuantity *int `json:"max_quantity"`
}

func (Item) TableName() string { return "items" }
