package model

import "time"

// 團購狀態：open 進行中、closed 已結團。
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// GroupBuy 一次開團：同一聊天室可同時有多個進行中的團購，
// 以 (chat_id, buy_num) 唯一定位，buy_num 在聊天室內遞增。
type GroupBuy struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ChatID      string `gorm:"size:64;not null;index:idx_group_buys_chat_status" json:"chat_id"`
	BuyNum      int    `gorm:"not null" json:"buy_num"`
	Title       string `gorm:"size:255;not null" json:"title"`
	PostText    string `gorm:"type:text" json:"post_text"` // 原始開團貼文
	CreatorID   string `gorm:"size:64;not null" json:"creator_id"`
	CreatorName string `gorm:"size:128" json:"creator_name"`
	Status      string `gorm:"size:16;not null;default:open;index:idx_group_buys_chat_status" json:"status"`
}

func (GroupBuy) TableName() string { return "group_buys" }
