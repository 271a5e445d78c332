// Package store 以 gorm + SQLite 實作團購資料的交易式存取。
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tuangou/internal/model"
)

// ErrNotFound 查無資料。
var ErrNotFound = errors.New("store: not found")

// Store 包一層 gorm，所有寫入都走交易，查詢都帶 context。
type Store struct {
	db *gorm.DB
}

// Open 開啟（必要時建立）SQLite 資料庫並自動建表。
// 啟動時同步完成，不做背景延遲初始化。
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&model.GroupBuy{}, &model.Item{}, &model.Order{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// New 以現成的 gorm 連線建立 Store（測試用）。
func New(db *gorm.DB) *Store { return &Store{db: db} }

// Close 關閉底層連線。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction 在單一交易內執行 fn，fn 回錯即整體回滾。
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// CreateGroupBuy 建立團購與其全部品項。buy_num 取該聊天室歷史最大值 +1，
// 在同一交易內完成以避免編號重複。
func (s *Store) CreateGroupBuy(ctx context.Context, gb *model.GroupBuy, items []model.Item) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var maxNum int
		err := tx.db.Model(&model.GroupBuy{}).
			Where("chat_id = ?", gb.ChatID).
			Select("COALESCE(MAX(buy_num), 0)").
			Scan(&maxNum).Error
		if err != nil {
			return fmt.Errorf("next buy_num: %w", err)
		}
		gb.BuyNum = maxNum + 1
		if gb.Status == "" {
			gb.Status = model.StatusOpen
		}
		if err := tx.db.Create(gb).Error; err != nil {
			return fmt.Errorf("create group buy: %w", err)
		}
		for i := range items {
			items[i].GroupBuyID = gb.ID
			if err := tx.db.Create(&items[i]).Error; err != nil {
				return fmt.Errorf("create item %d: %w", items[i].ItemNum, err)
			}
		}
		return nil
	})
}

// OpenBuys 列出聊天室所有進行中的團購，依 buy_num 遞增。
func (s *Store) OpenBuys(ctx context.Context, chatID string) ([]model.GroupBuy, error) {
	var buys []model.GroupBuy
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND status = ?", chatID, model.StatusOpen).
		Order("buy_num").
		Find(&buys).Error
	if err != nil {
		return nil, fmt.Errorf("list open buys: %w", err)
	}
	return buys, nil
}

// FindOpenBuy 取指定編號的進行中團購。
func (s *Store) FindOpenBuy(ctx context.Context, chatID string, buyNum int) (*model.GroupBuy, error) {
	var gb model.GroupBuy
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND status = ? AND buy_num = ?", chatID, model.StatusOpen, buyNum).
		First(&gb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open buy %d: %w", buyNum, err)
	}
	return &gb, nil
}

// ItemsByBuy 取團購全部品項，依品項編號排序。
func (s *Store) ItemsByBuy(ctx context.Context, buyID uint) ([]model.Item, error) {
	var items []model.Item
	err := s.db.WithContext(ctx).
		Where("group_buy_id = ?", buyID).
		Order("item_num").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// FindItem 取指定編號的品項。
func (s *Store) FindItem(ctx context.Context, buyID uint, itemNum int) (*model.Item, error) {
	var item model.Item
	err := s.db.WithContext(ctx).
		Where("group_buy_id = ? AND item_num = ?", buyID, itemNum).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find item %d: %w", itemNum, err)
	}
	return &item, nil
}

// OrdersByBuy 取團購全部訂單，依品項編號與建立順序排序。
func (s *Store) OrdersByBuy(ctx context.Context, buyID uint) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("group_buy_id = ?", buyID).
		Order("item_num, id").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// OrdersByUser 取某帳號在團購內送出的訂單（含代訂），依品項編號排序。
func (s *Store) OrdersByUser(ctx context.Context, buyID uint, userID string) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("group_buy_id = ? AND user_id = ?", buyID, userID).
		Order("item_num").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return orders, nil
}

// FindOrder 以業務主鍵 (團購, 品項, 名下姓名) 取訂單。
func (s *Store) FindOrder(ctx context.Context, buyID uint, itemNum int, userName string) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).
		Where("group_buy_id = ? AND item_num = ? AND user_name = ?", buyID, itemNum, userName).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &o, nil
}

// CreateOrder 新增訂單列。
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// UpdateOrderQuantity 改寫訂單數量。
func (s *Store) UpdateOrderQuantity(ctx context.Context, orderID uint, quantity int) error {
	err := s.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("quantity", quantity).Error
	if err != nil {
		return fmt.Errorf("update order quantity: %w", err)
	}
	return nil
}

// DeleteOrder 刪除訂單列，回傳是否真的刪到東西。
func (s *Store) DeleteOrder(ctx context.Context, buyID uint, itemNum int, userName string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("group_buy_id = ? AND item_num = ? AND user_name = ?", buyID, itemNum, userName).
		Delete(&model.Order{})
	if res.Error != nil {
		return false, fmt.Errorf("delete order: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SoldQuantity 品項目前總下單量（限量檢查用）。
func (s *Store) SoldQuantity(ctx context.Context, buyID uint, itemNum int) (int, error) {
	var sold int
	err := s.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("group_buy_id = ? AND item_num = ?", buyID, itemNum).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sold).Error
	if err != nil {
		return 0, fmt.Errorf("sum sold: %w", err)
	}
	return sold, nil
}

// CloseBuy 將團購標記為已結團。
func (s *Store) CloseBuy(ctx context.Context, buyID uint) error {
	err := s.db.WithContext(ctx).
		Model(&model.GroupBuy{}).
		Where("id = ?", buyID).
		Update("status", model.StatusClosed).Error
	if err != nil {
		return fmt.Errorf("close buy: %w", err)
	}
	return nil
}

// DeleteBuy 刪除團購與其品項、訂單（取消團購用），同一交易內完成。
func (s *Store) DeleteBuy(ctx context.Context, buyID uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.Where("group_buy_id = ?", buyID).Delete(&model.Order{}).Error; err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		if err := tx.db.Where("group_buy_id = ?", buyID).Delete(&model.Item{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := tx.db.Delete(&model.GroupBuy{}, buyID).Error; err != nil {
			return fmt.Errorf("delete group buy: %w", err)
		}
		return nil
	})
}
