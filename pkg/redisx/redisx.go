// Package redisx 提供 Redis key 命名與 webhook 事件去重。
package redisx

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// EventKey webhook 事件去重 key。
func EventKey(eventID string) string {
	return fmt.Sprintf("tuangou:webhook_event:%s", eventID)
}

// MarkEventOnce 以 SETNX 標記 webhook 事件，回傳是否第一次看到。
// LINE 平台可能重送同一事件，重送的不再處理，避免重複下單。
func MarkEventOnce(ctx context.Context, rdb *rd.Client, eventID string, ttl time.Duration) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	return rdb.SetNX(ctx, EventKey(eventID), 1, ttl).Result()
}
