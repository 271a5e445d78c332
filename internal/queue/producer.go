package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer 封裝 Kafka 寫入器。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 建立生產者並設定可靠性參數：
// - Hash + Key: 以 chat_id 為 key，同一聊天室的事件落在同一分區、保持順序。
// - RequireAll: 等待 ISR 副本確認，降低訊息遺失風險。
// - MaxAttempts/Timeout: 控制重試與逾時邊界。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Close 釋放 writer 資源。
func (p *Producer) Close() error { return p.w.Close() }

// Publish 同步寫入一筆訂單事件。
func (p *Producer) Publish(ctx context.Context, ev OrderEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ChatID),
		Value: b,
	})
}
