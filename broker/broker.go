package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Envelope は配信されるイベントの外装。Seqはチャンネルごとに単調増加し、
// 配信順序が保証されない経路でもクライアント側で古いイベントを破棄できる。
type Envelope struct {
	Event   string          `json:"event"`
	Seq     int64           `json:"seq"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Decode はペイロードを指定の型に復元する
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Broadcaster はステートマシンに注入されるイベント発行窓口。
// 自身は状態を持たないリレーで、配信はat-least-once・順序保証なし。
type Broadcaster interface {
	Publish(ctx context.Context, channel, event string, payload interface{}) error
}

// RedisBroadcaster はRedisのPub/Subを使ったBroadcaster実装
type RedisBroadcaster struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisBroadcaster(rdb *redis.Client, logger *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, logger: logger}
}

// Publish はイベントをチャンネルに発行する。シーケンス番号はRedisのINCRで採番する。
func (b *RedisBroadcaster) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	seq, err := b.rdb.Incr(ctx, "seq:"+channel).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence for %s: %w", channel, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", event, err)
	}

	data, err := json.Marshal(Envelope{
		Event:   event,
		Seq:     seq,
		At:      time.Now().UTC(),
		Payload: raw,
	})
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event, channel, err)
	}
	return nil
}

// Subscribe はチャンネルを購読しEnvelopeのストリームを返す。
// 返却したクローズ関数で購読を解除する。WebSocketリレーから使用する。
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channel string) (<-chan Envelope, func()) {
	sub := b.rdb.Subscribe(ctx, channel)
	out := make(chan Envelope, 64)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Error("Failed to decode event envelope",
					zap.String("channel", channel), zap.Error(err))
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}
