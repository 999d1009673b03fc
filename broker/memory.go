package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory はプロセス内で完結するBroadcaster実装。
// 決定的なテストと、Redisなしで動かす開発用。
type Memory struct {
	mu     sync.Mutex
	seqs   map[string]int64
	events map[string][]Envelope
	subs   map[string][]chan Envelope
}

func NewMemory() *Memory {
	return &Memory{
		seqs:   make(map[string]int64),
		events: make(map[string][]Envelope),
		subs:   make(map[string][]chan Envelope),
	}
}

func (m *Memory) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seqs[channel]++
	env := Envelope{
		Event:   event,
		Seq:     m.seqs[channel],
		At:      time.Now().UTC(),
		Payload: raw,
	}
	m.events[channel] = append(m.events[channel], env)
	for _, ch := range m.subs[channel] {
		select {
		case ch <- env:
		default: // 購読者が詰まっていても発行側は止めない
		}
	}
	return nil
}

// Subscribe はチャンネルの購読チャンネルを返す
func (m *Memory) Subscribe(channel string) <-chan Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Envelope, 64)
	m.subs[channel] = append(m.subs[channel], ch)
	return ch
}

// Events は発行済みイベントのスナップショットを返す（テスト検証用）
func (m *Memory) Events(channel string) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.events[channel]))
	copy(out, m.events[channel])
	return out
}
