package rooms

import (
	"sync"
	"time"
)

// countdownRegistry はルームごとに保留中のカウントダウン完了処理を管理する。
// 退室や解散でルームの前提が崩れた時に、発火前のタスクを取り消せるようにする。
type countdownRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newCountdownRegistry() *countdownRegistry {
	return &countdownRegistry{timers: make(map[string]*time.Timer)}
}

// Schedule はルームのカウントダウン完了処理を予約する。
// 同じルームに既存の予約がある場合は置き換える。
func (r *countdownRegistry) Schedule(roomID string, delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[roomID]; ok {
		t.Stop()
	}
	r.timers[roomID] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, roomID)
		r.mu.Unlock()
		fn()
	})
}

// Cancel は保留中の予約を取り消す。予約がなければ何もしない。
func (r *countdownRegistry) Cancel(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[roomID]; ok {
		t.Stop()
		delete(r.timers, roomID)
	}
}

// Pending は予約の有無を返す（テスト用）
func (r *countdownRegistry) Pending(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[roomID]
	return ok
}
