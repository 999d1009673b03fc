package rooms

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"raceserver/models"
	"raceserver/store"
)

// memStore is an in-memory store.Store used to drive the state machine
// deterministically in tests.
type memStore struct {
	mu         sync.Mutex
	rooms      map[string]*models.Room
	players    map[string]*models.Player
	perfs      map[string]*models.Performance // key: playerID|roomID
	nextPerfID uint
	nextRoomID int
}

func newMemStore() *memStore {
	return &memStore{
		rooms:   make(map[string]*models.Room),
		players: make(map[string]*models.Player),
		perfs:   make(map[string]*models.Performance),
	}
}

func perfKey(playerID, roomID string) string { return playerID + "|" + roomID }

func (m *memStore) CreateRoom(ctx context.Context, text, creatorID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRoomID++
	room := &models.Room{
		ID:        fmt.Sprintf("ROOM%02d", m.nextRoomID),
		Text:      text,
		Status:    models.RoomWaiting,
		CreatedBy: creatorID,
		CreatedAt: time.Now(),
	}
	m.rooms[room.ID] = room
	out := *room
	return &out, nil
}

func (m *memStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *room
	out.Players = nil
	out.Performances = nil
	for _, p := range m.players {
		if p.RoomID != nil && *p.RoomID == roomID {
			out.Players = append(out.Players, *p)
		}
	}
	sort.Slice(out.Players, func(i, j int) bool { return out.Players[i].ID < out.Players[j].ID })
	for _, perf := range m.perfs {
		if perf.RoomID == roomID {
			cp := *perf
			if pl, ok := m.players[perf.PlayerID]; ok {
				cp.Player = *pl
			}
			out.Performances = append(out.Performances, cp)
		}
	}
	return &out, nil
}

func (m *memStore) SetRoomStatus(ctx context.Context, roomID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	room.Status = status
	return nil
}

func (m *memStore) UpsertPlayer(ctx context.Context, playerID, name string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[playerID]; ok {
		p.Name = name
		out := *p
		return &out, nil
	}
	p := &models.Player{ID: playerID, Name: name, Progress: 0, WPM: 0, Accuracy: 100}
	m.players[playerID] = p
	out := *p
	return &out, nil
}

func (m *memStore) ConnectPlayer(ctx context.Context, roomID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return store.ErrNotFound
	}
	r := roomID
	p.RoomID = &r
	return nil
}

func (m *memStore) DisconnectPlayer(ctx context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return store.ErrNotFound
	}
	p.RoomID = nil
	return nil
}

func (m *memStore) ClearRoomPlayers(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.RoomID != nil && *p.RoomID == roomID {
			p.RoomID = nil
		}
	}
	return nil
}

func (m *memStore) UpdatePlayerMetrics(ctx context.Context, roomID, playerID string, progress float64, wpm int, accuracy float64) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok || p.RoomID == nil || *p.RoomID != roomID {
		return nil, store.ErrNotFound
	}
	p.Progress = progress
	p.WPM = wpm
	p.Accuracy = accuracy
	out := *p
	return &out, nil
}

func (m *memStore) CompletePlayer(ctx context.Context, playerID string, wpm int, accuracy float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return store.ErrNotFound
	}
	p.Completed = true
	p.WPM = wpm
	p.Accuracy = accuracy
	return nil
}

func (m *memStore) ResetRoomPlayers(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.RoomID != nil && *p.RoomID == roomID {
			p.Progress = 0
			p.WPM = 0
			p.Accuracy = 100
			p.Completed = false
		}
	}
	return nil
}

func (m *memStore) UpsertPerformance(ctx context.Context, playerID, roomID string, wpm int, accuracy float64, completed bool) (*models.Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := perfKey(playerID, roomID)
	perf, ok := m.perfs[key]
	if !ok {
		m.nextPerfID++
		perf = &models.Performance{
			ID:        m.nextPerfID,
			PlayerID:  playerID,
			RoomID:    roomID,
			CreatedAt: time.Now(),
		}
		m.perfs[key] = perf
	}
	perf.WPM = wpm
	perf.Accuracy = accuracy
	perf.Completed = completed
	out := *perf
	if p, ok := m.players[playerID]; ok {
		out.Player = *p
	}
	return &out, nil
}

func (m *memStore) DeletePerformance(ctx context.Context, playerID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.perfs, perfKey(playerID, roomID))
	return nil
}

func (m *memStore) DeleteRoomPerformances(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, perf := range m.perfs {
		if perf.RoomID == roomID {
			delete(m.perfs, key)
		}
	}
	return nil
}

func (m *memStore) CountOnlinePlayers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.players {
		if p.RoomID != nil {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountActiveRooms(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rooms {
		if r.Status == models.RoomInProgress {
			n++
		}
	}
	return n, nil
}

func (m *memStore) BestPerformance(ctx context.Context, playerID string) (*models.Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Performance
	for _, perf := range m.perfs {
		if perf.PlayerID != playerID || !perf.Completed {
			continue
		}
		if best == nil || perf.WPM > best.WPM {
			best = perf
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	out := *best
	return &out, nil
}

func (m *memStore) RecentPerformances(ctx context.Context, playerID string, limit int) ([]models.Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var perfs []models.Performance
	for _, perf := range m.perfs {
		if perf.PlayerID == playerID && perf.Completed {
			perfs = append(perfs, *perf)
		}
	}
	sort.Slice(perfs, func(i, j int) bool { return perfs[i].CreatedAt.After(perfs[j].CreatedAt) })
	if len(perfs) > limit {
		perfs = perfs[:limit]
	}
	return perfs, nil
}
