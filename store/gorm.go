package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"raceserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore はPostgreSQL上のStore実装
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func New(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// ルームIDに使う文字集合。紛らわしい文字（0/O、1/I）は除外
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const roomCodeLength = 6

func newRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

func (s *GormStore) CreateRoom(ctx context.Context, text, creatorID string) (*models.Room, error) {
	// コード衝突時は再採番する。32^6通りあるので実際に連続衝突することはまずない
	for attempt := 0; attempt < 5; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			return nil, err
		}
		room := &models.Room{
			ID:        code,
			Text:      text,
			Status:    models.RoomWaiting,
			CreatedBy: creatorID,
		}
		err = s.db.WithContext(ctx).Create(room).Error
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		s.logger.Warn("ルームコードが衝突したため再採番", zap.String("code", code))
	}
	return nil, fmt.Errorf("failed to allocate a unique room code")
}

func (s *GormStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Preload("Players").
		Preload("Performances").
		Preload("Performances.Player").
		First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *GormStore) SetRoomStatus(ctx context.Context, roomID, status string) error {
	result := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpsertPlayer(ctx context.Context, playerID, name string) (*models.Player, error) {
	player := &models.Player{
		ID:       playerID,
		Name:     name,
		Progress: 0,
		WPM:      0,
		Accuracy: 100,
	}
	// 既存プレイヤーは名前のみ更新し、指標は維持する
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(player).Error
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).First(player, "id = ?", playerID).Error
	return player, err
}

func (s *GormStore) ConnectPlayer(ctx context.Context, roomID, playerID string) error {
	result := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("id = ?", playerID).
		Update("room_id", roomID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DisconnectPlayer(ctx context.Context, playerID string) error {
	result := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("id = ?", playerID).
		Update("room_id", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ClearRoomPlayers(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Model(&models.Player{}).
		Where("room_id = ?", roomID).
		Update("room_id", nil).Error
}

func (s *GormStore) UpdatePlayerMetrics(ctx context.Context, roomID, playerID string, progress float64, wpm int, accuracy float64) (*models.Player, error) {
	// ルーム所属の確認を兼ねて更新条件にroom_idを含める
	result := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("id = ? AND room_id = ?", playerID, roomID).
		Updates(map[string]interface{}{
			"progress": progress,
			"wpm":      wpm,
			"accuracy": accuracy,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var player models.Player
	if err := s.db.WithContext(ctx).First(&player, "id = ?", playerID).Error; err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *GormStore) CompletePlayer(ctx context.Context, playerID string, wpm int, accuracy float64) error {
	result := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("id = ?", playerID).
		Updates(map[string]interface{}{
			"completed": true,
			"wpm":       wpm,
			"accuracy":  accuracy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ResetRoomPlayers(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Model(&models.Player{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"progress":  0,
			"wpm":       0,
			"accuracy":  100,
			"completed": false,
		}).Error
}

func (s *GormStore) UpsertPerformance(ctx context.Context, playerID, roomID string, wpm int, accuracy float64, completed bool) (*models.Performance, error) {
	perf := &models.Performance{
		PlayerID:  playerID,
		RoomID:    roomID,
		WPM:       wpm,
		Accuracy:  accuracy,
		Completed: completed,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"wpm", "accuracy", "completed", "updated_at"}),
	}).Create(perf).Error
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Preload("Player").
		First(perf, "player_id = ? AND room_id = ?", playerID, roomID).Error
	return perf, err
}

func (s *GormStore) DeletePerformance(ctx context.Context, playerID, roomID string) error {
	return s.db.WithContext(ctx).
		Where("player_id = ? AND room_id = ?", playerID, roomID).
		Delete(&models.Performance{}).Error
}

func (s *GormStore) DeleteRoomPerformances(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Delete(&models.Performance{}).Error
}

func (s *GormStore) CountOnlinePlayers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("room_id IS NOT NULL").
		Count(&count).Error
	return count, err
}

func (s *GormStore) CountActiveRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("status = ?", models.RoomInProgress).
		Count(&count).Error
	return count, err
}

func (s *GormStore) BestPerformance(ctx context.Context, playerID string) (*models.Performance, error) {
	var perf models.Performance
	err := s.db.WithContext(ctx).
		Where("player_id = ? AND completed = ?", playerID, true).
		Order("wpm DESC").
		First(&perf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &perf, nil
}

func (s *GormStore) RecentPerformances(ctx context.Context, playerID string, limit int) ([]models.Performance, error) {
	var perfs []models.Performance
	err := s.db.WithContext(ctx).
		Where("player_id = ? AND completed = ?", playerID, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&perfs).Error
	return perfs, err
}
