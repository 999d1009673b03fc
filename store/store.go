package store

import (
	"context"
	"errors"

	"raceserver/models"
)

// ErrNotFound は対象のルームやプレイヤーが存在しない場合に返す
var ErrNotFound = errors.New("record not found")

// Store はルーム・プレイヤー・成績レコードの永続化窓口。
// 各操作は単一エンティティ単位でアトミック。複数エンティティにまたがる
// 整合性の順序付けはステートマシン側の責務とする。
type Store interface {
	// ルーム
	CreateRoom(ctx context.Context, text, creatorID string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	SetRoomStatus(ctx context.Context, roomID, status string) error

	// プレイヤー
	UpsertPlayer(ctx context.Context, playerID, name string) (*models.Player, error)
	ConnectPlayer(ctx context.Context, roomID, playerID string) error
	DisconnectPlayer(ctx context.Context, playerID string) error
	ClearRoomPlayers(ctx context.Context, roomID string) error
	UpdatePlayerMetrics(ctx context.Context, roomID, playerID string, progress float64, wpm int, accuracy float64) (*models.Player, error)
	CompletePlayer(ctx context.Context, playerID string, wpm int, accuracy float64) error
	ResetRoomPlayers(ctx context.Context, roomID string) error

	// 成績
	UpsertPerformance(ctx context.Context, playerID, roomID string, wpm int, accuracy float64, completed bool) (*models.Performance, error)
	DeletePerformance(ctx context.Context, playerID, roomID string) error
	DeleteRoomPerformances(ctx context.Context, roomID string) error

	// 集計
	CountOnlinePlayers(ctx context.Context) (int64, error)
	CountActiveRooms(ctx context.Context) (int64, error)
	BestPerformance(ctx context.Context, playerID string) (*models.Performance, error)
	RecentPerformances(ctx context.Context, playerID string, limit int) ([]models.Performance, error)
}
