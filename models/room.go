package models

import (
	"time"
)

// ルームの状態。遷移はサーバー側のみが行う（クライアントは直接変更できない）
const (
	RoomWaiting    = "WAITING"
	RoomInProgress = "IN_PROGRESS"
	RoomCompleted  = "COMPLETED"
	RoomDeleted    = "DELETED"
)

// Room モデルの定義。1レースにつき1ルーム（再戦時は新しいルームを作成する）
type Room struct {
	ID           string        `gorm:"primaryKey" json:"id"` // 短い招待コード（例："K7X2QF"）
	Text         string        `gorm:"not null" json:"text"` // レース本文。作成時に確定し以後不変
	Status       string        `gorm:"not null;default:'WAITING';index" json:"status"`
	CreatedBy    string        `gorm:"not null" json:"createdBy"` // 作成者のプレイヤーID。開始・解散の権限を持つ
	Players      []Player      `gorm:"foreignKey:RoomID" json:"players"`
	Performances []Performance `gorm:"foreignKey:RoomID" json:"performances"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Player モデルの定義。IDはクライアント生成の不透明な文字列
type Player struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	RoomID    *string   `gorm:"index" json:"roomId"` // 現在参加中のルーム。退室時はnullに戻す（レコードは残す）
	Progress  float64   `gorm:"not null;default:0" json:"progress"`
	WPM       int       `gorm:"not null;default:0" json:"wpm"`
	Accuracy  float64   `gorm:"not null;default:100" json:"accuracy"`
	Completed bool      `gorm:"not null;default:false" json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Performance はプレイヤー×ルームごとの成績レコード。(PlayerID, RoomID)で一意
type Performance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlayerID  string    `gorm:"not null;uniqueIndex:idx_perf_player_room" json:"playerId"`
	RoomID    string    `gorm:"not null;uniqueIndex:idx_perf_player_room" json:"roomId"`
	WPM       int       `gorm:"not null;default:0" json:"wpm"`
	Accuracy  float64   `gorm:"not null;default:100" json:"accuracy"`
	Completed bool      `gorm:"not null;default:false" json:"completed"`
	Player    Player    `gorm:"foreignKey:PlayerID" json:"player"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
