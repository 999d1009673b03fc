package broker

import (
	"time"

	"raceserver/models"
)

// ドメインイベント名の定義。クライアントとサーバー双方の契約となる。
const (
	EventPlayerJoined   = "player-joined"
	EventPlayerLeft     = "player-left"
	EventCountdownStart = "countdown-start"
	EventGameStart      = "game-start"
	EventTypingUpdate   = "typing-update"
	EventGameComplete   = "game-complete"
	EventNewGameCreated = "new-game-created"
)

// RoomChannel はルームごとのイベントチャンネル名を返す
func RoomChannel(roomID string) string {
	return "room-" + roomID
}

// PlayerChannel はプレイヤー個別チャンネル名を返す。
// 名前空間として予約済みで、現在のコアロジックでは未使用。
func PlayerChannel(playerID string) string {
	return "player-" + playerID
}

// 以下、各イベントのペイロード定義

type PlayerJoined struct {
	Player models.Player `json:"player"`
}

type PlayerLeft struct {
	PlayerID       string `json:"playerId"`
	RoomStatus     string `json:"roomStatus"`
	IsAdmin        bool   `json:"isAdmin"`
	Message        string `json:"message"`
	ShouldRedirect bool   `json:"shouldRedirect"`
}

type CountdownStart struct {
	RoomID string `json:"roomId"`
}

// GameStart はカウントダウン完了後の本レース開始通知。
// StartedAtはサーバー時刻で、各クライアントが残り時間を導出する基準になる。
type GameStart struct {
	RoomID       string               `json:"roomId"`
	Status       string               `json:"status"`
	Players      []models.Player      `json:"players"`
	Performances []models.Performance `json:"performances"`
	StartedAt    time.Time            `json:"startedAt"`
}

type TypingUpdate struct {
	PlayerID    string             `json:"playerId"`
	Progress    float64            `json:"progress"`
	WPM         int                `json:"wpm"`
	Accuracy    float64            `json:"accuracy"`
	Performance models.Performance `json:"performance"`
}

type GameComplete struct {
	PlayerID string  `json:"playerId"`
	WPM      int     `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

type NewGameCreated struct {
	NewRoomID string `json:"newRoomId"`
}
