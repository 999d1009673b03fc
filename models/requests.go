package models

// 各ハンドラが受け取るリクエストボディの定義。
// プレイヤーIDはクライアント生成の値をそのまま信頼する（認証は行わない）。

type CreateRoomRequest struct {
	PlayerID   string `json:"playerId" binding:"required"`
	PlayerName string `json:"playerName" binding:"required"`
}

type JoinRoomRequest struct {
	RoomID     string `json:"roomId" binding:"required"`
	PlayerID   string `json:"playerId" binding:"required"`
	PlayerName string `json:"playerName" binding:"required"`
}

type StartGameRequest struct {
	RoomID   string `json:"roomId" binding:"required"`
	PlayerID string `json:"playerId" binding:"required"`
}

type ReportProgressRequest struct {
	RoomID   string  `json:"roomId" binding:"required"`
	PlayerID string  `json:"playerId" binding:"required"`
	Progress float64 `json:"progress"`
	WPM      int     `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

type CompleteGameRequest struct {
	RoomID   string  `json:"roomId" binding:"required"`
	PlayerID string  `json:"playerId" binding:"required"`
	WPM      int     `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

type LeaveRoomRequest struct {
	RoomID   string `json:"roomId" binding:"required"`
	PlayerID string `json:"playerId" binding:"required"`
}

type NewGameRequest struct {
	RoomID   string `json:"roomId" binding:"required"`
	PlayerID string `json:"playerId" binding:"required"`
}
