package models

import (
	"github.com/gorilla/websocket"
)

// Websocketクライアントを定義。ルームのイベントチャンネル購読者1人に対応する
type Client struct {
	Conn     *websocket.Conn
	PlayerID string // クライアント申告のプレイヤーID
	RoomID   string // 購読対象のルームID
}
