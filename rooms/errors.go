package rooms

import "errors"

// コマンドが失敗する条件ごとの型付きエラー。
// 呼び出し元（ハンドラ）がHTTPステータスへ変換する。リトライはしない。
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrNotCreator       = errors.New("only the room creator can do this")
	ErrRoomFull         = errors.New("room is full")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrNotEnoughPlayers = errors.New("need at least 2 players to start")
)
