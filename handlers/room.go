package handlers

import (
	"errors"
	"net/http"

	"raceserver/models"
	"raceserver/rooms"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// コマンド面のハンドラ群。ステートマシンの型付きエラーをHTTPステータスへ変換する。
func statusFor(err error) int {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, rooms.ErrNotCreator):
		return http.StatusForbidden
	case errors.Is(err, rooms.ErrRoomFull), errors.Is(err, rooms.ErrGameInProgress):
		return http.StatusConflict
	case errors.Is(err, rooms.ErrNotEnoughPlayers):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("コマンド処理中に内部エラー", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// RoomCreate はルーム作成コマンドを処理するハンドラです。
func RoomCreate(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Room create request bind error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := svc.Create(c.Request.Context(), req.PlayerID, req.PlayerName)
	if err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"roomId": room.ID,
		"text":   room.Text,
		"room":   room,
	})
}

// RoomJoin は入室コマンドを処理するハンドラです。再入室は冪等に成功を返します。
func RoomJoin(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	var req models.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := svc.Join(c.Request.Context(), req.RoomID, req.PlayerID, req.PlayerName)
	if err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "players": room.Players})
}

// RoomStart はレース開始コマンドを処理するハンドラです。作成者のみ実行できます。
func RoomStart(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	var req models.StartGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := svc.Start(c.Request.Context(), req.RoomID, req.PlayerID); err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RoomProgress は進捗報告を処理するハンドラです。最も呼び出し頻度が高いエンドポイント。
func RoomProgress(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	var req models.ReportProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := svc.ReportProgress(c.Request.Context(), req.RoomID, req.PlayerID, req.Progress, req.WPM, req.Accuracy); err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RoomComplete は完走報告を処理するハンドラです。
func RoomComplete(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	var req models.CompleteGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := svc.Complete(c.Request.Context(), req.RoomID, req.PlayerID, req.WPM, req.Accuracy); err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RoomLeave は退室コマンドを処理するハンドラです。
func RoomLeave(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	var req models.LeaveRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := svc.Leave(c.Request.Context(), req.RoomID, req.PlayerID); err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RoomNew は再戦用の新ルーム作成コマンドを処理するハンドラです。
func RoomNew(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	var req models.NewGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newRoomID, err := svc.NewGame(c.Request.Context(), req.RoomID, req.PlayerID)
	if err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"newRoomId": newRoomID})
}

// RoomInfo はルームの現在状態を返すハンドラです。クライアントの再取得用。
func RoomInfo(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	roomID := c.Query("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	room, err := svc.Get(c.Request.Context(), roomID)
	if err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// StatsHandler は集計情報を返すハンドラです。playerIdは任意。
func StatsHandler(c *gin.Context, svc *rooms.Service, logger *zap.Logger) {
	playerID := c.Query("playerId")
	if playerID == "" {
		// 旧クライアント互換でヘッダも見る
		playerID = c.GetHeader("X-Player-Id")
	}

	stats, err := svc.Stats(c.Request.Context(), playerID)
	if err != nil {
		abortWith(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
