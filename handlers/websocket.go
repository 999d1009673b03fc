package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"raceserver/broker"
	"raceserver/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sessionTTL   = 24 * time.Hour
	pingPeriod   = 10 * time.Second
	readDeadline = 60 * time.Second
)

// wsSession はWebSocket再接続時の復元に使うセッション情報
type wsSession struct {
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
}

// HandleEventStream はルームのイベントチャンネルをWebSocketへ中継する。
// Redisの購読ストリームをそのままEnvelopeとして流すだけで、中継自体は状態を持たない。
func HandleEventStream(ctx context.Context, w http.ResponseWriter, r *http.Request,
	br *broker.RedisBroadcaster, rdb *redis.Client, logger *zap.Logger, upgrader websocket.Upgrader) {

	roomID := r.URL.Query().Get("roomId")
	playerID := r.URL.Query().Get("playerId")

	// セッションIDの検証と復元。有効なら接続パラメータよりも優先する
	if sessionID := r.Header.Get("SessionID"); sessionID != "" {
		sessionJSON, err := rdb.Get(ctx, "session:"+sessionID).Result()
		if err != nil {
			http.Error(w, "Invalid or expired session ID", http.StatusUnauthorized)
			return
		}
		var sess wsSession
		if err := json.Unmarshal([]byte(sessionJSON), &sess); err != nil {
			logger.Error("Failed to decode session info", zap.Error(err))
			http.Error(w, "Failed to restore session", http.StatusInternalServerError)
			return
		}
		playerID = sess.PlayerID
		roomID = sess.RoomID
		// 旧セッションは一度きり。再発行する
		rdb.Del(ctx, "session:"+sessionID)
	}

	if roomID == "" || playerID == "" {
		http.Error(w, "roomId and playerId are required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := &models.Client{Conn: conn, PlayerID: playerID, RoomID: roomID}
	logger.Info("New subscriber connected",
		zap.String("player", playerID), zap.String("room", roomID))

	// 新しいセッションIDを発行してクライアントへ通知する
	if err := storeAndSendSessionID(ctx, client, rdb, logger); err != nil {
		logger.Error("Failed to issue session ID", zap.Error(err))
	}

	// ハンドラ復帰後もリレーを続けるため、リクエストのcontextからは切り離す
	streamCtx, cancel := context.WithCancel(context.Background())
	events, unsubscribe := br.Subscribe(streamCtx, broker.RoomChannel(roomID))

	// 読み取りループ：Pongと切断検知のためだけに回す（クライアントからのデータは扱わない）
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 書き込みループ：イベント中継とPing送信
	go func() {
		defer func() {
			unsubscribe()
			conn.Close()
			logger.Info("Subscriber removed",
				zap.String("player", client.PlayerID), zap.String("room", client.RoomID))
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case env, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(env); err != nil {
					logger.Error("Failed to relay event", zap.Error(err))
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-streamCtx.Done():
				return
			}
		}
	}()
}

// storeAndSendSessionID はセッションIDを発行・保存し、最初のフレームとして送信する
func storeAndSendSessionID(ctx context.Context, client *models.Client, rdb *redis.Client, logger *zap.Logger) error {
	sessionID := uuid.New().String()

	sessionJSON, err := json.Marshal(wsSession{PlayerID: client.PlayerID, RoomID: client.RoomID})
	if err != nil {
		return err
	}
	if err := rdb.Set(ctx, "session:"+sessionID, sessionJSON, sessionTTL).Err(); err != nil {
		logger.Error("Error storing session info in Redis", zap.Error(err))
		return err
	}

	response, err := json.Marshal(map[string]string{"sessionID": sessionID})
	if err != nil {
		return err
	}
	return client.Conn.WriteMessage(websocket.TextMessage, response)
}
