package client

import (
	"context"
	"encoding/json"
	"time"

	"raceserver/broker"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Subscriber はサーバーのWebSocketリレーへ接続し、受信イベントをSessionに流し込む。
type Subscriber struct {
	conn    *websocket.Conn
	session *Session
	logger  *zap.Logger

	// OnDeadline はローカル制限時間の到達時に最終成績を渡すフック。
	// 送信でループを止めないよう呼び出し側でゴルーチンに逃がすこと。
	OnDeadline func(report *ProgressReport)
}

// Subscribe はリレーにWebSocket接続する。sessionIDが空でなければ
// 再接続時のセッション復元用ヘッダとして送る。
func Subscribe(ctx context.Context, wsURL, sessionID string, session *Session, logger *zap.Logger) (*Subscriber, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{}
	if sessionID != "" {
		header["SessionID"] = []string{sessionID}
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	return &Subscriber{conn: conn, session: session, logger: logger}, nil
}

// Run は受信ループと1秒刻みのローカルタイマーを回す。
// ctxのキャンセルか接続断で戻る。戻った後の退室コマンド送信は呼び出し側の責務。
func (s *Subscriber) Run(ctx context.Context) error {
	envCh := make(chan broker.Envelope, 64)
	errCh := make(chan error, 1)

	go func() {
		for {
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			var env broker.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				s.logger.Error("Failed to decode event frame", zap.Error(err))
				continue
			}
			envCh <- env
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case env := <-envCh:
			s.session.Apply(env)
		case now := <-ticker.C:
			if s.session.Tick(now) {
				report := s.session.FinalReport(now)
				if s.OnDeadline != nil {
					s.OnDeadline(report)
				}
			}
		}
	}
}

func (s *Subscriber) Close() error {
	return s.conn.Close()
}
