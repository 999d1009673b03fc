package rooms

import (
	"context"
	"errors"
	"time"

	"raceserver/broker"
	"raceserver/models"
	"raceserver/quotes"
	"raceserver/store"

	"go.uber.org/zap"
)

const (
	// 1ルームの定員。ロジック自体はN人に一般化してある
	defaultCapacity = 2
	// COUNTDOWN_START発行からレース開始までの遅延。
	// 全購読者がカウントダウン表示を揃えるための猶予
	defaultCountdownDelay = 3 * time.Second
)

// Service はルームのライフサイクルを司るステートマシン。
// 共有する可変状態はストアのみで、ハンドラ呼び出しごとに独立して実行される。
type Service struct {
	store          store.Store
	broker         broker.Broadcaster
	quotes         quotes.Fetcher
	logger         *zap.Logger
	countdowns     *countdownRegistry
	capacity       int
	countdownDelay time.Duration
}

func NewService(st store.Store, br broker.Broadcaster, qf quotes.Fetcher, logger *zap.Logger) *Service {
	return &Service{
		store:          st,
		broker:         br,
		quotes:         qf,
		logger:         logger,
		countdowns:     newCountdownRegistry(),
		capacity:       defaultCapacity,
		countdownDelay: defaultCountdownDelay,
	}
}

// publish はイベントを発行する。配信はベストエフォートで、失敗しても
// ストアへの書き込みが正であるためエラーはログに留める。
func (s *Service) publish(ctx context.Context, roomID, event string, payload interface{}) {
	if err := s.broker.Publish(ctx, broker.RoomChannel(roomID), event, payload); err != nil {
		s.logger.Error("イベントの配信に失敗",
			zap.String("room", roomID), zap.String("event", event), zap.Error(err))
	}
}

// Create は新しいルームを作成し、作成者を唯一のメンバーとして接続する。
// 本文の取得失敗はフォールバックで吸収されるため、ここで失敗要因にはならない。
func (s *Service) Create(ctx context.Context, playerID, playerName string) (*models.Room, error) {
	quote := s.quotes.Fetch(ctx)

	if _, err := s.store.UpsertPlayer(ctx, playerID, playerName); err != nil {
		return nil, err
	}

	room, err := s.store.CreateRoom(ctx, quote.Content, playerID)
	if err != nil {
		return nil, err
	}

	if err := s.store.ConnectPlayer(ctx, room.ID, playerID); err != nil {
		return nil, err
	}

	room, err = s.store.GetRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, room.ID, broker.EventPlayerJoined, broker.PlayerJoined{Player: room.Players[0]})
	s.logger.Info("ルームを作成",
		zap.String("room", room.ID), zap.String("creator", playerID))
	return room, nil
}

// Join はルームに参加する。既存メンバーの再参加は冪等で、状態を変えず再配信もしない。
func (s *Service) Join(ctx context.Context, roomID, playerID, playerName string) (*models.Room, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// 既にメンバーなら現在の状態をそのまま返す
	for _, p := range room.Players {
		if p.ID == playerID {
			return room, nil
		}
	}

	if room.Status == models.RoomInProgress {
		return nil, ErrGameInProgress
	}
	if len(room.Players) >= s.capacity {
		return nil, ErrRoomFull
	}

	if _, err := s.store.UpsertPlayer(ctx, playerID, playerName); err != nil {
		return nil, err
	}
	if err := s.store.ConnectPlayer(ctx, roomID, playerID); err != nil {
		return nil, err
	}

	room, err = s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	for _, p := range room.Players {
		if p.ID == playerID {
			s.publish(ctx, roomID, broker.EventPlayerJoined, broker.PlayerJoined{Player: p})
			break
		}
	}
	return room, nil
}

// Start はカウントダウンを開始する。作成者のみ実行でき、定員に満たないルームでは失敗する。
// COUNTDOWN_STARTは即時配信し、IN_PROGRESSへの遷移は遅延タスクが行う。
func (s *Service) Start(ctx context.Context, roomID, requesterID string) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != requesterID {
		return ErrNotCreator
	}
	if len(room.Players) < 2 {
		return ErrNotEnoughPlayers
	}

	s.publish(ctx, roomID, broker.EventCountdownStart, broker.CountdownStart{RoomID: roomID})

	s.countdowns.Schedule(roomID, s.countdownDelay, func() {
		s.commitStart(roomID)
	})
	return nil
}

// commitStart はカウントダウン完了後のIN_PROGRESS遷移を確定する。
// 予約中にルームが消えたりメンバーが減った場合は遷移を破棄する。
func (s *Service) commitStart(roomID string) {
	ctx := context.Background()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		s.logger.Info("カウントダウン完了時にルームが存在しないため開始を破棄",
			zap.String("room", roomID), zap.Error(err))
		return
	}
	if room.Status != models.RoomWaiting || len(room.Players) < 2 {
		s.logger.Info("ルームの前提が変わったため開始を破棄",
			zap.String("room", roomID),
			zap.String("status", room.Status),
			zap.Int("players", len(room.Players)))
		return
	}

	if err := s.store.SetRoomStatus(ctx, roomID, models.RoomInProgress); err != nil {
		s.logger.Error("ルーム状態の更新に失敗", zap.String("room", roomID), zap.Error(err))
		return
	}
	if err := s.store.ResetRoomPlayers(ctx, roomID); err != nil {
		s.logger.Error("プレイヤー指標のリセットに失敗", zap.String("room", roomID), zap.Error(err))
	}
	// 前レースの成績が新レースに漏れないよう全削除する
	if err := s.store.DeleteRoomPerformances(ctx, roomID); err != nil {
		s.logger.Error("成績レコードの削除に失敗", zap.String("room", roomID), zap.Error(err))
	}

	room, err = s.store.GetRoom(ctx, roomID)
	if err != nil {
		s.logger.Error("開始後のルーム再取得に失敗", zap.String("room", roomID), zap.Error(err))
		return
	}

	s.publish(ctx, roomID, broker.EventGameStart, broker.GameStart{
		RoomID:       roomID,
		Status:       room.Status,
		Players:      room.Players,
		Performances: room.Performances,
		StartedAt:    time.Now().UTC(),
	})
	s.logger.Info("レースを開始", zap.String("room", roomID))
}

// ReportProgress は進捗報告を反映して配信する。最頻出の操作で、
// 同一プレイヤーの並行報告はストアのlast-write-winsに委ねる。
func (s *Service) ReportProgress(ctx context.Context, roomID, playerID string, progress float64, wpm int, accuracy float64) error {
	if _, err := s.store.UpdatePlayerMetrics(ctx, roomID, playerID, progress, wpm, accuracy); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPlayerNotFound
		}
		return err
	}

	perf, err := s.store.UpsertPerformance(ctx, playerID, roomID, wpm, accuracy, false)
	if err != nil {
		return err
	}

	s.publish(ctx, roomID, broker.EventTypingUpdate, broker.TypingUpdate{
		PlayerID:    playerID,
		Progress:    progress,
		WPM:         wpm,
		Accuracy:    accuracy,
		Performance: *perf,
	})
	return nil
}

// Complete はプレイヤーの完走を記録する。ルーム状態はこの操作単体では変えず、
// 全メンバーが完走した時のみCOMPLETEDに遷移させる。
func (s *Service) Complete(ctx context.Context, roomID, playerID string, wpm int, accuracy float64) error {
	if err := s.store.CompletePlayer(ctx, playerID, wpm, accuracy); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPlayerNotFound
		}
		return err
	}

	if _, err := s.store.UpsertPerformance(ctx, playerID, roomID, wpm, accuracy, true); err != nil {
		return err
	}

	s.publish(ctx, roomID, broker.EventGameComplete, broker.GameComplete{
		PlayerID: playerID,
		WPM:      wpm,
		Accuracy: accuracy,
	})

	// 全員完走の確認。片方だけの完走ではレースは続く
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil
	}
	if room.Status != models.RoomInProgress || len(room.Players) == 0 {
		return nil
	}
	for _, p := range room.Players {
		if !p.Completed {
			return nil
		}
	}
	if err := s.store.SetRoomStatus(ctx, roomID, models.RoomCompleted); err != nil {
		s.logger.Error("全員完走後のルーム更新に失敗", zap.String("room", roomID), zap.Error(err))
	}
	return nil
}

// Leave はルームからの退室を処理する。作成者の退室はルームの解散を意味し、
// 残メンバー全員の参照も切る。カウントダウン中なら保留中の開始も取り消す。
func (s *Service) Leave(ctx context.Context, roomID, playerID string) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}

	var leaver *models.Player
	for i := range room.Players {
		if room.Players[i].ID == playerID {
			leaver = &room.Players[i]
			break
		}
	}
	if leaver == nil {
		return ErrPlayerNotFound
	}

	s.countdowns.Cancel(roomID)

	// 退室直前の指標を成績として残す（未完走扱い）
	if _, err := s.store.UpsertPerformance(ctx, playerID, roomID, leaver.WPM, leaver.Accuracy, false); err != nil {
		s.logger.Error("退室者の成績保存に失敗", zap.String("player", playerID), zap.Error(err))
	}

	if room.CreatedBy == playerID {
		// 作成者退室：ルーム解散
		if err := s.store.DeleteRoomPerformances(ctx, roomID); err != nil {
			return err
		}
		if err := s.store.ClearRoomPlayers(ctx, roomID); err != nil {
			return err
		}
		if err := s.store.SetRoomStatus(ctx, roomID, models.RoomCompleted); err != nil {
			return err
		}
		s.publish(ctx, roomID, broker.EventPlayerLeft, broker.PlayerLeft{
			PlayerID:       playerID,
			RoomStatus:     models.RoomCompleted,
			IsAdmin:        true,
			Message:        "Room owner left. Room closed.",
			ShouldRedirect: true,
		})
		s.logger.Info("作成者が退室しルームを解散", zap.String("room", roomID))
		return nil
	}

	// 一般メンバーの退室
	if err := s.store.DeletePerformance(ctx, playerID, roomID); err != nil {
		return err
	}
	if err := s.store.DisconnectPlayer(ctx, playerID); err != nil {
		return err
	}
	// レース中の退室は対戦相手を1人で走らせず、レースを終了させる
	if room.Status == models.RoomInProgress {
		if err := s.store.SetRoomStatus(ctx, roomID, models.RoomCompleted); err != nil {
			return err
		}
	}
	s.publish(ctx, roomID, broker.EventPlayerLeft, broker.PlayerLeft{
		PlayerID:       playerID,
		RoomStatus:     models.RoomCompleted,
		IsAdmin:        false,
		Message:        "Player left the room",
		ShouldRedirect: false,
	})
	return nil
}

// NewGame は再戦用に新しいルームを作る。古いルームはCOMPLETEDのまま残し、
// 同じメンバー構成で新ルームへ移動させる使い捨てのチェーン方式。
func (s *Service) NewGame(ctx context.Context, roomID, requesterID string) (string, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return "", err
	}

	quote := s.quotes.Fetch(ctx)
	newRoom, err := s.store.CreateRoom(ctx, quote.Content, room.CreatedBy)
	if err != nil {
		return "", err
	}
	for _, p := range room.Players {
		if err := s.store.ConnectPlayer(ctx, newRoom.ID, p.ID); err != nil {
			return "", err
		}
	}

	// 旧ルームのチャンネルに通知し、参加者全員を新ルームへ誘導する
	s.publish(ctx, roomID, broker.EventNewGameCreated, broker.NewGameCreated{NewRoomID: newRoom.ID})
	s.logger.Info("再戦ルームを作成",
		zap.String("from", roomID), zap.String("to", newRoom.ID))
	return newRoom.ID, nil
}

// Get はルームの現在状態を返す。クライアントの refetch-on-ambiguity 用。
func (s *Service) Get(ctx context.Context, roomID string) (*models.Room, error) {
	return s.getRoom(ctx, roomID)
}

func (s *Service) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	return room, err
}
