package client

import (
	"strings"
	"sync"
	"time"

	"raceserver/broker"
	"raceserver/metrics"
	"raceserver/models"

	"go.uber.org/zap"
)

// Phase はクライアントから見たレース画面の状態
type Phase int

const (
	PhaseWaiting   Phase = iota // 開始待ち
	PhaseCountdown              // ローカルの3-2-1カウントダウン表示中
	PhaseRacing                 // 入力受付中
	PhaseResults                // 結果表示
	PhaseLeft                   // ルームから退出（作成者の解散通知など）
)

// 既定のレース制限時間。GAME_STARTのStartedAtを基準に各クライアントが計る
const defaultTimeLimit = 60 * time.Second

// ProgressReport はキー入力1回分の報告内容。UIをブロックせず非同期に送る前提。
type ProgressReport struct {
	RoomID   string
	PlayerID string
	Progress float64
	WPM      int
	Accuracy float64
	Finished bool // 本文を打ち切った場合true。完走報告も送る
}

// Session はルームのイベントストリームに対するローカルのリデューサ。
// サーバー確定値とローカルの楽観的な入力状態を突き合わせて1つのビューを保つ。
// ローカルキャッシュはあくまで参考値で、曖昧なイベントの受信時は再取得を要求する。
type Session struct {
	mu sync.Mutex

	roomID   string
	playerID string

	text         string
	status       string
	createdBy    string
	players      []models.Player
	performances []models.Performance

	input      string
	phase      Phase
	startedAt  time.Time
	timeLimit  time.Duration
	countdown  int
	mistakes   int // 累積ミス打鍵数（表示用。正確率には影響しない）
	keystrokes int

	lastSeq       int64
	refetchNeeded bool
	nextRoomID    string

	logger *zap.Logger
}

func NewSession(roomID, playerID string, logger *zap.Logger) *Session {
	return &Session{
		roomID:    roomID,
		playerID:  playerID,
		phase:     PhaseWaiting,
		timeLimit: defaultTimeLimit,
		logger:    logger,
	}
}

// LoadRoom はサーバーから再取得したルーム状態でローカルビューを置き換える。
func (s *Session) LoadRoom(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = room.Text
	s.status = room.Status
	s.createdBy = room.CreatedBy
	s.players = append([]models.Player(nil), room.Players...)
	s.performances = append([]models.Performance(nil), room.Performances...)
	s.refetchNeeded = false
	if room.Status == models.RoomInProgress && s.phase == PhaseWaiting {
		// 再接続などでレース途中から合流した場合
		s.phase = PhaseRacing
	}
	if room.Status == models.RoomCompleted && s.phase != PhaseLeft {
		s.phase = PhaseResults
	}
}

// HandleKeystroke は入力欄の新しい値を検証して反映する。
// 誤入力した単語を越えて先へ進めない前方修正方式のゲートを通った場合のみ、
// 楽観的にローカル指標を更新し、サーバーへ送る報告を返す。
func (s *Session) HandleKeystroke(value string, now time.Time) (*ProgressReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRacing {
		return nil, false
	}

	words := strings.Split(s.text, " ")
	typedWords := strings.Split(value, " ")

	if strings.HasSuffix(value, " ") {
		// スペース確定は直前の単語が一致している時のみ許可
		idx := len(typedWords) - 2
		if idx < 0 || idx >= len(words) || typedWords[idx] != words[idx] {
			return nil, false
		}
	} else {
		// 現在の単語の長さを超える入力は拒否
		idx := len(typedWords) - 1
		if idx >= len(words) || len(typedWords[idx]) > len(words[idx]) {
			return nil, false
		}
	}

	// 追記の場合のみ打鍵を数える（バックスペースは数えない）
	if len(value) > len(s.input) {
		pos := len(value) - 1
		if pos >= len(s.text) || value[pos] != s.text[pos] {
			s.mistakes++
		}
		s.keystrokes++
	}

	s.input = value

	elapsed := now.Sub(s.startedAt)
	correct, total := metrics.CorrectChars(value, s.text)
	report := &ProgressReport{
		RoomID:   s.roomID,
		PlayerID: s.playerID,
		Progress: metrics.Progress(len(value), len(s.text)),
		WPM:      metrics.WPM(len(value), elapsed),
		Accuracy: metrics.Accuracy(correct, total),
		Finished: value == s.text,
	}

	// 自分の行は即時反映し、サーバーのTYPING_UPDATEを待たない
	s.mergePlayerLocked(s.playerID, report.Progress, report.WPM, report.Accuracy)

	if report.Finished {
		s.phase = PhaseResults
	}
	return report, true
}

// Apply は受信イベントをローカルビューに適用する。
// ルームチャンネルのシーケンス番号が前回適用分以下のイベントは破棄し、
// 順序保証のない配信経路でも最新値勝ちに収束させる。
func (s *Session) Apply(env broker.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env.Seq > 0 && env.Seq <= s.lastSeq {
		return
	}
	if env.Seq > 0 {
		s.lastSeq = env.Seq
	}

	switch env.Event {
	case broker.EventPlayerJoined:
		// メンバー構成が変わったので正確な一覧はサーバーから取り直す
		s.refetchNeeded = true

	case broker.EventPlayerLeft:
		var payload broker.PlayerLeft
		if err := env.Decode(&payload); err != nil {
			s.logger.Error("Failed to decode player-left payload", zap.Error(err))
			return
		}
		s.refetchNeeded = true
		if payload.ShouldRedirect {
			s.phase = PhaseLeft
			return
		}
		if payload.RoomStatus == models.RoomCompleted {
			s.phase = PhaseResults
		}

	case broker.EventCountdownStart:
		// サーバーの3秒遅延と揃えるローカル専用カウントダウン
		s.phase = PhaseCountdown
		s.countdown = 3

	case broker.EventGameStart:
		var payload broker.GameStart
		if err := env.Decode(&payload); err != nil {
			s.logger.Error("Failed to decode game-start payload", zap.Error(err))
			return
		}
		s.input = ""
		s.mistakes = 0
		s.keystrokes = 0
		s.status = payload.Status
		s.players = payload.Players
		s.performances = payload.Performances
		s.startedAt = payload.StartedAt
		s.phase = PhaseRacing

	case broker.EventTypingUpdate:
		var payload broker.TypingUpdate
		if err := env.Decode(&payload); err != nil {
			s.logger.Error("Failed to decode typing-update payload", zap.Error(err))
			return
		}
		s.mergePlayerLocked(payload.PlayerID, payload.Progress, payload.WPM, payload.Accuracy)
		s.mergePerformanceLocked(payload.Performance)

	case broker.EventGameComplete:
		s.refetchNeeded = true
		s.phase = PhaseResults

	case broker.EventNewGameCreated:
		var payload broker.NewGameCreated
		if err := env.Decode(&payload); err != nil {
			s.logger.Error("Failed to decode new-game payload", zap.Error(err))
			return
		}
		s.nextRoomID = payload.NewRoomID

	default:
		s.logger.Warn("Unknown event ignored", zap.String("event", env.Event))
	}
}

// Tick は1秒ごとに呼ばれる時計駆動。カウントダウン表示を進め、
// 制限時間に達した場合trueを返す（呼び出し側が完走報告を送る）。
func (s *Session) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseCountdown && s.countdown > 0 {
		s.countdown--
		return false
	}
	if s.phase != PhaseRacing || s.startedAt.IsZero() {
		return false
	}
	return !now.Before(s.startedAt.Add(s.timeLimit))
}

// FinalReport は現在の入力状態から最終成績を作る。
// 制限時間切れのローカル完了時に使い、フェーズを結果表示へ移す。
func (s *Session) FinalReport(now time.Time) *ProgressReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	correct, total := metrics.CorrectChars(s.input, s.text)
	s.phase = PhaseResults
	return &ProgressReport{
		RoomID:   s.roomID,
		PlayerID: s.playerID,
		Progress: metrics.Progress(len(s.input), len(s.text)),
		WPM:      metrics.WPM(len(s.input), now.Sub(s.startedAt)),
		Accuracy: metrics.Accuracy(correct, total),
		Finished: true,
	}
}

func (s *Session) mergePlayerLocked(playerID string, progress float64, wpm int, accuracy float64) {
	for i := range s.players {
		if s.players[i].ID == playerID {
			s.players[i].Progress = progress
			s.players[i].WPM = wpm
			s.players[i].Accuracy = accuracy
			return
		}
	}
	// 未知のプレイヤーは一覧の再取得で拾う
	s.refetchNeeded = true
}

func (s *Session) mergePerformanceLocked(perf models.Performance) {
	for i := range s.performances {
		if s.performances[i].PlayerID == perf.PlayerID && s.performances[i].RoomID == perf.RoomID {
			s.performances[i] = perf
			return
		}
	}
	s.performances = append(s.performances, perf)
}

// 以下、UI向けの読み取り専用アクセサ

// IsCreator は自分がルーム作成者（開始・解散の権限者）かを返す
func (s *Session) IsCreator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdBy != "" && s.createdBy == s.playerID
}

// Status はサーバー確定のルーム状態を返す
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) Countdown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

func (s *Session) Mistakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mistakes
}

func (s *Session) Players() []models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Player(nil), s.players...)
}

func (s *Session) Performances() []models.Performance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Performance(nil), s.performances...)
}

func (s *Session) RefetchNeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refetchNeeded
}

func (s *Session) NextRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRoomID
}

// TimeLeft は残り秒数を返す。レース開始前は制限時間そのもの。
func (s *Session) TimeLeft(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return int(s.timeLimit.Seconds())
	}
	left := s.timeLimit - now.Sub(s.startedAt)
	if left < 0 {
		return 0
	}
	return int(left.Seconds())
}
