package client

import (
	"encoding/json"
	"testing"
	"time"

	"raceserver/broker"
	"raceserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const raceText = "cat dog"

func envelope(t *testing.T, seq int64, event string, payload interface{}) broker.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return broker.Envelope{Event: event, Seq: seq, At: time.Now(), Payload: raw}
}

func racingSession(t *testing.T, startedAt time.Time) *Session {
	t.Helper()
	s := NewSession("R1", "A", zap.NewNop())
	s.LoadRoom(&models.Room{
		ID:        "R1",
		Text:      raceText,
		Status:    models.RoomWaiting,
		CreatedBy: "A",
		Players: []models.Player{
			{ID: "A", Name: "Alice", Accuracy: 100},
			{ID: "B", Name: "Bob", Accuracy: 100},
		},
	})
	s.Apply(envelope(t, 1, broker.EventGameStart, broker.GameStart{
		RoomID: "R1",
		Status: models.RoomInProgress,
		Players: []models.Player{
			{ID: "A", Name: "Alice", Accuracy: 100},
			{ID: "B", Name: "Bob", Accuracy: 100},
		},
		StartedAt: startedAt,
	}))
	require.Equal(t, PhaseRacing, s.Phase())
	return s
}

func TestKeystrokeReportsOptimisticMetrics(t *testing.T) {
	start := time.Now().Add(-5 * time.Second)
	s := racingSession(t, start)

	for _, step := range []string{"c", "ca", "cat"} {
		_, ok := s.HandleKeystroke(step, time.Now())
		require.True(t, ok, step)
	}
	report, ok := s.HandleKeystroke("cat ", time.Now())
	require.True(t, ok)

	assert.InDelta(t, 57.14, report.Progress, 0.01)
	assert.Equal(t, float64(100), report.Accuracy)
	assert.Greater(t, report.WPM, 0)
	assert.False(t, report.Finished)

	// own player row updated without waiting for the server echo
	for _, p := range s.Players() {
		if p.ID == "A" {
			assert.InDelta(t, 57.14, p.Progress, 0.01)
		}
	}
}

func TestKeystrokeWordBoundaryGating(t *testing.T) {
	s := racingSession(t, time.Now())

	// a wrong word cannot be locked in with a space
	_, ok := s.HandleKeystroke("cap", time.Now())
	require.True(t, ok)
	_, ok = s.HandleKeystroke("cap ", time.Now())
	assert.False(t, ok)

	// typing past the current word's length is rejected
	_, ok = s.HandleKeystroke("capx", time.Now())
	assert.False(t, ok)

	// backspace and fix, then the space is accepted
	_, ok = s.HandleKeystroke("ca", time.Now())
	require.True(t, ok)
	_, ok = s.HandleKeystroke("cat", time.Now())
	require.True(t, ok)
	_, ok = s.HandleKeystroke("cat ", time.Now())
	assert.True(t, ok)
}

func TestKeystrokeMistakeCounterNeverDecrements(t *testing.T) {
	s := racingSession(t, time.Now())

	_, _ = s.HandleKeystroke("c", time.Now())
	_, _ = s.HandleKeystroke("cq", time.Now()) // wrong
	_, _ = s.HandleKeystroke("c", time.Now())  // backspace
	report, ok := s.HandleKeystroke("ca", time.Now())
	require.True(t, ok)

	// the lifetime mistake counter keeps the error for display...
	assert.Equal(t, 1, s.Mistakes())
	// ...but the reported accuracy uses the positional policy and is repaired
	assert.Equal(t, float64(100), report.Accuracy)
}

func TestKeystrokeFinishesRace(t *testing.T) {
	s := racingSession(t, time.Now().Add(-10*time.Second))

	for _, step := range []string{"cat", "cat "} {
		_, ok := s.HandleKeystroke(step, time.Now())
		require.True(t, ok)
	}
	report, ok := s.HandleKeystroke(raceText, time.Now())
	require.True(t, ok)
	assert.True(t, report.Finished)
	assert.Equal(t, float64(100), report.Progress)
	assert.Equal(t, PhaseResults, s.Phase())

	// input is no longer accepted once the race is over
	_, ok = s.HandleKeystroke("cat dogx", time.Now())
	assert.False(t, ok)
}

func TestApplyDropsStaleSequence(t *testing.T) {
	s := racingSession(t, time.Now()) // applied seq 1

	s.Apply(envelope(t, 3, broker.EventTypingUpdate, broker.TypingUpdate{
		PlayerID: "B", Progress: 50, WPM: 40, Accuracy: 99,
		Performance: models.Performance{PlayerID: "B", RoomID: "R1", WPM: 40, Accuracy: 99},
	}))
	// older update arriving late must not clobber the newer one
	s.Apply(envelope(t, 2, broker.EventTypingUpdate, broker.TypingUpdate{
		PlayerID: "B", Progress: 10, WPM: 12, Accuracy: 80,
		Performance: models.Performance{PlayerID: "B", RoomID: "R1", WPM: 12, Accuracy: 80},
	}))

	for _, p := range s.Players() {
		if p.ID == "B" {
			assert.Equal(t, float64(50), p.Progress)
			assert.Equal(t, 40, p.WPM)
		}
	}
	perfs := s.Performances()
	require.Len(t, perfs, 1)
	assert.Equal(t, 40, perfs[0].WPM)
}

func TestApplyTypingUpdateUpsertsById(t *testing.T) {
	s := racingSession(t, time.Now())

	s.Apply(envelope(t, 2, broker.EventTypingUpdate, broker.TypingUpdate{
		PlayerID: "B", Progress: 30, WPM: 33, Accuracy: 97,
		Performance: models.Performance{PlayerID: "B", RoomID: "R1", WPM: 33, Accuracy: 97},
	}))
	s.Apply(envelope(t, 3, broker.EventTypingUpdate, broker.TypingUpdate{
		PlayerID: "B", Progress: 60, WPM: 41, Accuracy: 96,
		Performance: models.Performance{PlayerID: "B", RoomID: "R1", WPM: 41, Accuracy: 96},
	}))

	perfs := s.Performances()
	require.Len(t, perfs, 1) // merged, not duplicated
	assert.Equal(t, 41, perfs[0].WPM)
}

func TestApplyCountdownThenGameStartResets(t *testing.T) {
	s := NewSession("R1", "A", zap.NewNop())
	s.LoadRoom(&models.Room{ID: "R1", Text: raceText, Status: models.RoomWaiting, CreatedBy: "A",
		Players: []models.Player{{ID: "A", Accuracy: 100}, {ID: "B", Accuracy: 100}}})

	s.Apply(envelope(t, 1, broker.EventCountdownStart, broker.CountdownStart{RoomID: "R1"}))
	assert.Equal(t, PhaseCountdown, s.Phase())
	assert.Equal(t, 3, s.Countdown())

	now := time.Now()
	s.Tick(now)
	assert.Equal(t, 2, s.Countdown())

	s.Apply(envelope(t, 2, broker.EventGameStart, broker.GameStart{
		RoomID: "R1", Status: models.RoomInProgress,
		Players:   []models.Player{{ID: "A", Accuracy: 100}, {ID: "B", Accuracy: 100}},
		StartedAt: now,
	}))
	assert.Equal(t, PhaseRacing, s.Phase())
	assert.Equal(t, "", s.Input())
	assert.Equal(t, 0, s.Mistakes())
}

func TestApplyCreatorLeftRedirects(t *testing.T) {
	s := racingSession(t, time.Now())

	s.Apply(envelope(t, 2, broker.EventPlayerLeft, broker.PlayerLeft{
		PlayerID: "A", RoomStatus: models.RoomCompleted, IsAdmin: true,
		Message: "Room owner left. Room closed.", ShouldRedirect: true,
	}))
	assert.Equal(t, PhaseLeft, s.Phase())
	assert.True(t, s.RefetchNeeded())
}

func TestApplyOpponentLeftShowsResults(t *testing.T) {
	s := racingSession(t, time.Now())

	s.Apply(envelope(t, 2, broker.EventPlayerLeft, broker.PlayerLeft{
		PlayerID: "B", RoomStatus: models.RoomCompleted, IsAdmin: false,
		Message: "Player left the room", ShouldRedirect: false,
	}))
	assert.Equal(t, PhaseResults, s.Phase())
}

func TestApplyGameCompleteRequestsRefetch(t *testing.T) {
	s := racingSession(t, time.Now())

	s.Apply(envelope(t, 2, broker.EventGameComplete, broker.GameComplete{PlayerID: "B", WPM: 55, Accuracy: 96}))
	assert.Equal(t, PhaseResults, s.Phase())
	assert.True(t, s.RefetchNeeded())
}

func TestApplyNewGameCreated(t *testing.T) {
	s := racingSession(t, time.Now())

	s.Apply(envelope(t, 2, broker.EventNewGameCreated, broker.NewGameCreated{NewRoomID: "R2"}))
	assert.Equal(t, "R2", s.NextRoomID())
}

func TestLocalDeadlineTriggersCompletion(t *testing.T) {
	start := time.Now().Add(-61 * time.Second)
	s := racingSession(t, start)
	_, _ = s.HandleKeystroke("cat ", time.Now())

	require.True(t, s.Tick(time.Now()))
	report := s.FinalReport(time.Now())
	assert.True(t, report.Finished)
	assert.InDelta(t, 57.14, report.Progress, 0.01)
	assert.Equal(t, PhaseResults, s.Phase())
	assert.Equal(t, 0, s.TimeLeft(time.Now()))
}

func TestKeystrokeIgnoredOutsideRace(t *testing.T) {
	s := NewSession("R1", "A", zap.NewNop())
	s.LoadRoom(&models.Room{ID: "R1", Text: raceText, Status: models.RoomWaiting})

	_, ok := s.HandleKeystroke("c", time.Now())
	assert.False(t, ok)
}
