package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/ludo-backend/internal"
)

// fixedDice returns a roller that replays values and then repeats the last.
func fixedDice(values ...int) Roller {
	var mu sync.Mutex
	i := 0
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		v := values[min(i, len(values)-1)]
		i++
		return v
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// startedGame creates a playing game with red (r) and blue (b).
func startedGame(t *testing.T, s *Store) string {
	t.Helper()
	g := s.CreateGame()
	require.True(t, s.JoinGame(g.Id, JoinRequest{Name: "Red", Color: internal.ColorRed, PlayerID: "r"}).Success)
	require.True(t, s.JoinGame(g.Id, JoinRequest{Name: "Blue", Color: internal.ColorBlue, PlayerID: "b"}).Success)
	require.True(t, s.StartGame(g.Id).Success)
	return g.Id
}

func TestJoinGame(t *testing.T) {
	s := NewStore()
	g := s.CreateGame()
	assert.Equal(t, internal.PhaseWaiting, g.Phase)

	res := s.JoinGame(g.Id, JoinRequest{Name: "Red", Color: internal.ColorRed, PlayerID: "r"})
	require.True(t, res.Success)
	assert.Equal(t, "r", res.PlayerID)

	res = s.JoinGame(g.Id, JoinRequest{Name: "Other", Color: internal.ColorRed, PlayerID: "x"})
	assert.False(t, res.Success)
	assert.Equal(t, MsgColorUnavailable, res.Message)

	res = s.JoinGame(g.Id, JoinRequest{Name: "Again", Color: internal.ColorBlue, PlayerID: "r"})
	assert.Equal(t, MsgAlreadyJoined, res.Message)

	res = s.JoinGame("missing", JoinRequest{Name: "Red", Color: internal.ColorRed, PlayerID: "r"})
	assert.Equal(t, MsgGameNotFound, res.Message)

	state := s.GetGameState(g.Id)
	assert.Len(t, state.Players, 1)
	assert.NotContains(t, state.AvailableColors, internal.ColorRed)
	assert.Equal(t, int64(2), state.Version)
}

func TestJoinGameFull(t *testing.T) {
	s := NewStore()
	g := s.CreateGame()
	for i, c := range internal.Colors {
		require.True(t, s.JoinGame(g.Id, JoinRequest{Name: "p", Color: c, PlayerID: string(rune('a' + i))}).Success)
	}
	res := s.JoinGame(g.Id, JoinRequest{Name: "late", Color: internal.ColorRed, PlayerID: "z"})
	assert.Equal(t, MsgGameFull, res.Message)
	assert.Empty(t, s.GetAvailableGames())
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	s := NewStore()
	g := s.CreateGame()
	require.True(t, s.JoinGame(g.Id, JoinRequest{Name: "Red", Color: internal.ColorRed, PlayerID: "r"}).Success)

	res := s.StartGame(g.Id)
	assert.False(t, res.Success)
	assert.Equal(t, MsgNotEnoughPlayers, res.Message)
	assert.Equal(t, internal.PhaseWaiting, s.GetGameState(g.Id).Phase)
}

func TestStartGame(t *testing.T) {
	s := NewStore()
	id := startedGame(t, s)

	g := s.GetGameState(id)
	assert.Equal(t, internal.PhasePlaying, g.Phase)
	assert.True(t, g.GameStarted)
	assert.True(t, g.CanRollDice)
	assert.Equal(t, 0, g.CurrentPlayer)
	assert.Equal(t, internal.ActionRollDice, g.Players[0].Action)
	assert.NotNil(t, g.DecisionStartTime)

	assert.Equal(t, MsgGameAlreadyBegun, s.StartGame(id).Message)
	assert.Equal(t, MsgGameAlreadyBegun, s.JoinGame(id, JoinRequest{Name: "Y", Color: internal.ColorYellow, PlayerID: "y"}).Message)
}

func TestRollDiceRejectsOutOfTurn(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(4)))
	id := startedGame(t, s)
	before := s.GetGameState(id).Version

	res := s.RollDice(id, "b")
	assert.False(t, res.Success)
	assert.Equal(t, MsgNotYourTurn, res.Message)
	assert.Equal(t, before, s.GetGameState(id).Version)

	res = s.RollDice(id, "r")
	require.True(t, res.Success)
	assert.Equal(t, 4, res.DiceValue)

	assert.Equal(t, MsgCannotRoll, s.RollDice(id, "r").Message)

	g := s.GetGameState(id)
	assert.Equal(t, internal.ActionRolling, g.Players[0].Action)
	require.NotNil(t, g.Players[0].DiceValue)
	assert.Equal(t, 4, *g.Players[0].DiceValue)
}

func TestApplyDiceResultPassesTurnWithoutMovablePiece(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(3)))
	id := startedGame(t, s)
	require.True(t, s.RollDice(id, "r").Success)

	res := s.ApplyDiceResult(id)
	require.True(t, res.Success)
	assert.Equal(t, MsgTurnPassed, res.Message)
	assert.Equal(t, "r", res.PlayerID)

	g := s.GetGameState(id)
	assert.Equal(t, 1, g.CurrentPlayer)
	assert.True(t, g.CanRollDice)
	assert.Equal(t, internal.ActionNone, g.Players[0].Action)
	assert.Nil(t, g.Players[0].DiceValue)
	assert.Equal(t, internal.ActionRollDice, g.Players[1].Action)

	assert.Equal(t, MsgNoDiceRolling, s.ApplyDiceResult(id).Message)
}

func TestSixLetsEveryStartPieceLeave(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(6)))
	id := startedGame(t, s)

	// all four pieces can leave on a six
	require.True(t, s.RollDice(id, "r").Success)
	res := s.ApplyDiceResult(id)
	assert.Equal(t, MsgAwaitSelection, res.Message)
	g := s.GetGameState(id)
	assert.True(t, g.CanMovePiece)
	assert.Nil(t, g.SelectedPieceID)
	assert.Equal(t, internal.ActionSelectPiece, g.Players[0].Action)

	assert.Equal(t, MsgNotYourTurn, s.SelectPiece(id, "b", 0).Message)
	assert.Equal(t, MsgPieceNotFound, s.SelectPiece(id, "r", 7).Message)
	require.True(t, s.SelectPiece(id, "r", 2).Success)
	require.True(t, s.MovePiece(id, "r").Success)

	// a six keeps the turn
	g = s.GetGameState(id)
	assert.Equal(t, 0, g.CurrentPlayer)
	assert.Equal(t, internal.BoardPosition(1), g.Players[0].Pieces[2].Position)
	require.NotNil(t, g.LastMove)
	require.Len(t, g.LastMove.Moves, 1)
	assert.Equal(t, internal.MoveStartToBoard, g.LastMove.Moves[0].Kind)
}

func TestSingleMovablePieceIsSelectedAutomatically(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(2)))
	id := startedGame(t, s)

	e := s.entry(id)
	e.mu.Lock()
	e.game.Players[0].Pieces[1].Position = internal.BoardPosition(20)
	e.mu.Unlock()

	require.True(t, s.RollDice(id, "r").Success)
	res := s.ApplyDiceResult(id)
	assert.Equal(t, MsgPieceAutoSelected, res.Message)

	g := s.GetGameState(id)
	require.NotNil(t, g.SelectedPieceID)
	assert.Equal(t, 1, *g.SelectedPieceID)
	assert.Equal(t, internal.ActionMovePiece, g.Players[0].Action)

	require.True(t, s.MovePiece(id, "r").Success)
	g = s.GetGameState(id)
	assert.Equal(t, internal.BoardPosition(22), g.Players[0].Pieces[1].Position)
	assert.Equal(t, 1, g.CurrentPlayer, "turn passes on a non-six")
	assert.Equal(t, internal.ActionRollDice, g.Players[1].Action)
}

func TestSelectPieceRejectsImmovablePiece(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(2)))
	id := startedGame(t, s)

	e := s.entry(id)
	e.mu.Lock()
	e.game.Players[0].Pieces[0].Position = internal.BoardPosition(20)
	e.game.Players[0].Pieces[1].Position = internal.BoardPosition(30)
	e.mu.Unlock()

	require.True(t, s.RollDice(id, "r").Success)
	require.Equal(t, MsgAwaitSelection, s.ApplyDiceResult(id).Message)

	assert.Equal(t, MsgPieceCannotMove, s.SelectPiece(id, "r", 3).Message)
	assert.Equal(t, MsgNoPieceSelected, s.MovePiece(id, "r").Message)
	assert.Equal(t, MsgNotYourTurn, s.MovePiece(id, "b").Message)
}

func TestCaptureRecordsBothMoves(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(2)))
	id := startedGame(t, s)

	e := s.entry(id)
	e.mu.Lock()
	e.game.Players[0].Pieces[0].Position = internal.BoardPosition(3)
	e.game.Players[1].Pieces[2].Position = internal.BoardPosition(5)
	e.mu.Unlock()

	require.True(t, s.RollDice(id, "r").Success)
	require.Equal(t, MsgPieceAutoSelected, s.ApplyDiceResult(id).Message)
	require.True(t, s.MovePiece(id, "r").Success)

	g := s.GetGameState(id)
	assert.True(t, g.Players[1].Pieces[2].InStartZone())
	require.NotNil(t, g.LastMove)
	require.Len(t, g.LastMove.Moves, 2)
	assert.Equal(t, internal.MoveBoard, g.LastMove.Moves[0].Kind)
	assert.Equal(t, internal.ColorRed, g.LastMove.Moves[0].PlayerColor)
	assert.Equal(t, internal.MoveCapturedToStart, g.LastMove.Moves[1].Kind)
	assert.Equal(t, internal.ColorBlue, g.LastMove.Moves[1].PlayerColor)
	assert.Equal(t, 2, g.LastMove.DiceValue)
	assert.NotEmpty(t, g.LastMove.MoveID)
}

func TestWinFinishesGame(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(1)))
	id := startedGame(t, s)

	e := s.entry(id)
	e.mu.Lock()
	red := e.game.Players[0]
	for i := range red.Pieces {
		red.Pieces[i].Position = internal.EndPathPosition(internal.EndPathSize)
	}
	red.Pieces[3].Position = internal.EndPathPosition(3)
	e.mu.Unlock()

	require.True(t, s.RollDice(id, "r").Success)
	require.Equal(t, MsgPieceAutoSelected, s.ApplyDiceResult(id).Message)
	res := s.MovePiece(id, "r")
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "Red")

	g := s.GetGameState(id)
	assert.Equal(t, internal.PhaseFinished, g.Phase)
	assert.Equal(t, "r", g.Winner)
	assert.False(t, g.CanRollDice)
	assert.False(t, g.CanMovePiece)
	assert.Nil(t, g.DecisionStartTime)
	for _, p := range g.Players {
		assert.Equal(t, internal.ActionNone, p.Action)
	}

	version := g.Version
	assert.Equal(t, MsgGameNotPlaying, s.RollDice(id, "r").Message)
	assert.Equal(t, MsgGameNotPlaying, s.RollDice(id, "b").Message)
	assert.Equal(t, MsgGameNotPlaying, s.SelectPiece(id, "r", 0).Message)
	assert.Equal(t, MsgGameNotPlaying, s.MovePiece(id, "r").Message)
	assert.Equal(t, MsgGameNotPlaying, s.ApplyDiceResult(id).Message)
	assert.Equal(t, version, s.GetGameState(id).Version)
}

func TestVersionIncreasesOnEveryAcceptedMutation(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(6, 6, 3)))
	g := s.CreateGame()
	last := g.Version

	step := func(res internal.Result) {
		t.Helper()
		require.True(t, res.Success, res.Message)
		v := s.GetGameState(g.Id).Version
		assert.Greater(t, v, last)
		last = v
	}
	step(s.JoinGame(g.Id, JoinRequest{Name: "Red", Color: internal.ColorRed, PlayerID: "r"}))
	step(s.JoinGame(g.Id, JoinRequest{Name: "Blue", Color: internal.ColorBlue, PlayerID: "b"}))
	step(s.StartGame(g.Id))
	step(s.RollDice(g.Id, "r"))
	step(s.ApplyDiceResult(g.Id))
	step(s.SelectPiece(g.Id, "r", 0))
	step(s.MovePiece(g.Id, "r"))

	s.UpdatePlayerActionTimes(g.Id)
	assert.Equal(t, last, s.GetGameState(g.Id).Version)
}

func TestDecisionTimeLeftFollowsClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore(WithClock(clock.Now), WithDecisionDuration(10*time.Second))
	g := s.CreateGame()

	_, ok := s.GetDecisionTimeLeft(g.Id)
	assert.False(t, ok, "no window before start")
	_, ok = s.GetDecisionTimeLeft("missing")
	assert.False(t, ok)

	require.True(t, s.JoinGame(g.Id, JoinRequest{Name: "Red", Color: internal.ColorRed, PlayerID: "r"}).Success)
	require.True(t, s.JoinGame(g.Id, JoinRequest{Name: "Blue", Color: internal.ColorBlue, PlayerID: "b"}).Success)
	require.True(t, s.StartGame(g.Id).Success)

	clock.Advance(2500 * time.Millisecond)
	left, ok := s.GetDecisionTimeLeft(g.Id)
	require.True(t, ok)
	assert.Equal(t, 75, left)

	s.UpdatePlayerActionTimes(g.Id)
	state := s.GetGameState(g.Id)
	require.NotNil(t, state.Players[0].ActionTimeLeft)
	assert.Equal(t, 75, *state.Players[0].ActionTimeLeft)
	assert.Nil(t, state.Players[1].ActionTimeLeft)

	clock.Advance(time.Minute)
	left, _ = s.GetDecisionTimeLeft(g.Id)
	assert.Equal(t, 0, left)
}

func TestRejoinAndDeleteGame(t *testing.T) {
	s := NewStore()
	id := startedGame(t, s)

	data, res := s.RejoinGame(id, "b")
	require.True(t, res.Success)
	assert.Equal(t, internal.RejoinData{Name: "Blue", Color: internal.ColorBlue}, data)

	_, res = s.RejoinGame(id, "nobody")
	assert.Equal(t, MsgPlayerNotFound, res.Message)

	assert.Equal(t, 1, s.GameCount())
	assert.True(t, s.DeleteGame(id))
	assert.False(t, s.DeleteGame(id))
	assert.Nil(t, s.GetGameState(id))
	assert.Empty(t, s.GetAllGames())
}

func TestGetGameStateReturnsCopy(t *testing.T) {
	s := NewStore()
	id := startedGame(t, s)

	g := s.GetGameState(id)
	g.Players[0].Pieces[0].Position = internal.BoardPosition(10)
	g.Phase = internal.PhaseFinished

	fresh := s.GetGameState(id)
	assert.True(t, fresh.Players[0].Pieces[0].InStartZone())
	assert.Equal(t, internal.PhasePlaying, fresh.Phase)
}

func TestConcurrentRollsAcceptOnlyOne(t *testing.T) {
	s := NewStore(WithRoller(fixedDice(4)))
	id := startedGame(t, s)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.RollDice(id, "r").Success {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestWithDiceRange(t *testing.T) {
	s := NewStore(WithDiceRange(6, 6))
	id := startedGame(t, s)
	assert.Equal(t, 6, s.RollDice(id, "r").DiceValue)
}
