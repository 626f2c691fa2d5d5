package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal"
	"github.com/scythe504/ludo-backend/internal/utils"
)

// =============================================================================
// GAME STATE STORE
// =============================================================================

const (
	MsgGameNotFound      = "game not found"
	MsgGameAlreadyBegun  = "game has already started"
	MsgGameFull          = "game is full"
	MsgColorUnavailable  = "color not available"
	MsgAlreadyJoined     = "player already in this game"
	MsgNotEnoughPlayers  = "at least 2 players are needed"
	MsgGameNotPlaying    = "game is not in progress"
	MsgNotYourTurn       = "not your turn"
	MsgCannotRoll        = "cannot roll the dice right now"
	MsgNoDiceRolling     = "no dice is being rolled"
	MsgCannotSelect      = "cannot select a piece right now"
	MsgPieceNotFound     = "piece not found"
	MsgPieceCannotMove   = "this piece cannot move"
	MsgNoPieceSelected   = "no piece selected to move"
	MsgPlayerNotFound    = "player not found in this game"
	MsgInvalidPlayerName = "player name is required"

	MsgTurnPassed        = "no movable piece, turn passed"
	MsgPieceAutoSelected = "only one movable piece, selected automatically"
	MsgAwaitSelection    = "select a piece to move"
)

// Roller draws one dice value.
type Roller func() int

type Option func(*Store)

// WithDecisionDuration sets the decision window of newly created games.
func WithDecisionDuration(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.decisionDuration = d
		}
	}
}

// WithDiceRange makes the default roller draw from [lo, hi].
func WithDiceRange(lo, hi int) Option {
	return func(s *Store) {
		if lo >= 1 && hi >= lo && hi <= internal.MaxDiceFace {
			s.roll = func() int { return utils.RollDie(lo, hi) }
		}
	}
}

func WithRoller(r Roller) Option {
	return func(s *Store) {
		if r != nil {
			s.roll = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type gameEntry struct {
	mu   sync.Mutex
	game *internal.Game
}

// Store owns every active game. Each game has its own mutex so operations on
// one game are serialized while different games proceed independently.
type Store struct {
	mu    sync.RWMutex
	games map[string]*gameEntry
	order []string

	decisionDuration time.Duration
	roll             Roller
	now              func() time.Time
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		games:            make(map[string]*gameEntry),
		decisionDuration: internal.DefaultDecisionDuration,
		roll:             func() int { return utils.RollDie(1, internal.MaxDiceFace) },
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) entry(gameID string) *gameEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[gameID]
}

// withGame runs fn while holding the game's lock.
func (s *Store) withGame(gameID string, fn func(g *internal.Game) internal.Result) internal.Result {
	e := s.entry(gameID)
	if e == nil {
		return internal.Fail(MsgGameNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.game)
}

func (s *Store) commit(g *internal.Game) {
	g.Touch(s.now())
}

// CreateGame registers an empty game waiting for players.
func (s *Store) CreateGame() *internal.Game {
	g := internal.NewGame(uuid.NewString(), s.decisionDuration, s.now())

	s.mu.Lock()
	s.games[g.Id] = &gameEntry{game: g}
	s.order = append(s.order, g.Id)
	s.mu.Unlock()

	log.Info().Str("game", g.Id).Msg("[CreateGame] created new game")
	return g.Clone()
}

type JoinRequest struct {
	Name     string
	Color    internal.Color
	PlayerID string
}

func (s *Store) JoinGame(gameID string, req JoinRequest) internal.Result {
	return s.withGame(gameID, func(g *internal.Game) internal.Result {
		if g.Phase != internal.PhaseWaiting {
			return internal.Fail(MsgGameAlreadyBegun)
		}
		if g.IsFull() {
			return internal.Fail(MsgGameFull)
		}
		if !g.IsColorAvailable(req.Color) {
			return internal.Fail(MsgColorUnavailable)
		}
		if p, _ := g.GetPlayer(req.PlayerID); p != nil {
			return internal.Fail(MsgAlreadyJoined)
		}

		g.Players = append(g.Players, internal.NewPlayer(req.PlayerID, req.Name, req.Color))
		g.TakeColor(req.Color)
		s.commit(g)

		log.Info().Str("game", g.Id).Str("player", req.PlayerID).Str("color", string(req.Color)).
			Int("players", len(g.Players)).Msg("[JoinGame] player joined")
		res := internal.Ok("joined game")
		res.PlayerID = req.PlayerID
		return res
	})
}

// RejoinGame looks up an existing player so a client can resume its seat.
func (s *Store) RejoinGame(gameID, playerID string) (internal.RejoinData, internal.Result) {
	var data internal.RejoinData
	res := s.withGame(gameID, func(g *internal.Game) internal.Result {
		p, _ := g.GetPlayer(playerID)
		if p == nil {
			return internal.Fail(MsgPlayerNotFound)
		}
		data = internal.RejoinData{Name: p.Name, Color: p.Color}
		return internal.Ok("rejoined game")
	})
	return data, res
}

func (s *Store) StartGame(gameID string) internal.Result {
	return s.withGame(gameID, func(g *internal.Game) internal.Result {
		if g.Phase != internal.PhaseWaiting {
			return internal.Fail(MsgGameAlreadyBegun)
		}
		if !g.CanStartGame() {
			return internal.Fail(MsgNotEnoughPlayers)
		}

		g.Phase = internal.PhasePlaying
		g.GameStarted = true
		g.CurrentPlayer = 0
		g.CanRollDice = true
		g.CanMovePiece = false
		g.SelectedPieceID = nil
		g.GetCurrentPlayer().Action = internal.ActionRollDice
		g.OpenDecisionWindow(s.now())
		s.commit(g)

		log.Info().Str("game", g.Id).Int("players", len(g.Players)).Msg("[StartGame] game started")
		return internal.Ok("game started")
	})
}

// RollDice draws a value for the current player. The value is not applied to
// any piece until ApplyDiceResult runs.
func (s *Store) RollDice(gameID, playerID string) internal.Result {
	return s.withGame(gameID, func(g *internal.Game) internal.Result {
		if g.Phase != internal.PhasePlaying {
			return internal.Fail(MsgGameNotPlaying)
		}
		current := g.GetCurrentPlayer()
		if current == nil || current.Id != playerID {
			return internal.Fail(MsgNotYourTurn)
		}
		if !g.CanRollDice {
			return internal.Fail(MsgCannotRoll)
		}

		value := s.roll()
		g.DiceValue = value
		g.CanRollDice = false
		current.Action = internal.ActionRolling
		current.DiceValue = &value
		g.OpenDecisionWindow(s.now())
		s.commit(g)

		log.Debug().Str("game", g.Id).Str("player", playerID).Int("dice", value).Msg("[RollDice] dice rolled")
		res := internal.Ok("rolling dice...")
		res.DiceValue = value
		return res
	})
}

// ApplyDiceResult resolves the stored dice value once the roll animation is
// over: pass the turn, auto-select the single movable piece, or wait for a
// selection.
func (s *Store) ApplyDiceResult(gameID string) internal.Result {
	return s.withGame(gameID, func(g *internal.Game) internal.Result {
		if g.Phase != internal.PhasePlaying {
			return internal.Fail(MsgGameNotPlaying)
		}
		current := g.GetCurrentPlayer()
		if current == nil || current.Action != internal.ActionRolling {
			return internal.Fail(MsgNoDiceRolling)
		}

		movable := MovablePieces(current, g.DiceValue)
		now := s.now()
		switch len(movable) {
		case 0:
			current.ResetTurnState()
			g.CurrentPlayer = g.GetNextPlayerIndex()
			g.CanRollDice = true
			g.CanMovePiece = false
			g.SelectedPieceID = nil
			g.GetCurrentPlayer().Action = internal.ActionRollDice
			log.Debug().Str("game", g.Id).Str("player", current.Id).Int("dice", g.DiceValue).
				Msg("[ApplyDiceResult] no movable piece, passing turn")
		case 1:
			id := movable[0]
			g.SelectedPieceID = &id
			g.CanMovePiece = true
			current.Action = internal.ActionMovePiece
			log.Debug().Str("game", g.Id).Str("player", current.Id).Int("piece", id).
				Msg("[ApplyDiceResult] single movable piece auto-selected")
		default:
			g.SelectedPieceID = nil
			g.CanMovePiece = true
			current.Action = internal.ActionSelectPiece
			log.Debug().Str("game", g.Id).Str("player", current.Id).Ints("movable", movable).
				Msg("[ApplyDiceResult] waiting for piece selection")
		}
		g.OpenDecisionWindow(now)
		s.commit(g)

		var res internal.Result
		switch len(movable) {
		case 0:
			res = internal.Ok(MsgTurnPassed)
		case 1:
			res = internal.Ok(MsgPieceAutoSelected)
		default:
			res = internal.Ok(MsgAwaitSelection)
		}
		res.PlayerID = current.Id
		res.DiceValue = g.DiceValue
		return res
	})
}

func (s *Store) SelectPiece(gameID, playerID string, pieceID int) internal.Result {
	return s.withGame(gameID, func(g *internal.Game) internal.Result {
		if g.Phase != internal.PhasePlaying {
			return internal.Fail(MsgGameNotPlaying)
		}
		current := g.GetCurrentPlayer()
		if current == nil || current.Id != playerID {
			return internal.Fail(MsgNotYourTurn)
		}
		if !g.CanMovePiece {
			return internal.Fail(MsgCannotSelect)
		}
		piece := current.Piece(pieceID)
		if piece == nil {
			return internal.Fail(MsgPieceNotFound)
		}
		if !CanMovePiece(*piece, g.DiceValue) {
			return internal.Fail(MsgPieceCannotMove)
		}

		id := pieceID
		g.SelectedPieceID = &id
		current.Action = internal.ActionMovePiece
		g.OpenDecisionWindow(s.now())
		s.commit(g)

		log.Debug().Str("game", g.Id).Str("player", playerID).Int("piece", pieceID).Msg("[SelectPiece] piece selected")
		return internal.Ok("piece selected")
	})
}

// MovePiece moves the selected piece by the stored dice value, records the
// LastMove, checks for a winner and hands the turn on.
func (s *Store) MovePiece(gameID, playerID string) internal.Result {
	return s.withGame(gameID, func(g *internal.Game) internal.Result {
		if g.Phase != internal.PhasePlaying {
			return internal.Fail(MsgGameNotPlaying)
		}
		current := g.GetCurrentPlayer()
		if current == nil || current.Id != playerID {
			return internal.Fail(MsgNotYourTurn)
		}
		if !g.CanMovePiece || g.SelectedPieceID == nil {
			return internal.Fail(MsgNoPieceSelected)
		}

		pieceID := *g.SelectedPieceID
		if current.Piece(pieceID) == nil {
			panic(fmt.Sprintf("game %s: selected piece %d vanished from player %s", g.Id, pieceID, current.Id))
		}

		now := s.now()
		moves := ApplyMove(g.Players, current, pieceID, g.DiceValue)
		g.LastMove = &internal.LastMove{
			MoveID:      uuid.NewString(),
			Moves:       moves,
			PlayerColor: current.Color,
			DiceValue:   g.DiceValue,
			Timestamp:   now,
		}
		g.SelectedPieceID = nil
		g.CanMovePiece = false
		current.ResetTurnState()

		log.Debug().Str("game", g.Id).Str("player", playerID).Int("piece", pieceID).
			Int("dice", g.DiceValue).Int("captures", len(moves)-1).Msg("[MovePiece] piece moved")

		if current.HasWon() {
			g.Winner = current.Id
			g.Phase = internal.PhaseFinished
			g.CanRollDice = false
			g.CloseDecisionWindow()
			for _, p := range g.Players {
				p.ResetTurnState()
			}
			s.commit(g)
			log.Info().Str("game", g.Id).Str("winner", current.Id).Msg("[MovePiece] game finished")
			return internal.Ok(fmt.Sprintf("%s has won!", current.Name))
		}

		if g.DiceValue != internal.MaxDiceFace {
			g.CurrentPlayer = g.GetNextPlayerIndex()
		}
		g.CanRollDice = true
		g.GetCurrentPlayer().Action = internal.ActionRollDice
		g.OpenDecisionWindow(now)
		s.commit(g)

		return internal.Ok("piece moved")
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// GetGameState returns a copy of the game, nil when it does not exist.
func (s *Store) GetGameState(gameID string) *internal.Game {
	e := s.entry(gameID)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.Clone()
}

// GetAllGames returns copies of every game in creation order.
func (s *Store) GetAllGames() []*internal.Game {
	s.mu.RLock()
	entries := make([]*gameEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.games[id])
	}
	s.mu.RUnlock()

	games := make([]*internal.Game, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		games = append(games, e.game.Clone())
		e.mu.Unlock()
	}
	return games
}

// GetAvailableGames returns games that are still waiting and not full.
func (s *Store) GetAvailableGames() []*internal.Game {
	all := s.GetAllGames()
	available := make([]*internal.Game, 0, len(all))
	for _, g := range all {
		if g.Phase == internal.PhaseWaiting && !g.IsFull() {
			available = append(available, g)
		}
	}
	return available
}

func (s *Store) GameCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}

func (s *Store) Exists(gameID string) bool {
	return s.entry(gameID) != nil
}

// GetDecisionTimeLeft returns the remaining percentage of the open decision
// window. ok is false when the game is gone or no window is open.
func (s *Store) GetDecisionTimeLeft(gameID string) (percent int, ok bool) {
	e := s.entry(gameID)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.DecisionTimeLeft(s.now())
}

// UpdatePlayerActionTimes projects the decision time left onto every player
// with a pending action. It is a derived view, so the version is left alone.
func (s *Store) UpdatePlayerActionTimes(gameID string) {
	e := s.entry(gameID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	left, ok := e.game.DecisionTimeLeft(s.now())
	for _, p := range e.game.Players {
		if p.Action != internal.ActionNone && ok {
			v := left
			p.ActionTimeLeft = &v
		} else {
			p.ActionTimeLeft = nil
		}
	}
}

func (s *Store) DeleteGame(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return false
	}
	delete(s.games, gameID)
	for i, id := range s.order {
		if id == gameID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	log.Info().Str("game", gameID).Msg("[DeleteGame] game deleted")
	return true
}

func (s *Store) Now() time.Time {
	return s.now()
}
