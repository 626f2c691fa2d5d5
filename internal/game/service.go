package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal"
)

// =============================================================================
// SERVICE
// =============================================================================

const archiveTimeout = 5 * time.Second

// GameResult is the archived summary of a finished game.
type GameResult struct {
	GameID      string         `json:"game_id"`
	WinnerID    string         `json:"winner_id"`
	WinnerName  string         `json:"winner_name"`
	WinnerColor internal.Color `json:"winner_color"`
	Players     int            `json:"players"`
	Version     int64          `json:"version"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// Archive is an append-only sink for events and results. Nothing is ever
// read back from it.
type Archive interface {
	ArchiveEvent(ctx context.Context, e Event) error
	ArchiveResult(ctx context.Context, r GameResult) error
}

// Service is the entry point used by the transport. Turn steps go through the
// TurnTimer so decision windows get armed, and every accepted step lands in
// the watchdog's event history.
type Service struct {
	store    *Store
	timer    *TurnTimer
	watchdog *Watchdog
	archive  Archive

	mu       sync.Mutex
	archived map[string]bool
}

// NewService wires the components together. archive may be nil.
func NewService(store *Store, timer *TurnTimer, watchdog *Watchdog, archive Archive) *Service {
	s := &Service{
		store:    store,
		timer:    timer,
		watchdog: watchdog,
		archive:  archive,
		archived: make(map[string]bool),
	}
	timer.Observe(s.onTurn)
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.watchdog.Start(ctx)
}

func (s *Service) Stop() {
	s.timer.Stop()
	s.watchdog.Stop()
}

func (s *Service) Store() *Store { return s.store }
func (s *Service) Watchdog() *Watchdog { return s.watchdog }

func (s *Service) record(t EventType, gameID, playerID string, data map[string]any) {
	e := Event{Type: t, GameID: gameID, PlayerID: playerID, Data: data, Timestamp: s.store.Now()}
	s.watchdog.RecordEvent(e)
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.archive.ArchiveEvent(ctx, e); err != nil {
		log.Error().Err(err).Str("game", gameID).Str("event", string(t)).Msg("[record] failed to archive event")
	}
}

func (s *Service) onTurn(e TurnEvent) {
	switch e.Kind {
	case TurnStart:
		s.record(EventGameStarted, e.GameID, "", nil)
	case TurnRoll:
		s.record(EventDiceRolled, e.GameID, e.PlayerID, map[string]any{"dice_value": e.Result.DiceValue, "auto": e.Auto})
	case TurnApply:
		switch e.Result.Message {
		case MsgTurnPassed:
			s.record(EventTurnPassed, e.GameID, e.PlayerID, map[string]any{"dice_value": e.Result.DiceValue})
		case MsgPieceAutoSelected:
			data := map[string]any{"auto": true}
			if g := s.store.GetGameState(e.GameID); g != nil && g.SelectedPieceID != nil {
				data["piece_id"] = *g.SelectedPieceID
			}
			s.record(EventPieceSelected, e.GameID, e.PlayerID, data)
		}
	case TurnSelect:
		s.record(EventPieceSelected, e.GameID, e.PlayerID, map[string]any{"piece_id": e.PieceID, "auto": e.Auto})
	case TurnMove:
		s.afterMove(e)
	}
	if e.Auto {
		s.record(EventAutoAction, e.GameID, e.PlayerID, map[string]any{"action": string(e.Kind)})
	}
}

func (s *Service) afterMove(e TurnEvent) {
	g := s.store.GetGameState(e.GameID)
	if g == nil {
		return
	}
	data := map[string]any{"piece_id": e.PieceID, "auto": e.Auto}
	if g.LastMove != nil {
		data["dice_value"] = g.LastMove.DiceValue
		data["moves"] = g.LastMove.Moves
	}
	s.record(EventPieceMoved, e.GameID, e.PlayerID, data)

	if g.Phase != internal.PhaseFinished {
		return
	}
	s.mu.Lock()
	done := s.archived[g.Id]
	s.archived[g.Id] = true
	s.mu.Unlock()
	if done {
		return
	}

	winner, _ := g.GetPlayer(g.Winner)
	result := GameResult{GameID: g.Id, WinnerID: g.Winner, Players: len(g.Players), Version: g.Version, FinishedAt: g.LastUpdated}
	if winner != nil {
		result.WinnerName = winner.Name
		result.WinnerColor = winner.Color
	}
	s.record(EventGameFinished, g.Id, g.Winner, map[string]any{"winner_name": result.WinnerName, "winner_color": result.WinnerColor})

	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.archive.ArchiveResult(ctx, result); err != nil {
		log.Error().Err(err).Str("game", g.Id).Msg("[afterMove] failed to archive result")
	}
}

// =============================================================================
// LOBBY
// =============================================================================

func (s *Service) CreateGame() *internal.Game {
	g := s.store.CreateGame()
	s.record(EventGameCreated, g.Id, "", nil)
	return g
}

// JoinGame seats a new player under a generated id.
func (s *Service) JoinGame(gameID, name string, color internal.Color) internal.Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return internal.Fail(MsgInvalidPlayerName)
	}
	if !color.Valid() {
		return internal.Fail(MsgColorUnavailable)
	}
	playerID := uuid.NewString()
	res := s.store.JoinGame(gameID, JoinRequest{Name: name, Color: color, PlayerID: playerID})
	if res.Success {
		s.record(EventPlayerJoined, gameID, playerID, map[string]any{"name": name, "color": color})
	}
	return res
}

func (s *Service) RejoinGame(gameID, playerID string) (internal.RejoinData, internal.Result) {
	return s.store.RejoinGame(gameID, playerID)
}

func (s *Service) StartGame(gameID string) internal.Result {
	return s.timer.StartGame(gameID)
}

func (s *Service) DeleteGame(gameID string) bool {
	s.timer.Disarm(gameID)
	removed := s.watchdog.UnsubscribeGame(gameID)
	ok := s.store.DeleteGame(gameID)
	if ok {
		log.Info().Str("game", gameID).Int("subscriptions", removed).Msg("[DeleteGame] game removed")
	}
	s.mu.Lock()
	delete(s.archived, gameID)
	s.mu.Unlock()
	return ok
}

// =============================================================================
// TURNS
// =============================================================================

func (s *Service) RollDice(gameID, playerID string) internal.Result {
	return s.timer.RollDice(gameID, playerID)
}

func (s *Service) SelectPiece(gameID, playerID string, pieceID int) internal.Result {
	return s.timer.SelectPiece(gameID, playerID, pieceID)
}

func (s *Service) MovePiece(gameID, playerID string) internal.Result {
	return s.timer.MovePiece(gameID, playerID)
}

// =============================================================================
// VIEWS
// =============================================================================

func (s *Service) GetGameView(gameID, viewerID string) (internal.GameView, bool) {
	g := s.store.GetGameState(gameID)
	if g == nil {
		return internal.GameView{}, false
	}
	return internal.NewGameView(g, viewerID, s.store.Now()), true
}

func (s *Service) GetStatus(gameID, playerID string) (internal.StatusView, bool) {
	g := s.store.GetGameState(gameID)
	if g == nil {
		return internal.StatusView{Error: MsgGameNotFound}, false
	}
	status := internal.StatusView{
		GamePhase:        g.Phase,
		GameStarted:      g.GameStarted,
		CurrentPlayer:    g.CurrentPlayer,
		DiceValue:        g.DiceValue,
		Winner:           g.Winner,
		DecisionDuration: g.DecisionDuration.Milliseconds(),
	}
	if playerID == "" {
		return status, true
	}
	p, _ := g.GetPlayer(playerID)
	if p == nil {
		status.Error = MsgPlayerNotFound
		return status, true
	}
	current := g.GetCurrentPlayer()
	isTurn := current != nil && current.Id == playerID
	canRoll := isTurn && g.CanRollDice
	canMove := isTurn && g.CanMovePiece
	status.IsPlayerTurn = &isTurn
	status.CanRollDice = &canRoll
	status.CanMovePiece = &canMove
	if isTurn && g.SelectedPieceID != nil {
		id := *g.SelectedPieceID
		status.SelectedPieceID = &id
	}
	status.PlayerColor = p.Color
	status.PlayerName = p.Name
	return status, true
}

func (s *Service) GetAvailableGames() []*internal.Game {
	return s.store.GetAvailableGames()
}

func (s *Service) GetAllGames() []*internal.Game {
	return s.store.GetAllGames()
}

func (s *Service) GetAvailableColors(gameID string) ([]internal.Color, bool) {
	g := s.store.GetGameState(gameID)
	if g == nil {
		return nil, false
	}
	return g.AvailableColors, true
}

func (s *Service) GetPlayers(gameID string) (internal.PlayersData, bool) {
	g := s.store.GetGameState(gameID)
	if g == nil {
		return internal.PlayersData{}, false
	}
	return internal.PlayersData{Players: g.Players, CurrentPlayer: g.CurrentPlayer}, true
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe attaches callback to an existing game.
func (s *Service) Subscribe(gameID, playerID string, callback Callback) (string, internal.Result) {
	if !s.store.Exists(gameID) {
		return "", internal.Fail(MsgGameNotFound)
	}
	id := s.watchdog.Subscribe(gameID, playerID, callback)
	return id, internal.Ok("subscribed to game updates")
}

func (s *Service) Unsubscribe(subscriptionID string) bool {
	return s.watchdog.Unsubscribe(subscriptionID)
}

func (s *Service) EventHistory(gameID string, limit int) []Event {
	return s.watchdog.GetGameEventHistory(gameID, limit)
}

func (s *Service) Stats() Stats {
	return s.watchdog.GetWatchdogStats()
}

// Cleanup runs both watchdog cleanups on demand.
func (s *Service) Cleanup() CleanupReport {
	report := s.watchdog.CleanupOldData()
	report.SubscriptionsRemoved += s.watchdog.CleanupInactiveSubscriptions()
	return report
}
