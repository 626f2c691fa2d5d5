package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal"
	"github.com/scythe504/ludo-backend/internal/utils"
)

// =============================================================================
// TIMER MANAGEMENT
// =============================================================================

const (
	DefaultAnimationDelay = 2 * time.Second
	DefaultDecisionTick   = 500 * time.Millisecond
)

type TurnKind string

const (
	TurnStart  TurnKind = "start"
	TurnRoll   TurnKind = "roll"
	TurnApply  TurnKind = "apply"
	TurnSelect TurnKind = "select"
	TurnMove   TurnKind = "move"
)

// TurnEvent describes one successful turn step driven through the TurnTimer.
// Auto is set when the step was taken on the player's behalf.
type TurnEvent struct {
	GameID   string
	PlayerID string
	Kind     TurnKind
	Auto     bool
	PieceID  int
	Result   internal.Result
}

type TimerOption func(*TurnTimer)

func WithAnimationDelay(d time.Duration) TimerOption {
	return func(t *TurnTimer) {
		if d >= 0 {
			t.animationDelay = d
		}
	}
}

func WithDecisionTick(d time.Duration) TimerOption {
	return func(t *TurnTimer) {
		if d > 0 {
			t.tick = d
		}
	}
}

type decisionTimer struct {
	playerID string
	ctx      context.Context
	cancel   context.CancelFunc
}

// TurnTimer drives turns forward in time. After a roll it applies the dice
// once the animation delay is over, and while a decision window is open it
// watches the clock and acts for the player when the window runs out. It only
// touches game state through the Store.
type TurnTimer struct {
	store          *Store
	animationDelay time.Duration
	tick           time.Duration

	mu       sync.Mutex
	timers   map[string]*decisionTimer
	observer func(TurnEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnTimer(store *Store, opts ...TimerOption) *TurnTimer {
	ctx, cancel := context.WithCancel(context.Background())
	t := &TurnTimer{
		store:          store,
		animationDelay: DefaultAnimationDelay,
		tick:           DefaultDecisionTick,
		timers:         make(map[string]*decisionTimer),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe registers fn to receive every successful turn step.
func (t *TurnTimer) Observe(fn func(TurnEvent)) {
	t.mu.Lock()
	t.observer = fn
	t.mu.Unlock()
}

func (t *TurnTimer) emit(e TurnEvent) {
	t.mu.Lock()
	fn := t.observer
	t.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

// Stop cancels every pending timer and waits for the goroutines to exit.
func (t *TurnTimer) Stop() {
	t.cancel()
	t.mu.Lock()
	for id, dt := range t.timers {
		dt.cancel()
		delete(t.timers, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// =============================================================================
// TURN STEPS
// =============================================================================

func (t *TurnTimer) StartGame(gameID string) internal.Result {
	res := t.store.StartGame(gameID)
	if !res.Success {
		return res
	}
	t.emit(TurnEvent{GameID: gameID, Kind: TurnStart, PieceID: -1, Result: res})
	t.Arm(gameID)
	return res
}

func (t *TurnTimer) RollDice(gameID, playerID string) internal.Result {
	return t.roll(gameID, playerID, false)
}

func (t *TurnTimer) SelectPiece(gameID, playerID string, pieceID int) internal.Result {
	return t.selectPiece(gameID, playerID, pieceID, false)
}

func (t *TurnTimer) MovePiece(gameID, playerID string) internal.Result {
	return t.move(gameID, playerID, false)
}

func (t *TurnTimer) roll(gameID, playerID string, auto bool) internal.Result {
	res := t.store.RollDice(gameID, playerID)
	if !res.Success {
		return res
	}
	t.emit(TurnEvent{GameID: gameID, PlayerID: playerID, Kind: TurnRoll, Auto: auto, PieceID: -1, Result: res})
	t.scheduleApply(gameID)
	t.Arm(gameID)
	return res
}

func (t *TurnTimer) selectPiece(gameID, playerID string, pieceID int, auto bool) internal.Result {
	res := t.store.SelectPiece(gameID, playerID, pieceID)
	if !res.Success {
		return res
	}
	t.emit(TurnEvent{GameID: gameID, PlayerID: playerID, Kind: TurnSelect, Auto: auto, PieceID: pieceID, Result: res})
	t.Arm(gameID)
	return res
}

func (t *TurnTimer) move(gameID, playerID string, auto bool) internal.Result {
	pieceID := -1
	if g := t.store.GetGameState(gameID); g != nil && g.SelectedPieceID != nil {
		pieceID = *g.SelectedPieceID
	}
	res := t.store.MovePiece(gameID, playerID)
	if !res.Success {
		return res
	}
	t.emit(TurnEvent{GameID: gameID, PlayerID: playerID, Kind: TurnMove, Auto: auto, PieceID: pieceID, Result: res})
	t.Arm(gameID)
	return res
}

func (t *TurnTimer) apply(gameID string, auto bool) internal.Result {
	res := t.store.ApplyDiceResult(gameID)
	if !res.Success {
		return res
	}
	t.emit(TurnEvent{GameID: gameID, PlayerID: res.PlayerID, Kind: TurnApply, Auto: auto, PieceID: -1, Result: res})
	t.Arm(gameID)
	return res
}

// scheduleApply resolves the dice once the roll animation is over. It is not
// cancelled by later turn steps: the store rejects the apply when the player
// is no longer rolling.
func (t *TurnTimer) scheduleApply(gameID string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		timer := time.NewTimer(t.animationDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-t.ctx.Done():
			return
		}
		if res := t.apply(gameID, false); !res.Success {
			log.Debug().Str("game", gameID).Str("reason", res.Message).Msg("[scheduleApply] dice already applied")
		}
	}()
}

// =============================================================================
// DECISION WINDOW
// =============================================================================

// Arm (re)starts the decision watcher for whoever holds the turn. It disarms
// instead when the game is gone, not playing, or has no open window.
func (t *TurnTimer) Arm(gameID string) {
	g := t.store.GetGameState(gameID)
	if g == nil || g.Phase != internal.PhasePlaying || g.DecisionStartTime == nil {
		t.Disarm(gameID)
		return
	}
	current := g.GetCurrentPlayer()
	if current == nil {
		t.Disarm(gameID)
		return
	}

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	if prev, ok := t.timers[gameID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(t.ctx)
	dt := &decisionTimer{playerID: current.Id, ctx: ctx, cancel: cancel}
	t.timers[gameID] = dt
	t.wg.Add(1)
	t.mu.Unlock()

	log.Debug().Str("game", gameID).Str("player", current.Id).Str("action", string(current.Action)).
		Msg("[Arm] decision timer armed")
	go t.watchDecision(gameID, dt)
}

func (t *TurnTimer) Disarm(gameID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dt, ok := t.timers[gameID]; ok {
		dt.cancel()
		delete(t.timers, gameID)
	}
}

// Armed reports whether a decision watcher is running for the game.
func (t *TurnTimer) Armed(gameID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[gameID]
	return ok
}

func (t *TurnTimer) release(gameID string, dt *decisionTimer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timers[gameID] == dt {
		delete(t.timers, gameID)
	}
	dt.cancel()
}

func (t *TurnTimer) watchDecision(gameID string, dt *decisionTimer) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-dt.ctx.Done():
			return
		case <-ticker.C:
		}

		g := t.store.GetGameState(gameID)
		if g == nil || g.Phase != internal.PhasePlaying {
			t.release(gameID, dt)
			return
		}
		if current := g.GetCurrentPlayer(); current == nil || current.Id != dt.playerID {
			t.release(gameID, dt)
			return
		}

		t.store.UpdatePlayerActionTimes(gameID)
		left, ok := t.store.GetDecisionTimeLeft(gameID)
		if !ok {
			t.release(gameID, dt)
			return
		}
		if left > 0 {
			continue
		}

		// The window ran out. Only the registered watcher may act.
		t.mu.Lock()
		owner := t.timers[gameID] == dt && dt.ctx.Err() == nil
		if owner {
			delete(t.timers, gameID)
		}
		t.mu.Unlock()
		dt.cancel()
		if owner {
			t.autoAct(gameID, dt.playerID)
		}
		return
	}
}

// autoAct performs the pending action for a player who let the decision
// window expire.
func (t *TurnTimer) autoAct(gameID, playerID string) {
	g := t.store.GetGameState(gameID)
	if g == nil {
		return
	}
	current := g.GetCurrentPlayer()
	if current == nil || current.Id != playerID {
		return
	}

	log.Info().Str("game", gameID).Str("player", playerID).Str("action", string(current.Action)).
		Msg("[autoAct] decision window expired, acting for player")

	var res internal.Result
	switch current.Action {
	case internal.ActionRolling:
		res = t.apply(gameID, true)
	case internal.ActionRollDice:
		res = t.roll(gameID, playerID, true)
	case internal.ActionSelectPiece:
		pieceID, ok := utils.PickRandom(MovablePieces(current, g.DiceValue))
		if !ok {
			return
		}
		res = t.selectPiece(gameID, playerID, pieceID, true)
	case internal.ActionMovePiece:
		res = t.move(gameID, playerID, true)
	default:
		return
	}
	if !res.Success {
		log.Warn().Str("game", gameID).Str("player", playerID).Str("reason", res.Message).
			Msg("[autoAct] automatic action rejected")
	}
}
