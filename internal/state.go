package internal

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Methods (Game Struct)
func (g *Game) GetPlayerByIndex(index int) *Player {
	if index < 0 || index >= len(g.Players) {
		return nil
	}
	return g.Players[index]
}

func (g *Game) GetCurrentPlayer() *Player {
	return g.GetPlayerByIndex(g.CurrentPlayer)
}

func (g *Game) GetPlayer(playerID string) (*Player, int) {
	for i, p := range g.Players {
		if p.Id == playerID {
			return p, i
		}
	}
	return nil, -1
}

func (g *Game) GetNextPlayerIndex() int {
	if len(g.Players) == 0 {
		return 0
	}
	return (g.CurrentPlayer + 1) % len(g.Players)
}

func (g *Game) IsFull() bool {
	return len(g.Players) >= MaxPlayersPerGame
}

func (g *Game) CanStartGame() bool {
	return g.Phase == PhaseWaiting && len(g.Players) >= MinPlayersToStart
}

func (g *Game) IsColorAvailable(c Color) bool {
	return slices.Contains(g.AvailableColors, c)
}

func (g *Game) TakeColor(c Color) {
	g.AvailableColors = slices.DeleteFunc(g.AvailableColors, func(a Color) bool {
		return a == c
	})
}

// OpenDecisionWindow restarts the decision clock.
func (g *Game) OpenDecisionWindow(now time.Time) {
	t := now
	g.DecisionStartTime = &t
}

func (g *Game) CloseDecisionWindow() {
	g.DecisionStartTime = nil
}

// DecisionTimeLeft returns the remaining share of the decision window as a
// rounded percentage clamped at 0. ok is false when no window is open.
func (g *Game) DecisionTimeLeft(now time.Time) (percent int, ok bool) {
	if g.DecisionStartTime == nil || g.DecisionDuration <= 0 {
		return 0, false
	}
	remaining := max(g.DecisionDuration-now.Sub(*g.DecisionStartTime), 0)
	return int(math.Round(float64(remaining) / float64(g.DecisionDuration) * 100)), true
}

// Touch records an accepted mutation. A version that fails to move forward
// means two writers raced on the same game, which the store's locking rules out.
func (g *Game) Touch(now time.Time) {
	prev := g.Version
	g.Version++
	if g.Version <= prev {
		panic(fmt.Sprintf("game %s: version did not increase (%d -> %d)", g.Id, prev, g.Version))
	}
	if now.After(g.LastUpdated) {
		g.LastUpdated = now
	}
}

// Clone returns a deep copy that can leave the store's lock.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Players = make([]*Player, len(g.Players))
	for i, p := range g.Players {
		cp.Players[i] = p.Clone()
	}
	cp.AvailableColors = slices.Clone(g.AvailableColors)
	if g.SelectedPieceID != nil {
		v := *g.SelectedPieceID
		cp.SelectedPieceID = &v
	}
	if g.DecisionStartTime != nil {
		t := *g.DecisionStartTime
		cp.DecisionStartTime = &t
	}
	if g.LastMove != nil {
		lm := *g.LastMove
		lm.Moves = slices.Clone(g.LastMove.Moves)
		cp.LastMove = &lm
	}
	return &cp
}
