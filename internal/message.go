package internal

import "time"

type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// GameView is the snapshot handed to clients. Turn gated fields are only
// filled for the viewer whose turn it is.
type GameView struct {
	GameID           string    `json:"game_id"`
	Players          []*Player `json:"players"`
	CurrentPlayer    int       `json:"current_player"`
	DiceValue        int       `json:"dice_value"`
	GamePhase        GamePhase `json:"game_phase"`
	Winner           string    `json:"winner,omitempty"`
	GameStarted      bool      `json:"game_started"`
	AvailableColors  []Color   `json:"available_colors"`
	DecisionDuration int64     `json:"decision_duration_ms"`
	DecisionTimeLeft *int      `json:"decision_time_left,omitempty"`
	LastMove         *LastMove `json:"last_move,omitempty"`
	LastUpdated      time.Time `json:"last_updated"`
	Version          int64     `json:"version"`

	CanRollDice     *bool `json:"can_roll_dice,omitempty"`
	CanMovePiece    *bool `json:"can_move_piece,omitempty"`
	SelectedPieceID *int  `json:"selected_piece_id,omitempty"`
}

// NewGameView builds the public snapshot. An empty viewerID yields the basic
// view without turn flags.
func NewGameView(g *Game, viewerID string, now time.Time) GameView {
	view := GameView{
		GameID:           g.Id,
		Players:          g.Players,
		CurrentPlayer:    g.CurrentPlayer,
		DiceValue:        g.DiceValue,
		GamePhase:        g.Phase,
		Winner:           g.Winner,
		GameStarted:      g.GameStarted,
		AvailableColors:  g.AvailableColors,
		DecisionDuration: g.DecisionDuration.Milliseconds(),
		LastMove:         g.LastMove,
		LastUpdated:      g.LastUpdated,
		Version:          g.Version,
	}
	if left, ok := g.DecisionTimeLeft(now); ok {
		view.DecisionTimeLeft = &left
	}
	if viewerID == "" {
		return view
	}

	isTurn := false
	if current := g.GetCurrentPlayer(); current != nil && current.Id == viewerID {
		isTurn = true
	}
	canRoll := isTurn && g.CanRollDice
	canMove := isTurn && g.CanMovePiece
	view.CanRollDice = &canRoll
	view.CanMovePiece = &canMove
	if isTurn && g.SelectedPieceID != nil {
		id := *g.SelectedPieceID
		view.SelectedPieceID = &id
	}
	return view
}

type StatusView struct {
	GamePhase        GamePhase `json:"game_phase"`
	GameStarted      bool      `json:"game_started"`
	CurrentPlayer    int       `json:"current_player"`
	DiceValue        int       `json:"dice_value"`
	Winner           string    `json:"winner,omitempty"`
	DecisionDuration int64     `json:"decision_duration_ms,omitempty"`

	IsPlayerTurn    *bool  `json:"is_player_turn,omitempty"`
	CanRollDice     *bool  `json:"can_roll_dice,omitempty"`
	CanMovePiece    *bool  `json:"can_move_piece,omitempty"`
	SelectedPieceID *int   `json:"selected_piece_id,omitempty"`
	PlayerColor     Color  `json:"player_color,omitempty"`
	PlayerName      string `json:"player_name,omitempty"`
	Error           string `json:"error,omitempty"`
}

type RejoinData struct {
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

type PlayersData struct {
	Players       []*Player `json:"players"`
	CurrentPlayer int       `json:"current_player"`
}
