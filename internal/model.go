package internal

import (
	"slices"
	"time"
)

const (
	DefaultDecisionDuration = 30 * time.Second
)

type GamePhase string

const (
	PhaseWaiting  GamePhase = "waiting"
	PhasePlaying  GamePhase = "playing"
	PhaseFinished GamePhase = "finished"
)

type MoveKind string

const (
	MoveStartToBoard    MoveKind = "start_to_board"
	MoveBoard           MoveKind = "board_move"
	MoveBoardToColor    MoveKind = "board_to_color"
	MoveColor           MoveKind = "color_move"
	MoveColorToEnd      MoveKind = "color_to_end"
	MoveEnd             MoveKind = "end_move"
	MoveCapturedToStart MoveKind = "captured_to_start"
)

// Move is one piece relocation inside a dice resolution.
type Move struct {
	PieceID     int      `json:"piece_id"`
	PlayerColor Color    `json:"player_color"`
	From        Position `json:"from"`
	To          Position `json:"to"`
	FromLabel   string   `json:"from_position"`
	ToLabel     string   `json:"to_position"`
	Kind        MoveKind `json:"move_type"`
	CapturedBy  Color    `json:"captured_by,omitempty"`
}

func NewMove(pieceID int, color Color, from, to Position, kind MoveKind) Move {
	return Move{
		PieceID:     pieceID,
		PlayerColor: color,
		From:        from,
		To:          to,
		FromLabel:   from.Label(pieceID),
		ToLabel:     to.Label(pieceID),
		Kind:        kind,
	}
}

// LastMove records every relocation one dice value produced: the primary
// move first, then any captures. Nothing in the rules engine reads it back.
type LastMove struct {
	MoveID      string    `json:"move_id"`
	Moves       []Move    `json:"moves"`
	PlayerColor Color     `json:"player_color"`
	DiceValue   int       `json:"dice_value"`
	Timestamp   time.Time `json:"timestamp"`
}

type Game struct {
	Id      string    `json:"game_id"`
	Players []*Player `json:"players"`

	// Turn State
	CurrentPlayer   int       `json:"current_player"`
	DiceValue       int       `json:"dice_value"`
	Phase           GamePhase `json:"game_phase"`
	Winner          string    `json:"winner,omitempty"`
	GameStarted     bool      `json:"game_started"`
	AvailableColors []Color   `json:"available_colors"`
	CanRollDice     bool      `json:"can_roll_dice"`
	CanMovePiece    bool      `json:"can_move_piece"`
	SelectedPieceID *int      `json:"selected_piece_id,omitempty"`

	// Decision Window
	DecisionStartTime *time.Time    `json:"decision_start_time,omitempty"`
	DecisionDuration  time.Duration `json:"decision_duration"`

	LastMove    *LastMove `json:"last_move,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	Version     int64     `json:"version"`
}

func NewGame(id string, decisionDuration time.Duration, now time.Time) *Game {
	if decisionDuration <= 0 {
		decisionDuration = DefaultDecisionDuration
	}
	return &Game{
		Id:               id,
		Players:          make([]*Player, 0, MaxPlayersPerGame),
		Phase:            PhaseWaiting,
		AvailableColors:  slices.Clone(Colors),
		DecisionDuration: decisionDuration,
		LastUpdated:      now,
		Version:          1,
	}
}

// Result is what every store operation hands back. Rule violations are
// reported here, never as errors.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	DiceValue int    `json:"dice_value,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
}

func Ok(message string) Result {
	return Result{Success: true, Message: message}
}

func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

type Response struct {
	StatusCode    int   `json:"status_code"`
	RespStartTime int64 `json:"resp_time_start_ms"`
	RespEndTime   int64 `json:"resp_time_end_ms"`
	NetRespTime   int64 `json:"net_resp_time_ms"`
	Data          any   `json:"data"`
}
