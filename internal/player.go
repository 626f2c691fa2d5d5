package internal

type PlayerAction string

const (
	ActionNone        PlayerAction = ""
	ActionRollDice    PlayerAction = "roll_dice"
	ActionRolling     PlayerAction = "rolling"
	ActionSelectPiece PlayerAction = "select_piece"
	ActionMovePiece   PlayerAction = "move_piece"
)

type Player struct {
	Id     string                 `json:"id"`
	Name   string                 `json:"name"`
	Color  Color                  `json:"color"`
	Pieces [PiecesPerPlayer]Piece `json:"pieces"`

	// Turn state
	Action         PlayerAction `json:"action,omitempty"`
	ActionTimeLeft *int         `json:"action_time_left,omitempty"`
	DiceValue      *int         `json:"dice_value,omitempty"`
}

func NewPlayer(id, name string, color Color) *Player {
	p := &Player{
		Id:    id,
		Name:  name,
		Color: color,
	}
	for i := range p.Pieces {
		p.Pieces[i] = Piece{ID: i, Position: StartPosition()}
	}
	return p
}

func (p *Player) Piece(id int) *Piece {
	if id < 0 || id >= len(p.Pieces) {
		return nil
	}
	return &p.Pieces[id]
}

// ResetTurnState clears the per-turn fields once the player's action is done.
func (p *Player) ResetTurnState() {
	p.Action = ActionNone
	p.ActionTimeLeft = nil
	p.DiceValue = nil
}

// HasWon reports whether every piece has reached the final end path slot.
func (p *Player) HasWon() bool {
	for _, piece := range p.Pieces {
		if !piece.Finished() {
			return false
		}
	}
	return true
}

func (p *Player) Clone() *Player {
	cp := *p
	if p.ActionTimeLeft != nil {
		v := *p.ActionTimeLeft
		cp.ActionTimeLeft = &v
	}
	if p.DiceValue != nil {
		v := *p.DiceValue
		cp.DiceValue = &v
	}
	return &cp
}
