package internal

import (
	"encoding/json"
	"fmt"
)

type Segment int

const (
	SegmentStart Segment = iota
	SegmentBoard
	SegmentColorPath
	SegmentEndPath
)

func (s Segment) String() string {
	switch s {
	case SegmentStart:
		return "start"
	case SegmentBoard:
		return "board"
	case SegmentColorPath:
		return "color_path"
	case SegmentEndPath:
		return "end_path"
	default:
		return fmt.Sprintf("segment(%d)", int(s))
	}
}

func (s Segment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Segment) UnmarshalText(b []byte) error {
	switch string(b) {
	case "start":
		*s = SegmentStart
	case "board":
		*s = SegmentBoard
	case "color_path":
		*s = SegmentColorPath
	case "end_path":
		*s = SegmentEndPath
	default:
		return fmt.Errorf("unknown segment %q", b)
	}
	return nil
}

// Position locates a piece. Index is the absolute board index (0-51) on the
// board, 1-5 on the color path, 1-4 on the end path and 0 in the start zone.
type Position struct {
	Segment Segment `json:"segment"`
	Index   int     `json:"index"`
}

func StartPosition() Position { return Position{Segment: SegmentStart} }
func BoardPosition(i int) Position { return Position{Segment: SegmentBoard, Index: i} }
func ColorPathPosition(i int) Position { return Position{Segment: SegmentColorPath, Index: i} }
func EndPathPosition(i int) Position { return Position{Segment: SegmentEndPath, Index: i} }

// Valid checks the index range of the segment.
func (p Position) Valid() bool {
	switch p.Segment {
	case SegmentStart:
		return p.Index == 0
	case SegmentBoard:
		return p.Index >= 0 && p.Index < BoardSize
	case SegmentColorPath:
		return p.Index >= 1 && p.Index <= ColorPathSize
	case SegmentEndPath:
		return p.Index >= 1 && p.Index <= EndPathSize
	}
	return false
}

// Label renders the compact tag clients use for board squares (p7, cp3, ep1, sp2).
func (p Position) Label(pieceID int) string {
	switch p.Segment {
	case SegmentBoard:
		return fmt.Sprintf("p%d", p.Index)
	case SegmentColorPath:
		return fmt.Sprintf("cp%d", p.Index)
	case SegmentEndPath:
		return fmt.Sprintf("ep%d", p.Index)
	default:
		return fmt.Sprintf("sp%d", pieceID+1)
	}
}

type Piece struct {
	ID       int      `json:"id"`
	Position Position `json:"position"`
}

func (p Piece) InStartZone() bool { return p.Position.Segment == SegmentStart }
func (p Piece) InBoard() bool { return p.Position.Segment == SegmentBoard }
func (p Piece) InColorPath() bool { return p.Position.Segment == SegmentColorPath }
func (p Piece) InEndPath() bool { return p.Position.Segment == SegmentEndPath }

// Finished reports whether the piece sits on the last end path slot.
func (p Piece) Finished() bool {
	return p.InEndPath() && p.Position.Index == EndPathSize
}

// SendHome resets the piece to its start zone slot.
func (p *Piece) SendHome() {
	p.Position = StartPosition()
}

// MarshalJSON adds the segment flags and label the rendering client reads.
func (p Piece) MarshalJSON() ([]byte, error) {
	type pieceJSON struct {
		ID            int      `json:"id"`
		Position      Position `json:"position"`
		Label         string   `json:"label"`
		IsInStartZone bool     `json:"is_in_start_zone"`
		IsInBoard     bool     `json:"is_in_board"`
		IsInColorPath bool     `json:"is_in_color_path"`
		IsInEndPath   bool     `json:"is_in_end_path"`
	}
	return json.Marshal(pieceJSON{
		ID:            p.ID,
		Position:      p.Position,
		Label:         p.Position.Label(p.ID),
		IsInStartZone: p.InStartZone(),
		IsInBoard:     p.InBoard(),
		IsInColorPath: p.InColorPath(),
		IsInEndPath:   p.InEndPath(),
	})
}

func (p *Piece) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       int      `json:"id"`
		Position Position `json:"position"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.ID = raw.ID
	p.Position = raw.Position
	return nil
}
