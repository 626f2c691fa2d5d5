package game

import (
	"fmt"

	"github.com/scythe504/ludo-backend/internal"
)

// =============================================================================
// PIECE MOVEMENT
// =============================================================================

// CanMovePiece reports whether the piece can legally advance by diceValue.
func CanMovePiece(piece internal.Piece, diceValue int) bool {
	switch piece.Position.Segment {
	case internal.SegmentStart:
		return diceValue == internal.MaxDiceFace
	case internal.SegmentBoard:
		return true
	case internal.SegmentColorPath:
		return piece.Position.Index+diceValue <= internal.ColorPathSize+internal.EndPathSize
	case internal.SegmentEndPath:
		return piece.Position.Index+diceValue <= internal.EndPathSize
	}
	return false
}

// MovablePieces lists the ids of the player's pieces that can move by diceValue.
func MovablePieces(player *internal.Player, diceValue int) []int {
	ids := make([]int, 0, len(player.Pieces))
	for _, piece := range player.Pieces {
		if CanMovePiece(piece, diceValue) {
			ids = append(ids, piece.ID)
		}
	}
	return ids
}

// Destination computes where a piece of color lands after diceValue steps.
// captureCheck is true when the landing square is on the shared board.
// Callers must have checked CanMovePiece first.
func Destination(piece internal.Piece, color internal.Color, diceValue int) (to internal.Position, kind internal.MoveKind, captureCheck bool) {
	from := piece.Position
	switch from.Segment {
	case internal.SegmentStart:
		if diceValue != internal.MaxDiceFace {
			break
		}
		return internal.BoardPosition(internal.StartIndex(color)), internal.MoveStartToBoard, true

	case internal.SegmentBoard:
		travelled := internal.Distance(color, from.Index) + diceValue
		entry := internal.StepsToEntry(color)
		switch {
		case travelled <= entry:
			return internal.BoardPosition(internal.BoardIndexAt(color, travelled)), internal.MoveBoard, true
		case travelled-entry <= internal.ColorPathSize:
			return internal.ColorPathPosition(travelled - entry), internal.MoveBoardToColor, false
		default:
			// Overshot the whole color path: keep circling the ring.
			return internal.BoardPosition((from.Index + diceValue) % internal.BoardSize), internal.MoveBoard, true
		}

	case internal.SegmentColorPath:
		target := from.Index + diceValue
		if target <= internal.ColorPathSize {
			return internal.ColorPathPosition(target), internal.MoveColor, false
		}
		if target-internal.ColorPathSize <= internal.EndPathSize {
			return internal.EndPathPosition(target - internal.ColorPathSize), internal.MoveColorToEnd, false
		}

	case internal.SegmentEndPath:
		target := from.Index + diceValue
		if target <= internal.EndPathSize {
			return internal.EndPathPosition(target), internal.MoveEnd, false
		}
	}
	panic(fmt.Sprintf("illegal move: %s piece %d at %s by %d", color, piece.ID, from.Label(piece.ID), diceValue))
}

// CaptureAt sends every enemy piece standing on boardIndex back to its start
// zone and returns one captured_to_start move per victim. Safe squares never
// capture.
func CaptureAt(players []*internal.Player, mover internal.Color, boardIndex int) []internal.Move {
	if internal.IsSafe(boardIndex) {
		return nil
	}
	var captures []internal.Move
	for _, player := range players {
		if player.Color == mover {
			continue
		}
		for i := range player.Pieces {
			piece := &player.Pieces[i]
			if !piece.InBoard() || piece.Position.Index != boardIndex {
				continue
			}
			from := piece.Position
			piece.SendHome()
			move := internal.NewMove(piece.ID, player.Color, from, piece.Position, internal.MoveCapturedToStart)
			move.CapturedBy = mover
			captures = append(captures, move)
		}
	}
	return captures
}

// ApplyMove relocates the player's piece and resolves captures. The primary
// move is always first in the returned slice.
func ApplyMove(players []*internal.Player, player *internal.Player, pieceID, diceValue int) []internal.Move {
	piece := player.Piece(pieceID)
	if piece == nil {
		panic(fmt.Sprintf("player %s has no piece %d", player.Id, pieceID))
	}
	from := piece.Position
	to, kind, captureCheck := Destination(*piece, player.Color, diceValue)
	if !to.Valid() {
		panic(fmt.Sprintf("move produced invalid position %+v", to))
	}
	piece.Position = to

	moves := []internal.Move{internal.NewMove(piece.ID, player.Color, from, to, kind)}
	if captureCheck {
		moves = append(moves, CaptureAt(players, player.Color, to.Index)...)
	}
	return moves
}
