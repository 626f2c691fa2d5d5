package internal

// =============================================================================
// BOARD TOPOLOGY
// =============================================================================

const (
	BoardSize         = 52
	ColorPathSize     = 5
	EndPathSize       = 4
	PiecesPerPlayer   = 4
	MaxPlayersPerGame = 4
	MinPlayersToStart = 2
	MaxDiceFace       = 6
)

type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
)

// Colors is the join order offered to a fresh game.
var Colors = []Color{ColorRed, ColorBlue, ColorYellow, ColorGreen}

// Board index where a piece lands when it leaves the start zone.
var startBoardPositions = map[Color]int{
	ColorRed:    1,
	ColorBlue:   14,
	ColorYellow: 27,
	ColorGreen:  40,
}

// Last board index a color touches before peeling off into its color path.
var colorPathEntryPositions = map[Color]int{
	ColorRed:    51,
	ColorBlue:   12,
	ColorYellow: 25,
	ColorGreen:  38,
}

// Start squares plus one star every 13 squares, 8 past each start.
var safePositions = map[int]struct{}{
	1: {}, 14: {}, 27: {}, 40: {},
	9: {}, 22: {}, 35: {}, 48: {},
}

func (c Color) Valid() bool {
	_, ok := startBoardPositions[c]
	return ok
}

func StartIndex(c Color) int {
	return startBoardPositions[c]
}

func EntryIndex(c Color) int {
	return colorPathEntryPositions[c]
}

// IsSafe reports whether captures are disallowed on the board index.
func IsSafe(boardIndex int) bool {
	_, ok := safePositions[boardIndex]
	return ok
}

// SafeSquares returns the safe board indices in ascending order.
func SafeSquares() []int {
	return []int{1, 9, 14, 22, 27, 35, 40, 48}
}

// Distance is how many squares a piece of color c has travelled from its
// start index to reach boardIndex.
func Distance(c Color, boardIndex int) int {
	return ((boardIndex-StartIndex(c))%BoardSize + BoardSize) % BoardSize
}

// StepsToEntry is the distance from a color's start index to its entry index.
func StepsToEntry(c Color) int {
	return Distance(c, EntryIndex(c))
}

// BoardIndexAt converts a travelled distance back into an absolute board index.
func BoardIndexAt(c Color, distance int) int {
	return (StartIndex(c) + distance) % BoardSize
}
