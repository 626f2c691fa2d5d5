package game

import (
	"time"
)

type EventType string

const (
	EventGameCreated   EventType = "game_created"
	EventPlayerJoined  EventType = "player_joined"
	EventPlayerReady   EventType = "player_ready" // reserved, never emitted
	EventGameStarted   EventType = "game_started"
	EventDiceRolled    EventType = "dice_rolled"
	EventPieceSelected EventType = "piece_selected"
	EventPieceMoved    EventType = "piece_moved"
	EventGameFinished  EventType = "game_finished"
	EventTurnPassed    EventType = "turn_passed"
	EventAutoAction    EventType = "auto_action"
)

const (
	MaxEventsPerGame    = 100
	DefaultHistoryLimit = 50
	DefaultEventMaxAge  = time.Hour
)

type Event struct {
	Type      EventType      `json:"type"`
	GameID    string         `json:"game_id"`
	PlayerID  string         `json:"player_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// eventLog is a fixed capacity ring buffer. Once full, the oldest event is
// overwritten.
type eventLog struct {
	buf   []Event
	start int
	size  int
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{buf: make([]Event, capacity)}
}

func (l *eventLog) push(e Event) {
	if len(l.buf) == 0 {
		return
	}
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = e
		l.size++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// last returns up to n of the newest events, oldest first.
func (l *eventLog) last(n int) []Event {
	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Event, 0, n)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

// dropBefore evicts events older than cutoff. Events are appended in time
// order so only the head needs checking.
func (l *eventLog) dropBefore(cutoff time.Time) int {
	dropped := 0
	for l.size > 0 && l.buf[l.start].Timestamp.Before(cutoff) {
		l.buf[l.start] = Event{}
		l.start = (l.start + 1) % len(l.buf)
		l.size--
		dropped++
	}
	return dropped
}

func (l *eventLog) len() int {
	return l.size
}
