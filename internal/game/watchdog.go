package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal"
)

// =============================================================================
// WATCHDOG
// =============================================================================

const (
	DefaultWatchdogInterval = 500 * time.Millisecond
	DefaultCleanupInterval  = 5 * time.Minute
)

// GameSource is the read side of the store the watchdog polls.
type GameSource interface {
	GetAllGames() []*internal.Game
	GetGameState(gameID string) *internal.Game
	Exists(gameID string) bool
}

// Callback receives a private snapshot of the game. Returning an error, or
// panicking, deactivates the subscription.
type Callback func(game *internal.Game) error

type Subscription struct {
	ID          string    `json:"subscription_id"`
	GameID      string    `json:"game_id"`
	PlayerID    string    `json:"player_id"`
	LastVersion int64     `json:"last_version"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`

	callback Callback
	// delivery serializes callbacks so snapshots reach the subscriber in
	// version order.
	delivery  *sync.Mutex
	delivered bool
}

type Stats struct {
	ActiveSubscriptions int  `json:"active_subscriptions"`
	TotalGames          int  `json:"total_games"`
	TotalEvents         int  `json:"total_events"`
	IsRunning           bool `json:"is_running"`
}

type CleanupReport struct {
	EventsDropped        int `json:"events_dropped"`
	GamesForgotten       int `json:"games_forgotten"`
	SubscriptionsRemoved int `json:"subscriptions_removed"`
}

type WatchdogOption func(*Watchdog)

func WithPollInterval(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithCleanupInterval(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.cleanupInterval = d
		}
	}
}

func WithEventMaxAge(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.maxAge = d
		}
	}
}

func WithWatchdogClock(now func() time.Time) WatchdogOption {
	return func(w *Watchdog) {
		if now != nil {
			w.now = now
		}
	}
}

// Watchdog detects state changes by polling game versions and pushes fresh
// snapshots to subscribers. It also keeps a bounded event history per game.
type Watchdog struct {
	mu       sync.Mutex
	source   GameSource
	subs     map[string]*Subscription
	versions map[string]int64
	events   map[string]*eventLog

	interval        time.Duration
	cleanupInterval time.Duration
	maxAge          time.Duration
	now             func() time.Time

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	onRemove []func(subscriptionID string)
}

func NewWatchdog(source GameSource, opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		source:          source,
		subs:            make(map[string]*Subscription),
		versions:        make(map[string]int64),
		events:          make(map[string]*eventLog),
		interval:        DefaultWatchdogInterval,
		cleanupInterval: DefaultCleanupInterval,
		maxAge:          DefaultEventMaxAge,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the poll and cleanup loops. Calling it twice is a no-op.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		poll := time.NewTicker(w.interval)
		cleanup := time.NewTicker(w.cleanupInterval)
		defer poll.Stop()
		defer cleanup.Stop()

		log.Info().Dur("interval", w.interval).Msg("[Watchdog] started")
		for {
			select {
			case <-poll.C:
				w.Poll()
			case <-cleanup.C:
				w.CleanupOldData()
			case <-ctx.Done():
				log.Info().Msg("[Watchdog] stopped")
				return
			}
		}
	}()
}

// OnRemove registers fn to be called with the id of every subscription the
// watchdog drops, whichever path removes it.
func (w *Watchdog) OnRemove(fn func(subscriptionID string)) {
	w.mu.Lock()
	w.onRemove = append(w.onRemove, fn)
	w.mu.Unlock()
}

// notifyRemoved must be called without w.mu held.
func (w *Watchdog) notifyRemoved(ids []string) {
	if len(ids) == 0 {
		return
	}
	w.mu.Lock()
	hooks := append([]func(string){}, w.onRemove...)
	w.mu.Unlock()
	for _, id := range ids {
		for _, fn := range hooks {
			fn(id)
		}
	}
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// Subscribe registers callback for gameID and immediately delivers the
// current snapshot when the game exists.
func (w *Watchdog) Subscribe(gameID, playerID string, callback Callback) string {
	sub := &Subscription{
		ID:        uuid.NewString(),
		GameID:    gameID,
		PlayerID:  playerID,
		Active:    true,
		CreatedAt: w.now(),
		callback:  callback,
		delivery:  &sync.Mutex{},
	}

	w.mu.Lock()
	w.subs[sub.ID] = sub
	w.mu.Unlock()

	log.Debug().Str("game", gameID).Str("player", playerID).Str("subscription", sub.ID).Msg("[Subscribe] subscription created")

	if g := w.source.GetGameState(gameID); g != nil {
		w.deliver(sub, g, false)
	}
	return sub.ID
}

func (w *Watchdog) Unsubscribe(subscriptionID string) bool {
	w.mu.Lock()
	sub, ok := w.subs[subscriptionID]
	if ok {
		sub.Active = false
		delete(w.subs, subscriptionID)
	}
	w.mu.Unlock()

	if ok {
		w.notifyRemoved([]string{subscriptionID})
	}
	return ok
}

// UnsubscribePlayer removes every subscription the player holds on the game.
func (w *Watchdog) UnsubscribePlayer(gameID, playerID string) int {
	return w.removeWhere(func(s *Subscription) bool {
		return s.GameID == gameID && s.PlayerID == playerID
	})
}

func (w *Watchdog) UnsubscribeGame(gameID string) int {
	return w.removeWhere(func(s *Subscription) bool {
		return s.GameID == gameID
	})
}

func (w *Watchdog) removeWhere(match func(*Subscription) bool) int {
	w.mu.Lock()
	removed := w.removeLocked(match)
	w.mu.Unlock()

	w.notifyRemoved(removed)
	return len(removed)
}

// removeLocked must be called with w.mu held.
func (w *Watchdog) removeLocked(match func(*Subscription) bool) []string {
	var removed []string
	for id, sub := range w.subs {
		if match(sub) {
			sub.Active = false
			delete(w.subs, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Poll compares every game's version with the last one seen and notifies the
// game's subscribers on increase.
func (w *Watchdog) Poll() {
	for _, g := range w.source.GetAllGames() {
		w.mu.Lock()
		if g.Version <= w.versions[g.Id] {
			w.mu.Unlock()
			continue
		}
		w.versions[g.Id] = g.Version
		targets := w.activeFor(g.Id)
		w.mu.Unlock()

		for _, sub := range targets {
			w.deliver(sub, g, false)
		}
	}
}

// ForceNotifyGame pushes the current snapshot to every active subscriber of
// the game even when they already saw this version. Older snapshots are
// never pushed.
func (w *Watchdog) ForceNotifyGame(gameID string) bool {
	g := w.source.GetGameState(gameID)
	if g == nil {
		return false
	}
	w.mu.Lock()
	if g.Version > w.versions[gameID] {
		w.versions[gameID] = g.Version
	}
	targets := w.activeFor(gameID)
	w.mu.Unlock()

	for _, sub := range targets {
		w.deliver(sub, g, true)
	}
	return true
}

// activeFor must be called with w.mu held.
func (w *Watchdog) activeFor(gameID string) []*Subscription {
	var out []*Subscription
	for _, sub := range w.subs {
		if sub.Active && sub.GameID == gameID {
			out = append(out, sub)
		}
	}
	return out
}

// deliver hands g to the subscriber unless it already holds a newer
// snapshot, or the same one and force is unset. The first snapshot always
// goes through.
func (w *Watchdog) deliver(sub *Subscription, g *internal.Game, force bool) {
	sub.delivery.Lock()
	defer sub.delivery.Unlock()

	w.mu.Lock()
	stale := sub.delivered && (g.Version < sub.LastVersion || (g.Version == sub.LastVersion && !force))
	active := sub.Active
	w.mu.Unlock()
	if stale || !active {
		return
	}

	err := invoke(sub.callback, g.Clone())

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		sub.Active = false
		log.Warn().Err(err).Str("game", sub.GameID).Str("subscription", sub.ID).
			Msg("[Watchdog] callback failed, subscription deactivated")
		return
	}
	sub.delivered = true
	if g.Version > sub.LastVersion {
		sub.LastVersion = g.Version
	}
}

func invoke(cb Callback, g *internal.Game) (err error) {
	if cb == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return cb(g)
}

// =============================================================================
// EVENTS
// =============================================================================

func (w *Watchdog) RecordEvent(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = w.now()
	}

	w.mu.Lock()
	l, ok := w.events[e.GameID]
	if !ok {
		l = newEventLog(MaxEventsPerGame)
		w.events[e.GameID] = l
	}
	l.push(e)
	w.mu.Unlock()

	log.Debug().Str("game", e.GameID).Str("player", e.PlayerID).Str("event", string(e.Type)).Msg("[RecordEvent] event recorded")
}

// GetGameEventHistory returns up to limit of the newest events, oldest first.
// A non-positive limit means DefaultHistoryLimit.
func (w *Watchdog) GetGameEventHistory(gameID string, limit int) []Event {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.events[gameID]
	if !ok {
		return []Event{}
	}
	return l.last(limit)
}

// CleanupOldData evicts expired events and forgets games that no longer exist.
func (w *Watchdog) CleanupOldData() CleanupReport {
	cutoff := w.now().Add(-w.maxAge)

	var report CleanupReport
	w.mu.Lock()
	for id, l := range w.events {
		report.EventsDropped += l.dropBefore(cutoff)
		if l.len() == 0 {
			delete(w.events, id)
		}
	}
	for id := range w.versions {
		if !w.source.Exists(id) {
			delete(w.versions, id)
			report.GamesForgotten++
		}
	}
	removed := w.removeLocked(func(sub *Subscription) bool {
		return !w.source.Exists(sub.GameID)
	})
	report.SubscriptionsRemoved = len(removed)
	w.mu.Unlock()

	w.notifyRemoved(removed)

	log.Debug().Int("events", report.EventsDropped).Int("games", report.GamesForgotten).
		Int("subscriptions", report.SubscriptionsRemoved).Msg("[CleanupOldData] cleanup done")
	return report
}

// CleanupInactiveSubscriptions removes subscriptions deactivated by a failing
// callback.
func (w *Watchdog) CleanupInactiveSubscriptions() int {
	return w.removeWhere(func(s *Subscription) bool {
		return !s.Active
	})
}

// =============================================================================
// QUERIES
// =============================================================================

func (w *Watchdog) GetSubscription(subscriptionID string) (Subscription, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub, ok := w.subs[subscriptionID]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

func (w *Watchdog) GetGameSubscriptions(gameID string) []Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Subscription
	for _, sub := range w.subs {
		if sub.GameID == gameID {
			out = append(out, *sub)
		}
	}
	return out
}

func (w *Watchdog) IsPlayerSubscribed(gameID, playerID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subs {
		if sub.Active && sub.GameID == gameID && sub.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (w *Watchdog) GetWatchdogStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	stats := Stats{
		TotalGames: len(w.versions),
		IsRunning:  w.running,
	}
	for _, sub := range w.subs {
		if sub.Active {
			stats.ActiveSubscriptions++
		}
	}
	for _, l := range w.events {
		stats.TotalEvents += l.len()
	}
	return stats
}
