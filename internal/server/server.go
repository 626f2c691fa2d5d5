package server

import (
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scythe504/ludo-backend/internal"
	"github.com/scythe504/ludo-backend/internal/config"
	"github.com/scythe504/ludo-backend/internal/database"
	"github.com/scythe504/ludo-backend/internal/game"
)

type Server struct {
	port    int
	origins []string

	game *game.Service
	db   *database.Service // nil when the archive is disabled

	upgrader websocket.Upgrader

	// latest snapshot per HTTP subscription, fetched by polling
	pollMu sync.RWMutex
	polls  map[string]*pollBox
}

// pollBox holds the newest view pushed to one subscription.
type pollBox struct {
	mu   sync.Mutex
	view *internal.GameView
}

func (b *pollBox) store(v internal.GameView) {
	b.mu.Lock()
	b.view = &v
	b.mu.Unlock()
}

func (b *pollBox) load() (internal.GameView, bool) {
	if b == nil {
		return internal.GameView{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.view == nil {
		return internal.GameView{}, false
	}
	return *b.view, true
}

// New builds the handler side of the server. db may be nil.
func New(cfg config.Config, svc *game.Service, db *database.Service) *Server {
	s := &Server{
		port:    cfg.Port,
		origins: cfg.Origins,
		game:    svc,
		db:      db,
		polls:   make(map[string]*pollBox),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowOrigin(origin)
		},
	}
	svc.Watchdog().OnRemove(s.dropPoll)
	return s
}

func NewServer(cfg config.Config, svc *game.Service, db *database.Service) *http.Server {
	s := New(cfg, svc, db)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// dropPoll forgets the snapshot of a subscription the watchdog removed.
func (s *Server) dropPoll(subscriptionID string) {
	s.pollMu.Lock()
	delete(s.polls, subscriptionID)
	s.pollMu.Unlock()
}

func (s *Server) allowOrigin(origin string) bool {
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}
