package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal"
	"github.com/scythe504/ludo-backend/internal/game"
	"github.com/scythe504/ludo-backend/internal/utils"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// Apply CORS middleware
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws/{gameId}/{playerId}", s.GameStreamHandler)

	l := r.PathPrefix("/ludo").Subrouter()
	l.HandleFunc("/create-game", s.CreateGame).Methods(http.MethodPost, http.MethodOptions)
	l.HandleFunc("/games", s.GetAvailableGames).Methods(http.MethodGet)
	l.HandleFunc("/games/all", s.GetAllGames).Methods(http.MethodGet)
	l.HandleFunc("/available-colors/{gameId}", s.GetAvailableColors).Methods(http.MethodGet)

	l.HandleFunc("/game/{gameId}", s.GetGame).Methods(http.MethodGet)
	l.HandleFunc("/game/{gameId}", s.DeleteGame).Methods(http.MethodDelete, http.MethodOptions)
	l.HandleFunc("/game/{gameId}/join", s.JoinGame).Methods(http.MethodPost, http.MethodOptions)
	l.HandleFunc("/game/{gameId}/rejoin/{playerId}", s.RejoinGame).Methods(http.MethodGet)
	l.HandleFunc("/game/{gameId}/start", s.StartGame).Methods(http.MethodPost, http.MethodOptions)
	l.HandleFunc("/game/{gameId}/players", s.GetPlayers).Methods(http.MethodGet)
	l.HandleFunc("/game/{gameId}/status", s.GetStatus).Methods(http.MethodGet)
	l.HandleFunc("/game/{gameId}/events", s.GetEvents).Methods(http.MethodGet)

	p := l.PathPrefix("/game/{gameId}/player/{playerId}").Subrouter()
	p.HandleFunc("/roll-dice", s.RollDice).Methods(http.MethodPost, http.MethodOptions)
	p.HandleFunc("/select-piece", s.SelectPiece).Methods(http.MethodPost, http.MethodOptions)
	p.HandleFunc("/move-piece", s.MovePiece).Methods(http.MethodPost, http.MethodOptions)

	l.HandleFunc("/game/{gameId}/subscribe/{playerId}", s.Subscribe).Methods(http.MethodPost, http.MethodOptions)
	l.HandleFunc("/subscription/{subscriptionId}", s.GetSubscription).Methods(http.MethodGet)
	l.HandleFunc("/subscription/{subscriptionId}", s.Unsubscribe).Methods(http.MethodDelete, http.MethodOptions)

	l.HandleFunc("/watchdog/stats", s.WatchdogStats).Methods(http.MethodGet)
	l.HandleFunc("/watchdog/cleanup", s.WatchdogCleanup).Methods(http.MethodPost, http.MethodOptions)

	return r
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case s.allowOrigin("*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && s.allowOrigin(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// If it's a websocket upgrade, skip further CORS checks
		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeResponse wraps data in the Response envelope.
func writeResponse(w http.ResponseWriter, status int, start time.Time, data any) {
	resp := internal.Response{
		StatusCode:    status,
		RespStartTime: start.UnixMilli(),
		Data:          data,
	}
	endTime := time.Now().UnixMilli()
	resp.RespEndTime = endTime
	resp.NetRespTime = endTime - resp.RespStartTime

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("[writeResponse] error encoding response")
	}
}

// writeResult maps a rule outcome onto an HTTP status.
func writeResult(w http.ResponseWriter, start time.Time, res internal.Result) {
	status := http.StatusOK
	switch {
	case res.Success:
	case res.Message == game.MsgGameNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusBadRequest
	}
	writeResponse(w, status, start, res)
}

func notFound(w http.ResponseWriter, start time.Time, msg string) {
	writeResponse(w, http.StatusNotFound, start, internal.Fail(msg))
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	health := map[string]any{
		"status":   "up",
		"watchdog": s.game.Stats(),
	}
	if s.db != nil {
		health["database"] = s.db.Health(r.Context())
	}
	writeResponse(w, http.StatusOK, start, health)
}

// =============================================================================
// LOBBY
// =============================================================================

func (s *Server) CreateGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	g := s.game.CreateGame()
	writeResponse(w, http.StatusCreated, start, map[string]string{"game_id": g.Id})
}

func (s *Server) GetAvailableGames(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeResponse(w, http.StatusOK, start, s.views(s.game.GetAvailableGames()))
}

func (s *Server) GetAllGames(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeResponse(w, http.StatusOK, start, s.views(s.game.GetAllGames()))
}

func (s *Server) views(games []*internal.Game) []internal.GameView {
	now := s.game.Store().Now()
	out := make([]internal.GameView, 0, len(games))
	for _, g := range games {
		out = append(out, internal.NewGameView(g, "", now))
	}
	return out
}

func (s *Server) GetGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	view, ok := s.game.GetGameView(mux.Vars(r)["gameId"], r.URL.Query().Get("playerId"))
	if !ok {
		notFound(w, start, game.MsgGameNotFound)
		return
	}
	writeResponse(w, http.StatusOK, start, view)
}

func (s *Server) DeleteGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !s.game.DeleteGame(mux.Vars(r)["gameId"]) {
		notFound(w, start, game.MsgGameNotFound)
		return
	}
	writeResponse(w, http.StatusOK, start, internal.Ok("game deleted"))
}

type joinRequest struct {
	Name  string         `json:"name"`
	Color internal.Color `json:"color"`
}

func (s *Server) JoinGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("[JoinGame] invalid request body")
		writeResponse(w, http.StatusBadRequest, start, internal.Fail("invalid request body"))
		return
	}
	writeResult(w, start, s.game.JoinGame(mux.Vars(r)["gameId"], req.Name, req.Color))
}

func (s *Server) RejoinGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	data, res := s.game.RejoinGame(vars["gameId"], vars["playerId"])
	if !res.Success {
		writeResult(w, start, res)
		return
	}
	writeResponse(w, http.StatusOK, start, data)
}

func (s *Server) StartGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeResult(w, start, s.game.StartGame(mux.Vars(r)["gameId"]))
}

func (s *Server) GetAvailableColors(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	colors, ok := s.game.GetAvailableColors(mux.Vars(r)["gameId"])
	if !ok {
		notFound(w, start, game.MsgGameNotFound)
		return
	}
	writeResponse(w, http.StatusOK, start, map[string]any{"available_colors": colors})
}

func (s *Server) GetPlayers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	players, ok := s.game.GetPlayers(mux.Vars(r)["gameId"])
	if !ok {
		notFound(w, start, game.MsgGameNotFound)
		return
	}
	writeResponse(w, http.StatusOK, start, players)
}

func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status, ok := s.game.GetStatus(mux.Vars(r)["gameId"], r.URL.Query().Get("playerId"))
	if !ok {
		writeResponse(w, http.StatusNotFound, start, status)
		return
	}
	writeResponse(w, http.StatusOK, start, status)
}

// =============================================================================
// TURNS
// =============================================================================

func (s *Server) RollDice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	writeResult(w, start, s.game.RollDice(vars["gameId"], vars["playerId"]))
}

type selectRequest struct {
	PieceID *int `json:"piece_id"`
}

func (s *Server) SelectPiece(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PieceID == nil {
		writeResponse(w, http.StatusBadRequest, start, internal.Fail("piece_id is required"))
		return
	}
	vars := mux.Vars(r)
	writeResult(w, start, s.game.SelectPiece(vars["gameId"], vars["playerId"], *req.PieceID))
}

func (s *Server) MovePiece(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	writeResult(w, start, s.game.MovePiece(vars["gameId"], vars["playerId"]))
}

// =============================================================================
// WATCHDOG
// =============================================================================

// Subscribe opens a polling subscription. The latest snapshot is kept per
// subscription and served by GetSubscription.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	gameID, playerID := vars["gameId"], vars["playerId"]

	box := &pollBox{}
	id, res := s.game.Subscribe(gameID, playerID, func(g *internal.Game) error {
		box.store(internal.NewGameView(g, playerID, s.game.Store().Now()))
		return nil
	})
	if !res.Success {
		writeResult(w, start, res)
		return
	}

	s.pollMu.Lock()
	s.polls[id] = box
	s.pollMu.Unlock()
	// the game may have been deleted before the box was registered
	if _, ok := s.game.Watchdog().GetSubscription(id); !ok {
		s.dropPoll(id)
	}

	writeResponse(w, http.StatusOK, start, map[string]string{"subscription_id": id})
}

func (s *Server) GetSubscription(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := mux.Vars(r)["subscriptionId"]
	sub, ok := s.game.Watchdog().GetSubscription(id)
	if !ok {
		notFound(w, start, "subscription not found")
		return
	}
	s.pollMu.RLock()
	box := s.polls[id]
	s.pollMu.RUnlock()

	data := map[string]any{"subscription": sub}
	if view, ok := box.load(); ok {
		data["game_state"] = view
	}
	writeResponse(w, http.StatusOK, start, data)
}

func (s *Server) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := mux.Vars(r)["subscriptionId"]
	if !s.game.Unsubscribe(id) {
		notFound(w, start, "subscription not found")
		return
	}
	writeResponse(w, http.StatusOK, start, internal.Ok("unsubscribed"))
}

func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := utils.ParseLimit(r.URL.Query().Get("limit"), game.DefaultHistoryLimit)
	events := s.game.EventHistory(mux.Vars(r)["gameId"], limit)
	writeResponse(w, http.StatusOK, start, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) WatchdogStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeResponse(w, http.StatusOK, start, s.game.Stats())
}

func (s *Server) WatchdogCleanup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	report := s.game.Cleanup()
	writeResponse(w, http.StatusOK, start, report)
}
