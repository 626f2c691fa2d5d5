package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/ludo-backend/internal"
	"github.com/scythe504/ludo-backend/internal/config"
	"github.com/scythe504/ludo-backend/internal/game"
)

type envelope struct {
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, origins ...string) *httptest.Server {
	t.Helper()
	srv, _ := newTestServerWithHandler(t, origins...)
	return srv
}

func newTestServerWithHandler(t *testing.T, origins ...string) (*httptest.Server, *Server) {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	store := game.NewStore(game.WithRoller(func() int { return 3 }), game.WithDecisionDuration(time.Minute))
	svc := game.NewService(store,
		game.NewTurnTimer(store, game.WithAnimationDelay(5*time.Millisecond), game.WithDecisionTick(5*time.Millisecond)),
		game.NewWatchdog(store, game.WithPollInterval(5*time.Millisecond)),
		nil)
	svc.Start(context.Background())

	handler := New(config.Config{Port: 8080, Origins: origins}, svc, nil)
	srv := httptest.NewServer(handler.RegisterRoutes())
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv, handler
}

func (s *Server) pollCount() int {
	s.pollMu.RLock()
	defer s.pollMu.RUnlock()
	return len(s.polls)
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, resp.StatusCode, env.StatusCode)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode
}

// setupGame creates a started game and returns its id plus the red and blue player ids.
func setupGame(t *testing.T, srv *httptest.Server) (string, string, string) {
	t.Helper()
	var created map[string]string
	require.Equal(t, http.StatusCreated, call(t, srv, http.MethodPost, "/ludo/create-game", nil, &created))
	gameID := created["game_id"]

	var red, blue internal.Result
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/join", joinRequest{Name: "Ann", Color: internal.ColorRed}, &red))
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/join", joinRequest{Name: "Bob", Color: internal.ColorBlue}, &blue))
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/start", nil, nil))
	return gameID, red.PlayerID, blue.PlayerID
}

func TestLobbyRoutes(t *testing.T) {
	srv := newTestServer(t)

	var created map[string]string
	require.Equal(t, http.StatusCreated, call(t, srv, http.MethodPost, "/ludo/create-game", nil, &created))
	gameID := created["game_id"]

	var games []internal.GameView
	call(t, srv, http.MethodGet, "/ludo/games", nil, &games)
	require.Len(t, games, 1)
	assert.Equal(t, gameID, games[0].GameID)

	var res internal.Result
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/start", nil, &res))
	assert.Equal(t, game.MsgNotEnoughPlayers, res.Message)

	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/join", joinRequest{Name: "Ann", Color: internal.ColorGreen}, &res))
	playerID := res.PlayerID

	var colors map[string][]internal.Color
	call(t, srv, http.MethodGet, "/ludo/available-colors/"+gameID, nil, &colors)
	assert.NotContains(t, colors["available_colors"], internal.ColorGreen)

	var rejoin internal.RejoinData
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/ludo/game/"+gameID+"/rejoin/"+playerID, nil, &rejoin))
	assert.Equal(t, internal.RejoinData{Name: "Ann", Color: internal.ColorGreen}, rejoin)

	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/ludo/game/missing", nil, nil))
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodDelete, "/ludo/game/"+gameID, nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodDelete, "/ludo/game/"+gameID, nil, nil))
}

func TestTurnRoutes(t *testing.T) {
	srv := newTestServer(t)
	gameID, red, blue := setupGame(t, srv)

	var res internal.Result
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/player/"+blue+"/roll-dice", nil, &res))
	assert.Equal(t, game.MsgNotYourTurn, res.Message)

	var view internal.GameView
	call(t, srv, http.MethodGet, "/ludo/game/"+gameID+"?playerId="+red, nil, &view)
	require.NotNil(t, view.CanRollDice)
	assert.True(t, *view.CanRollDice)

	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/player/"+red+"/roll-dice", nil, &res))
	assert.Equal(t, 3, res.DiceValue)

	// a three with every piece at home passes the turn once the dice settles
	require.Eventually(t, func() bool {
		var status internal.StatusView
		call(t, srv, http.MethodGet, "/ludo/game/"+gameID+"/status?playerId="+blue, nil, &status)
		return status.IsPlayerTurn != nil && *status.IsPlayerTurn
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/player/"+blue+"/select-piece", map[string]int{"piece_id": 0}, &res))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/player/"+blue+"/select-piece", map[string]string{}, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/player/"+blue+"/move-piece", nil, &res))
	assert.Equal(t, game.MsgNoPieceSelected, res.Message)

	var events struct {
		Events []game.Event `json:"events"`
		Count  int          `json:"count"`
	}
	call(t, srv, http.MethodGet, "/ludo/game/"+gameID+"/events?limit=2", nil, &events)
	require.Equal(t, 2, events.Count)
	assert.Equal(t, game.EventTurnPassed, events.Events[1].Type)

	var players internal.PlayersData
	call(t, srv, http.MethodGet, "/ludo/game/"+gameID+"/players", nil, &players)
	assert.Equal(t, 1, players.CurrentPlayer)
}

func TestSubscriptionPolling(t *testing.T) {
	srv := newTestServer(t)
	gameID, red, _ := setupGame(t, srv)

	var sub map[string]string
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/subscribe/"+red, nil, &sub))
	subID := sub["subscription_id"]
	require.NotEmpty(t, subID)

	var polled struct {
		Subscription game.Subscription `json:"subscription"`
		GameState    *internal.GameView `json:"game_state"`
	}
	call(t, srv, http.MethodGet, "/ludo/subscription/"+subID, nil, &polled)
	assert.True(t, polled.Subscription.Active)
	require.NotNil(t, polled.GameState)
	require.NotNil(t, polled.GameState.CanRollDice)
	assert.True(t, *polled.GameState.CanRollDice)

	call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/player/"+red+"/roll-dice", nil, nil)
	require.Eventually(t, func() bool {
		var p struct {
			GameState *internal.GameView `json:"game_state"`
		}
		call(t, srv, http.MethodGet, "/ludo/subscription/"+subID, nil, &p)
		return p.GameState != nil && p.GameState.CurrentPlayer == 1
	}, time.Second, 10*time.Millisecond)

	var stats game.Stats
	call(t, srv, http.MethodGet, "/ludo/watchdog/stats", nil, &stats)
	assert.Equal(t, 1, stats.ActiveSubscriptions)
	assert.True(t, stats.IsRunning)

	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodDelete, "/ludo/subscription/"+subID, nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/ludo/subscription/"+subID, nil, nil))
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/watchdog/cleanup", nil, nil))
}

func TestDeletingGameDropsPolledSnapshots(t *testing.T) {
	srv, handler := newTestServerWithHandler(t)
	gameID, red, blue := setupGame(t, srv)

	var sub map[string]string
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/subscribe/"+red, nil, &sub))
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/subscribe/"+blue, nil, nil))
	require.Equal(t, 2, handler.pollCount())

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodDelete, "/ludo/game/"+gameID, nil, nil))
	assert.Equal(t, 0, handler.pollCount())
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/ludo/subscription/"+sub["subscription_id"], nil, nil))
}

func TestUnsubscribeDropsPolledSnapshot(t *testing.T) {
	srv, handler := newTestServerWithHandler(t)
	gameID, red, _ := setupGame(t, srv)

	var sub map[string]string
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/ludo/game/"+gameID+"/subscribe/"+red, nil, &sub))
	require.Equal(t, 1, handler.pollCount())

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodDelete, "/ludo/subscription/"+sub["subscription_id"], nil, nil))
	assert.Equal(t, 0, handler.pollCount())
}

func TestGameStream(t *testing.T) {
	srv := newTestServer(t)
	gameID, red, _ := setupGame(t, srv)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + gameID + "/" + red
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var state internal.Message[internal.GameView]
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, MsgTypeGameState, state.Type)
	assert.Equal(t, gameID, state.Data.GameID)

	require.NoError(t, conn.WriteJSON(internal.Message[any]{Type: MsgTypeRollDice}))

	// game_state pushes and the action result may interleave
	sawResult, sawPass := false, false
	for !(sawResult && sawPass) {
		var msg internal.Message[json.RawMessage]
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case MsgTypeActionResult:
			var res internal.Result
			require.NoError(t, json.Unmarshal(msg.Data, &res))
			assert.True(t, res.Success)
			sawResult = true
		case MsgTypeGameState:
			var view internal.GameView
			require.NoError(t, json.Unmarshal(msg.Data, &view))
			if view.CurrentPlayer == 1 {
				sawPass = true
			}
		}
	}
}

func TestGameStreamUnknownGame(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/missing/p"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, "http://allowed.test")

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/ludo/create-game", nil)
	req.Header.Set("Origin", "http://allowed.test")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://allowed.test", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
