package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal"
	"github.com/scythe504/ludo-backend/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

var (
	errStreamClosed = errors.New("stream closed")
	errSlowConsumer = errors.New("send buffer full")
)

// Message types on the game stream.
const (
	MsgTypeGameState    = "game_state"
	MsgTypeActionResult = "action_result"
	MsgTypeRollDice     = "roll_dice"
	MsgTypeSelectPiece  = "select_piece"
	MsgTypeMovePiece    = "move_piece"
)

// streamConn owns one websocket. Messages are queued on send and written by
// writePump, so a slow client never blocks the watchdog.
type streamConn struct {
	conn *websocket.Conn
	send chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newStreamConn(conn *websocket.Conn) *streamConn {
	return &streamConn{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// enqueue never blocks. A client that lets its buffer fill up is dropped.
func (c *streamConn) enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errStreamClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		c.close()
		return errSlowConsumer
	}
}

func (c *streamConn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *streamConn) write(b []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// writePump is the only writer on the connection. It flushes what is queued
// once the stream closes, then closes the socket.
func (c *streamConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			if err := c.write(b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.closed:
			for {
				select {
				case b := <-c.send:
					if err := c.write(b); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// GameStreamHandler upgrades to a websocket, pushes a game_state message on
// every change of the game and accepts turn actions from the player.
func (s *Server) GameStreamHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	gameID, playerID := vars["gameId"], vars["playerId"]

	if !s.game.Store().Exists(gameID) {
		notFound(w, time.Now(), game.MsgGameNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("game", gameID).Msg("[GameStreamHandler] upgrade failed")
		return
	}
	c := newStreamConn(conn)
	go c.writePump()

	subID, res := s.game.Subscribe(gameID, playerID, func(g *internal.Game) error {
		return c.enqueue(internal.Message[internal.GameView]{
			Type: MsgTypeGameState,
			Data: internal.NewGameView(g, playerID, s.game.Store().Now()),
		})
	})
	if !res.Success {
		_ = c.enqueue(internal.Message[internal.Result]{Type: MsgTypeActionResult, Data: res})
		c.close()
		return
	}
	log.Info().Str("game", gameID).Str("player", playerID).Str("subscription", subID).Msg("[GameStreamHandler] stream opened")

	defer func() {
		c.close()
		s.game.Unsubscribe(subID)
		log.Info().Str("game", gameID).Str("player", playerID).Msg("[GameStreamHandler] stream closed")
	}()

	s.readActions(c, gameID, playerID)
}

type selectData struct {
	PieceID int `json:"piece_id"`
}

func (s *Server) readActions(c *streamConn, gameID, playerID string) {
	conn := c.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("game", gameID).Str("player", playerID).Msg("[readActions] read error")
			}
			return
		}

		var msg internal.Message[json.RawMessage]
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Str("player", playerID).Msg("[readActions] failed to parse message")
			continue
		}

		var res internal.Result
		switch msg.Type {
		case MsgTypeRollDice:
			res = s.game.RollDice(gameID, playerID)
		case MsgTypeSelectPiece:
			var data selectData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				res = internal.Fail("piece_id is required")
				break
			}
			res = s.game.SelectPiece(gameID, playerID, data.PieceID)
		case MsgTypeMovePiece:
			res = s.game.MovePiece(gameID, playerID)
		default:
			res = internal.Fail("unknown message type")
		}

		if err := c.enqueue(internal.Message[internal.Result]{Type: MsgTypeActionResult, Data: res}); err != nil {
			log.Warn().Err(err).Str("game", gameID).Str("player", playerID).Msg("[readActions] dropping stream")
			return
		}
	}
}
