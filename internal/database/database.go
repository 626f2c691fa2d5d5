package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/scythe504/ludo-backend/internal/game"
)

// ErrArchiveDisabled is returned by New when no connection string is set.
var ErrArchiveDisabled = errors.New("database: archive disabled")

const schema = `
CREATE TABLE IF NOT EXISTS game_events (
	id         BIGSERIAL PRIMARY KEY,
	game_id    TEXT        NOT NULL,
	player_id  TEXT        NOT NULL DEFAULT '',
	event_type TEXT        NOT NULL,
	data       JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS game_events_game_id_idx ON game_events (game_id);

CREATE TABLE IF NOT EXISTS game_results (
	game_id      TEXT PRIMARY KEY,
	winner_id    TEXT        NOT NULL,
	winner_name  TEXT        NOT NULL,
	winner_color TEXT        NOT NULL,
	players      INT         NOT NULL,
	version      BIGINT      NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
);`

// Service is the write-only archive of game events and results.
type Service struct {
	pool *pgxpool.Pool
}

var _ game.Archive = (*Service)(nil)

// New connects to url and makes sure the archive tables exist.
func New(ctx context.Context, url string) (*Service, error) {
	if url == "" {
		return nil, ErrArchiveDisabled
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	s := &Service{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Msg("[database] archive connected")
	return s, nil
}

func (s *Service) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

func (s *Service) ArchiveEvent(ctx context.Context, e game.Event) error {
	var data []byte
	if len(e.Data) > 0 {
		var err error
		if data, err = json.Marshal(e.Data); err != nil {
			return fmt.Errorf("database: encode event data: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO game_events (game_id, player_id, event_type, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.GameID, e.PlayerID, string(e.Type), data, e.Timestamp)
	if err != nil {
		return fmt.Errorf("database: insert event: %w", err)
	}
	return nil
}

// ArchiveResult stores the outcome of a finished game. A second result for
// the same game is ignored.
func (s *Service) ArchiveResult(ctx context.Context, r game.GameResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO game_results (game_id, winner_id, winner_name, winner_color, players, version, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (game_id) DO NOTHING`,
		r.GameID, r.WinnerID, r.WinnerName, string(r.WinnerColor), r.Players, r.Version, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("database: insert result: %w", err)
	}
	return nil
}

// EventCount returns how many events were archived for a game.
func (s *Service) EventCount(ctx context.Context, gameID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_events WHERE game_id = $1`, gameID).Scan(&n); err != nil {
		return 0, fmt.Errorf("database: count events: %w", err)
	}
	return n, nil
}

// Winner returns the archived winner id of a game.
func (s *Service) Winner(ctx context.Context, gameID string) (string, error) {
	var winner string
	if err := s.pool.QueryRow(ctx, `SELECT winner_id FROM game_results WHERE game_id = $1`, gameID).Scan(&winner); err != nil {
		return "", fmt.Errorf("database: read result: %w", err)
	}
	return winner, nil
}

// Health returns a map of health status information.
func (s *Service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Error().Err(err).Msg("[database] health check failed")
		return stats
	}

	ps := s.pool.Stat()
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["open_connections"] = strconv.Itoa(int(ps.TotalConns()))
	stats["in_use"] = strconv.Itoa(int(ps.AcquiredConns()))
	stats["idle"] = strconv.Itoa(int(ps.IdleConns()))
	stats["max_connections"] = strconv.Itoa(int(ps.MaxConns()))
	return stats
}

func (s *Service) Close() {
	log.Info().Msg("[database] disconnecting archive")
	s.pool.Close()
}
