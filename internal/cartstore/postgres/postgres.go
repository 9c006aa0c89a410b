// Package postgres is the durable cartstore backend. A single table keyed by
// operator holds the serialized cart lines as JSON; the schema is created on
// startup because the table is terminal-local, not part of the remote API's
// database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"petpos/terminal/internal/cart"
	"petpos/terminal/internal/cartstore"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS terminal_carts (
			operator_key TEXT PRIMARY KEY,
			payload      JSONB NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, key string) ([]cart.SavedLine, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM terminal_carts WHERE operator_key = $1
	`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cartstore.ErrNotFound
		}
		return nil, err
	}

	var lines []cart.SavedLine
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) Save(ctx context.Context, key string, lines []cart.SavedLine) error {
	payload, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO terminal_carts (operator_key, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (operator_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, key, payload)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM terminal_carts WHERE operator_key = $1
	`, key)
	return err
}
