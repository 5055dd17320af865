package prefs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voxmail/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS preferences (
	user_id    TEXT PRIMARY KEY,
	language   VARCHAR(8) NOT NULL,
	tone       VARCHAR(16) NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

type Postgres struct {
	pool     *pgxpool.Pool
	defaults Defaults
}

func OpenPostgres(ctx context.Context, dsn string, defaults Defaults) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres store needs a dsn")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Postgres{pool: pool, defaults: defaults}, nil
}

func (s *Postgres) Get(ctx context.Context, id domain.UserID) (domain.Preferences, error) {
	var lang, tone string
	err := s.pool.QueryRow(ctx,
		`SELECT language, tone FROM preferences WHERE user_id = $1`, string(id),
	).Scan(&lang, &tone)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.defaults.For(id), nil
	}
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return s.defaults.fromRow(id, lang, tone), nil
}

func (s *Postgres) SetLanguage(ctx context.Context, id domain.UserID, lang domain.Language) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO preferences (user_id, language, tone) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			language = EXCLUDED.language,
			updated_at = CURRENT_TIMESTAMP`,
		string(id), string(lang), string(s.defaults.Tone))
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (s *Postgres) SetTone(ctx context.Context, id domain.UserID, tone domain.Tone) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO preferences (user_id, language, tone) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			tone = EXCLUDED.tone,
			updated_at = CURRENT_TIMESTAMP`,
		string(id), string(s.defaults.Language), string(tone))
	if err != nil {
		return fmt.Errorf("set tone: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
