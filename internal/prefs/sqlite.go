package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"voxmail/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS preferences (
	user_id    TEXT PRIMARY KEY,
	language   TEXT NOT NULL,
	tone       TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

type SQLite struct {
	db       *sql.DB
	defaults Defaults
}

func OpenSQLite(ctx context.Context, path string, defaults Defaults) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite store needs a file path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// one writer keeps upserts serialized
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, defaults: defaults}, nil
}

func (s *SQLite) Get(ctx context.Context, id domain.UserID) (domain.Preferences, error) {
	var lang, tone string
	err := s.db.QueryRowContext(ctx,
		`SELECT language, tone FROM preferences WHERE user_id = ?`, string(id),
	).Scan(&lang, &tone)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaults.For(id), nil
	}
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return s.defaults.fromRow(id, lang, tone), nil
}

func (s *SQLite) SetLanguage(ctx context.Context, id domain.UserID, lang domain.Language) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, language, tone) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			language = excluded.language,
			updated_at = CURRENT_TIMESTAMP`,
		string(id), string(lang), string(s.defaults.Tone))
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (s *SQLite) SetTone(ctx context.Context, id domain.UserID, tone domain.Tone) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, language, tone) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			tone = excluded.tone,
			updated_at = CURRENT_TIMESTAMP`,
		string(id), string(s.defaults.Language), string(tone))
	if err != nil {
		return fmt.Errorf("set tone: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
