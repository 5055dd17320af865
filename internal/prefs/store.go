// Package prefs keeps the per-user language and tone selection.
package prefs

import (
	"context"
	"fmt"

	"voxmail/internal/domain"
)

type Store interface {
	// Get returns the stored preferences or the defaults when the user is unknown.
	Get(ctx context.Context, id domain.UserID) (domain.Preferences, error)
	SetLanguage(ctx context.Context, id domain.UserID, lang domain.Language) error
	SetTone(ctx context.Context, id domain.UserID, tone domain.Tone) error
	Close() error
}

type Defaults struct {
	Language domain.Language
	Tone     domain.Tone
}

func (d Defaults) For(id domain.UserID) domain.Preferences {
	return domain.Preferences{UserID: id, Language: d.Language, Tone: d.Tone}
}

// fromRow builds preferences from stored columns. Values outside the known sets fall back to the defaults.
func (d Defaults) fromRow(id domain.UserID, lang, tone string) domain.Preferences {
	p := d.For(id)
	if l, err := domain.ParseLanguage(lang); err == nil {
		p.Language = l
	}
	if t, err := domain.ParseTone(tone); err == nil {
		p.Tone = t
	}
	return p
}

type Options struct {
	Driver   string // memory, sqlite, postgres
	DSN      string // file path for sqlite, connection string for postgres
	Defaults Defaults
}

func Open(ctx context.Context, opt Options) (Store, error) {
	switch opt.Driver {
	case "", "memory":
		return NewMemory(opt.Defaults), nil
	case "sqlite":
		return OpenSQLite(ctx, opt.DSN, opt.Defaults)
	case "postgres":
		return OpenPostgres(ctx, opt.DSN, opt.Defaults)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opt.Driver)
	}
}
