// Package bot routes one incoming event to its handler and produces the reply texts.
// Transports (Telegram, the websocket bus) only translate their messages into Events.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"voxmail/internal/command"
	"voxmail/internal/domain"
	"voxmail/internal/format"
	"voxmail/internal/input"
	"voxmail/internal/logging"
	"voxmail/internal/prefs"
)

type Event struct {
	UserID domain.UserID
	Text   string
	Audio  input.Audio
}

type Normalizer interface {
	Normalize(ctx context.Context, c input.Content) (input.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, req domain.DraftRequest) (domain.Draft, error)
}

type Limiter interface {
	Allow(key string) bool
}

type Options struct {
	Provider       string
	ShowTranscript bool
	ChunkSize      int
}

type Stats struct {
	Events   int64
	Drafts   int64
	Failures int64
}

type Service struct {
	prefs      prefs.Store
	normalizer Normalizer
	drafter    Generator
	limiter    Limiter
	opt        Options

	events   atomic.Int64
	drafts   atomic.Int64
	failures atomic.Int64
}

// NewService wires the handlers. limiter may be nil.
func NewService(store prefs.Store, n Normalizer, g Generator, limiter Limiter, opt Options) *Service {
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = format.DefaultChunkSize
	}
	return &Service{
		prefs:      store,
		normalizer: n,
		drafter:    g,
		limiter:    limiter,
		opt:        opt,
	}
}

// Handle never fails: every error becomes exactly one apology or usage reply.
func (s *Service) Handle(ctx context.Context, ev Event) []string {
	s.events.Add(1)
	log := logging.From(ctx)

	reply, err := s.dispatch(ctx, ev)
	if err != nil {
		s.failures.Add(1)
		log.Warn("Event failed", "user", ev.UserID, "err", err)
		return []string{format.Failure(err)}
	}
	return format.Chunk(reply, s.opt.ChunkSize)
}

func (s *Service) Stats() Stats {
	return Stats{
		Events:   s.events.Load(),
		Drafts:   s.drafts.Load(),
		Failures: s.failures.Load(),
	}
}

func (s *Service) Provider() string {
	return s.opt.Provider
}

func (s *Service) dispatch(ctx context.Context, ev Event) (string, error) {
	cmd := command.Command{Kind: command.KindContent}
	if ev.Audio == nil {
		var err error
		cmd, err = command.Parse(ev.Text)
		if errors.Is(err, command.ErrUnknown) {
			help, herr := s.start(ctx, ev.UserID)
			if herr != nil {
				return "", herr
			}
			return "", &domain.UserInputError{Msg: help}
		}
		if err != nil {
			return "", err
		}
	}

	logging.From(ctx).Debug("Dispatch", "user", ev.UserID, "cmd", cmd.Kind)

	switch cmd.Kind {
	case command.KindStart:
		return s.start(ctx, ev.UserID)
	case command.KindLang:
		return s.setLanguage(ctx, ev.UserID, cmd.Arg)
	case command.KindTone:
		return s.setTone(ctx, ev.UserID, cmd.Arg)
	case command.KindContent:
		return s.draft(ctx, ev)
	default:
		return "", fmt.Errorf("unhandled command kind %d", cmd.Kind)
	}
}

func (s *Service) start(ctx context.Context, id domain.UserID) (string, error) {
	p, err := s.prefs.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return format.Help(p, s.opt.Provider), nil
}

func (s *Service) setLanguage(ctx context.Context, id domain.UserID, arg string) (string, error) {
	lang, err := domain.ParseLanguage(arg)
	if err != nil {
		return "", err
	}
	if err := s.prefs.SetLanguage(ctx, id, lang); err != nil {
		return "", err
	}
	return format.LanguageSet(lang), nil
}

func (s *Service) setTone(ctx context.Context, id domain.UserID, arg string) (string, error) {
	tone, err := domain.ParseTone(arg)
	if err != nil {
		return "", err
	}
	if err := s.prefs.SetTone(ctx, id, tone); err != nil {
		return "", err
	}
	return format.ToneSet(tone), nil
}

func (s *Service) draft(ctx context.Context, ev Event) (string, error) {
	log := logging.From(ctx)

	if s.limiter != nil && !s.limiter.Allow(string(ev.UserID)) {
		return format.RateLimited(), nil
	}

	p, err := s.prefs.Get(ctx, ev.UserID)
	if err != nil {
		return "", err
	}

	in, err := s.normalizer.Normalize(ctx, input.Content{Text: ev.Text, Audio: ev.Audio})
	if err != nil {
		return "", err
	}
	if in.Transcript {
		log.Info("Transcribed", "chars", len(in.Text))
	}

	start := time.Now()
	d, err := s.drafter.Generate(ctx, domain.NewDraftRequest(in.Text, p))
	if err != nil {
		return "", err
	}
	s.drafts.Add(1)
	log.Info("Draft ready", "lang", p.Language, "tone", p.Tone, "took", time.Since(start))

	reply := format.Draft(d)
	if in.Transcript && s.opt.ShowTranscript {
		reply = format.WithTranscript(in.Text, reply)
	}
	return reply, nil
}
