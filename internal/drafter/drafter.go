// Package drafter asks the language model for an email draft and parses the answer.
package drafter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	"voxmail/internal/domain"
)

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Generator struct {
	llm Completer
}

func New(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// Generate makes exactly one completion call. Every failure is a *domain.GenerationError.
func (g *Generator) Generate(ctx context.Context, req domain.DraftRequest) (domain.Draft, error) {
	system, user := BuildPrompt(req)

	raw, err := g.llm.Complete(ctx, system, user)
	if err != nil {
		return domain.Draft{}, &domain.GenerationError{Err: err}
	}

	log.Debug("Draft generated", "data", raw)

	draft, err := Parse(raw)
	if err != nil {
		return domain.Draft{}, &domain.GenerationError{Err: err}
	}
	return draft, nil
}

// Parse accepts the JSON object the prompt asks for, optionally fenced, and falls back
// to the "Subject: ..." header followed by a blank line and the body.
func Parse(raw string) (domain.Draft, error) {
	s := strings.TrimSpace(stripFence(raw))
	if s == "" {
		return domain.Draft{}, errors.New("empty model output")
	}

	var d domain.Draft
	if strings.HasPrefix(s, "{") {
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return domain.Draft{}, fmt.Errorf("unmarshal draft: %w (raw: %s)", err, s)
		}
	} else {
		d = parseHeader(s)
	}

	d.Subject = strings.TrimSpace(d.Subject)
	d.Body = strings.TrimSpace(d.Body)

	if d.Subject == "" {
		return domain.Draft{}, fmt.Errorf("draft has no subject (raw: %s)", s)
	}
	if d.Body == "" {
		return domain.Draft{}, fmt.Errorf("draft has no body (raw: %s)", s)
	}
	return d, nil
}

func parseHeader(s string) domain.Draft {
	first, rest, _ := strings.Cut(s, "\n")
	key, value, ok := strings.Cut(first, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(key), "subject") {
		return domain.Draft{}
	}
	return domain.Draft{Subject: value, Body: rest}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
