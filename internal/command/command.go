// Package command turns an incoming message into one of the known bot commands.
package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

type Kind int

const (
	KindContent Kind = iota
	KindStart
	KindLang
	KindTone
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindLang:
		return "lang"
	case KindTone:
		return "tone"
	default:
		return "content"
	}
}

var kinds = map[string]Kind{
	"start": KindStart,
	"lang":  KindLang,
	"tone":  KindTone,
}

type Command struct {
	Kind Kind
	Arg  string
}

var ErrUnknown = errors.New("unknown command")

// Parse classifies text. Text that looks like a command but is not a known one fails with ErrUnknown.
func Parse(text string) (Command, error) {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "/") {
		return Command{Kind: KindContent}, nil
	}

	name, arg := s[1:], ""
	if i := strings.IndexFunc(name, unicode.IsSpace); i >= 0 {
		name, arg = name[:i], name[i:]
	}
	// "/lang@voxmail_bot pl"
	name, _, _ = strings.Cut(name, "@")

	kind, ok := kinds[strings.ToLower(name)]
	if !ok {
		return Command{}, fmt.Errorf("%w: /%s", ErrUnknown, name)
	}

	return Command{Kind: kind, Arg: strings.TrimSpace(arg)}, nil
}
