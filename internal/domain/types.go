package domain

import (
	"fmt"
	"strings"
)

// UserID identifies a conversation partner across transports, e.g. "tg:12345" or "bus:hub".
type UserID string

type Language string

const (
	LanguagePL Language = "pl"
	LanguageEN Language = "en"
	LanguageUA Language = "ua"
)

var Languages = []Language{LanguagePL, LanguageEN, LanguageUA}

var languageNames = map[Language]string{
	LanguagePL: "Polish",
	LanguageEN: "English",
	LanguageUA: "Ukrainian",
}

// Name is the English name of the language, used in model instructions.
func (l Language) Name() string {
	return languageNames[l]
}

func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := languageNames[l]; !ok {
		return "", &UserInputError{Msg: "Usage: /lang " + joinCodes(Languages)}
	}
	return l, nil
}

type Tone string

const (
	ToneFormal   Tone = "formal"
	ToneFriendly Tone = "friendly"
	ToneFirm     Tone = "firm"
)

var Tones = []Tone{ToneFormal, ToneFriendly, ToneFirm}

func ParseTone(s string) (Tone, error) {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ToneFormal, ToneFriendly, ToneFirm:
		return t, nil
	}
	return "", &UserInputError{Msg: "Usage: /tone " + joinCodes(Tones)}
}

type Preferences struct {
	UserID   UserID
	Language Language
	Tone     Tone
}

type DraftRequest struct {
	SourceText string
	Language   Language
	Tone       Tone
}

// NewDraftRequest copies language and tone from prefs so the request is never partially set.
func NewDraftRequest(text string, prefs Preferences) DraftRequest {
	return DraftRequest{
		SourceText: text,
		Language:   prefs.Language,
		Tone:       prefs.Tone,
	}
}

type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (p Preferences) String() string {
	return fmt.Sprintf("lang=%s, tone=%s", p.Language, p.Tone)
}

func joinCodes[T ~string](codes []T) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, "|")
}
