// Package format renders drafts and status texts into bot replies.
package format

import (
	"errors"
	"fmt"
	"strings"

	"voxmail/internal/domain"
)

const DefaultChunkSize = 3800

// Draft renders the subject line, a blank line and the body, both verbatim.
func Draft(d domain.Draft) string {
	return fmt.Sprintf("Subject: %s\n\n%s", d.Subject, d.Body)
}

// WithTranscript prefixes reply with what was heard in a voice message.
func WithTranscript(transcript, reply string) string {
	return fmt.Sprintf("Transcript:\n%s\n\n%s", transcript, reply)
}

func Help(p domain.Preferences, provider string) string {
	return fmt.Sprintf(`Voice -> Email bot
Send a voice message, an audio file or text and I will draft an email (subject + body).

Commands:
/lang pl|en|ua - email language
/tone formal|friendly|firm - tone
/start - this help

Current: %s
Provider: %s`, p, strings.ToUpper(provider))
}

func LanguageSet(l domain.Language) string {
	return "Language set to " + strings.ToUpper(string(l))
}

func ToneSet(t domain.Tone) string {
	return "Tone set to " + string(t)
}

const (
	msgUnsupportedMedia = "Please send voice or audio (mp3/m4a/ogg/opus)."
	msgTranscription    = "Sorry, I couldn't understand the audio. Please try again or type the text."
	msgGeneration       = "Sorry, I couldn't write the email right now. Please try again."
	msgQuota            = "The AI provider quota is exhausted. Top up the balance or switch the bot to PROVIDER=groq and restart it."
	msgRateLimited      = "Too many requests, please wait a moment and try again."
	msgInternal         = "Something went wrong. Please try again."
)

func UnsupportedMedia() string { return msgUnsupportedMedia }

func RateLimited() string { return msgRateLimited }

// Failure maps an error from handling one event to the single reply the user sees.
func Failure(err error) string {
	var (
		uerr *domain.UserInputError
		terr *domain.TranscriptionError
		gerr *domain.GenerationError
	)
	switch {
	case errors.As(err, &uerr):
		return uerr.Msg
	case errors.Is(err, domain.ErrQuotaExceeded):
		return msgQuota
	case errors.As(err, &terr):
		return msgTranscription
	case errors.As(err, &gerr):
		return msgGeneration
	default:
		return msgInternal
	}
}

// Chunk splits text into pieces of at most size runes.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	parts := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}
