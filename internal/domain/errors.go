package domain

import "errors"

// ErrQuotaExceeded is wrapped by AI clients when the provider rejects a call for quota or rate reasons.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// ErrEmptyTranscript means the transcriber returned no text.
var ErrEmptyTranscript = errors.New("empty transcript")

// UserInputError is a bad command or argument. Msg is shown to the user as is.
type UserInputError struct {
	Msg string
}

func (e *UserInputError) Error() string {
	return e.Msg
}

type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return "transcription: " + e.Err.Error()
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
