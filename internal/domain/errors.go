package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a chat session has not been opened.
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrMissingAPIKey blocks the completion relay until the user supplies a key.
	ErrMissingAPIKey = errors.New("please add your OpenAI API key to continue")
	// ErrUnsupportedModel indicates a model identifier outside SupportedModels.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrTemperatureRange indicates a temperature outside [0,1].
	ErrTemperatureRange = errors.New("temperature must be between 0 and 1")
	// ErrMaxTokensRange indicates max tokens outside [64,4096].
	ErrMaxTokensRange = errors.New("max tokens must be between 64 and 4096")
	// ErrQuizActive is returned when starting a quiz that is already running.
	ErrQuizActive = errors.New("quiz already active")
	// ErrQuizNotActive is returned when ending a quiz that is not running.
	ErrQuizNotActive = errors.New("quiz not active")
	// ErrSessionBusy is returned while another input is still being handled.
	ErrSessionBusy = errors.New("session is handling another input")
	// ErrEmptyInput is returned for blank user input.
	ErrEmptyInput = errors.New("empty input")
)
