package domain

import "errors"

var (
	// ErrInvalidSession is returned when a PIN is unknown or the session is in the wrong state.
	ErrInvalidSession = errors.New("invalid or closed game PIN")
	// ErrNotAuthorized is returned when a non-host attempts a host-only action.
	ErrNotAuthorized = errors.New("not authorized for this game")
	// ErrQuizUnavailable indicates the quiz could not be resolved or has no playable questions.
	ErrQuizUnavailable = errors.New("quiz unavailable")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAlreadyAnswered is returned for a second submission on the same question.
	ErrAlreadyAnswered = errors.New("answer already recorded")
	// ErrSessionClosed is returned when a command reaches a session that has already ended.
	ErrSessionClosed = errors.New("game session closed")
	// ErrInvalidNickname is returned when a player joins without a nickname.
	ErrInvalidNickname = errors.New("nickname is required")
	// ErrPinExhausted is returned when no free PIN could be found.
	ErrPinExhausted = errors.New("no free game PIN available")
)
