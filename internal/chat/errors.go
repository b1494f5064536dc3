package chat

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrBusy               = errors.New("a message is already being answered")
	ErrNotInitialized     = errors.New("conversation has no active session")
	ErrAlreadyInitialized = errors.New("conversation already initialized")
	ErrNothingToRetry     = errors.New("no unanswered message to retry")
)

// Kind classifies controller failures for callers deciding how to react.
type Kind string

const (
	KindSessionInit Kind = "session_init"
	KindRoundTrip   Kind = "round_trip"
)

// Stage names the step of a round trip that failed.
type Stage string

const (
	StagePersistUser   Stage = "persist_user"
	StageAnswer        Stage = "answer"
	StagePersistAnswer Stage = "persist_answer"
)

// InitError is returned when the session or its welcome message cannot be created.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return fmt.Sprintf("initialize session: %v", e.Err) }
func (e *InitError) Unwrap() error { return e.Err }
func (e *InitError) Kind() Kind    { return KindSessionInit }

// RoundTripError is returned when a send or retry fails part way.
// When Stage is StageAnswer or StagePersistAnswer the user message stays visible without a reply.
type RoundTripError struct {
	Stage Stage
	Err   error
}

func (e *RoundTripError) Error() string {
	return fmt.Sprintf("round trip failed at %s: %v", e.Stage, e.Err)
}
func (e *RoundTripError) Unwrap() error { return e.Err }
func (e *RoundTripError) Kind() Kind    { return KindRoundTrip }

// KindOf returns the kind of a controller error, or "" for guard errors and nil.
func KindOf(err error) Kind {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}
