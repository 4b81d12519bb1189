package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownItemKind   = errors.New("unknown item kind")
	ErrItemNotFound      = errors.New("item not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrEmptyAnswer       = errors.New("answer is empty")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrIncompleteSession = errors.New("not every dimension has been answered")
	ErrSessionBusy       = errors.New("another answer is being processed for this session")
	ErrSessionLocked     = errors.New("session is locked")
	ErrOrderConflict     = errors.New("message order index conflict")
	ErrSynthesisFailed   = errors.New("insight synthesis failed")
)

// ErrorKind classifies failures for callers and transports.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindClient
	KindNotFound
	KindConflict
	KindPersistence
	KindSynthesis
)

func (k ErrorKind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	case KindSynthesis:
		return "synthesis"
	default:
		return "unknown"
	}
}

// IsClient reports whether the kind is a synchronous caller error.
func (k ErrorKind) IsClient() bool {
	return k == KindClient || k == KindNotFound || k == KindConflict
}

// Error wraps an operation failure with its kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func ClientError(op string, err error) error      { return newError(KindClient, op, err) }
func NotFoundError(op string, err error) error    { return newError(KindNotFound, op, err) }
func ConflictError(op string, err error) error    { return newError(KindConflict, op, err) }
func PersistenceError(op string, err error) error { return newError(KindPersistence, op, err) }
func SynthesisError(op string, err error) error   { return newError(KindSynthesis, op, err) }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
