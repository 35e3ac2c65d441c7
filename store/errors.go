package store

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingConfig is returned when a required configuration key has no value.
	ErrMissingConfig = errors.New("nestdoc: missing configuration")

	// ErrInvalidConfig is returned when a present configuration value fails to parse.
	ErrInvalidConfig = errors.New("nestdoc: invalid configuration")

	// ErrInvalidCollectionPath is returned when a collection path has an odd number of tokens.
	ErrInvalidCollectionPath = errors.New("nestdoc: invalid collection path")

	// ErrInitialize is returned when the backend cannot be opened or rejects the parent path.
	ErrInitialize = errors.New("nestdoc: initialize backend")

	// ErrRead is returned when a document lookup fails.
	ErrRead = errors.New("nestdoc: read document")

	// ErrWrite is returned when a document upsert fails.
	ErrWrite = errors.New("nestdoc: write document")

	// ErrDelete is returned when a document removal fails.
	ErrDelete = errors.New("nestdoc: delete document")
)

// Kind classifies an Error.
type Kind int

const (
	KindMissingConfig Kind = iota + 1
	KindInvalidConfig
	KindInvalidCollectionPath
	KindInitialize
	KindRead
	KindWrite
	KindDelete
)

func (k Kind) sentinel() error {
	switch k {
	case KindMissingConfig:
		return ErrMissingConfig
	case KindInvalidConfig:
		return ErrInvalidConfig
	case KindInvalidCollectionPath:
		return ErrInvalidCollectionPath
	case KindInitialize:
		return ErrInitialize
	case KindRead:
		return ErrRead
	case KindWrite:
		return ErrWrite
	case KindDelete:
		return ErrDelete
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindMissingConfig:
		return "missing config"
	case KindInvalidConfig:
		return "invalid config"
	case KindInvalidCollectionPath:
		return "invalid collection path"
	case KindInitialize:
		return "initialize"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every nestdoc operation.
//
// errors.Is matches it against the sentinel of its Kind, and errors.As or
// errors.Unwrap reach the underlying cause.
type Error struct {
	Kind Kind

	// Key is the fully scoped configuration key, when one is involved.
	Key string

	// Value is the raw configuration value that was rejected.
	Value string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "nestdoc: " + e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}

	switch e.Kind {
	case KindMissingConfig:
		msg = fmt.Sprintf("%s: %s", msg, e.Key)
	case KindInvalidConfig:
		if e.Key != "" {
			msg = fmt.Sprintf("%s: %s=%q", msg, e.Key, e.Value)
		}
	case KindInvalidCollectionPath:
		msg = fmt.Sprintf("%s: %q", msg, e.Value)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

func missingConfig(key string) error {
	return &Error{Kind: KindMissingConfig, Key: key}
}

func invalidConfig(key, value string, cause error) error {
	return &Error{Kind: KindInvalidConfig, Key: key, Value: value, Err: cause}
}

func invalidCollectionPath(raw string) error {
	return &Error{Kind: KindInvalidCollectionPath, Value: raw}
}

func wrap(kind Kind, cause error) error {
	return &Error{Kind: kind, Err: cause}
}
