package config

import (
	"errors"
	"fmt"
)

// Kind classifies configuration failures so transport layers can map them
// to status codes without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSource: the document parser or writer is not available.
	KindSource
	// KindParse: the document is missing, unreadable, or malformed.
	KindParse
	// KindValidation: the document parsed but a value breaks a rule.
	KindValidation
	// KindPersistence: an update could not be serialized for writing.
	KindPersistence
	// KindTargetUnspecified: the database section names neither a DSN nor a
	// server.  Raised by the connection factory, never by the loader.
	KindTargetUnspecified
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindSource:            "config_source",
	KindParse:             "config_parse",
	KindValidation:        "config_validation",
	KindPersistence:       "persistence_unavailable",
	KindTargetUnspecified: "connection_target_unspecified",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Sentinels matched by errors.Is against any *Error of the same Kind.
var (
	ErrSource                 = errors.New("config: document codec unavailable")
	ErrParse                  = errors.New("config: document could not be parsed")
	ErrValidation             = errors.New("config: document failed validation")
	ErrPersistenceUnavailable = errors.New("config: persistence unavailable")
	ErrTargetUnspecified      = errors.New("config: database target unspecified")

	// ErrUnresolvedReference is wrapped inside a KindParse error when strict
	// mode is on and a ${NAME} reference points at an unset variable.
	ErrUnresolvedReference = errors.New("config: unresolved reference")
)

var kindSentinels = map[Kind]error{
	KindSource:            ErrSource,
	KindParse:             ErrParse,
	KindValidation:        ErrValidation,
	KindPersistence:       ErrPersistenceUnavailable,
	KindTargetUnspecified: ErrTargetUnspecified,
}

// Error carries the failure kind, the operation, and the source path.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrParse) and friends work without callers knowing
// about *Error.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
