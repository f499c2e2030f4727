// Package apperr defines the error kinds surfaced by the question answering
// pipeline. Callers branch on the kind, never on the message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindExtraction       Kind = "extraction"
	KindEmbeddingService Kind = "embedding_service"
	KindGeneration       Kind = "generation"
	KindNotFound         Kind = "not_found"
	KindConfiguration    Kind = "configuration"
	KindInvalidInput     Kind = "invalid_input"
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so sentinels such as
// NotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

var (
	Extraction       = &Error{Kind: KindExtraction}
	EmbeddingService = &Error{Kind: KindEmbeddingService}
	Generation       = &Error{Kind: KindGeneration}
	NotFound         = &Error{Kind: KindNotFound}
	Configuration    = &Error{Kind: KindConfiguration}
	InvalidInput     = &Error{Kind: KindInvalidInput}
)

func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool { return errors.Is(err, NotFound) }

// IsUnavailable reports whether err is a collaborator failure that the caller
// may retry.
func IsUnavailable(err error) bool {
	return errors.Is(err, EmbeddingService) || errors.Is(err, Generation)
}
