// internal/browser/session/errors.go
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunch covers process start failures and a debug port that never opened.
	ErrLaunch = errors.New("browser launch failed")
	// ErrHandshake means the port was reachable but the protocol client could not attach.
	ErrHandshake = errors.New("protocol handshake failed")
	// ErrUnsupportedResult is matched by *UnsupportedResultError.
	ErrUnsupportedResult = errors.New("unsupported evaluation result type")
	// ErrSelectorNotFound is matched by *SelectorError.
	ErrSelectorNotFound = errors.New("selector matched no element")
	// ErrNoDocument is returned by document queries before the first navigation.
	ErrNoDocument = errors.New("no document loaded")
	ErrClosed     = errors.New("session is closed")
)

// UnsupportedResultError reports an evaluation whose result kind is not a
// number, string, boolean or undefined.
type UnsupportedResultError struct {
	Type       string
	Subtype    string
	Expression string
}

func (e *UnsupportedResultError) Error() string {
	kind := e.Type
	if e.Subtype != "" {
		kind += "/" + e.Subtype
	}
	return fmt.Sprintf("unsupported result type %q from expression %q", kind, e.Expression)
}

func (e *UnsupportedResultError) Is(target error) bool { return target == ErrUnsupportedResult }

// SelectorError carries the selector that matched nothing.
type SelectorError struct {
	Selector string
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("invalid selector %q: no matching element", e.Selector)
}

func (e *SelectorError) Is(target error) bool { return target == ErrSelectorNotFound }

// EvaluationError is a script exception raised inside the page.
type EvaluationError struct {
	Expression string
	Text       string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of %q threw: %s", e.Expression, e.Text)
}
