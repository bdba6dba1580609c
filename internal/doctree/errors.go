package doctree

import (
	"errors"
	"fmt"
)

// DOMErrorCode classifies a rejected tree mutation.
type DOMErrorCode int

const (
	HierarchyRequestErr DOMErrorCode = iota + 1
	WrongDocumentErr
	NotFoundErr
	NoModificationAllowedErr
	NotSupportedErr
	InvalidStateErr
)

func (c DOMErrorCode) String() string {
	switch c {
	case HierarchyRequestErr:
		return "hierarchy request"
	case WrongDocumentErr:
		return "wrong document"
	case NotFoundErr:
		return "not found"
	case NoModificationAllowedErr:
		return "no modification allowed"
	case NotSupportedErr:
		return "not supported"
	case InvalidStateErr:
		return "invalid state"
	}
	return fmt.Sprintf("dom error %d", int(c))
}

// ErrDOM matches every *DOMError with errors.Is.
var ErrDOM = errors.New("dom error")

// DOMError is the single client-facing error kind for rejected tree mutations.
// Lower-level store failures raised during a mutation are wrapped into it.
type DOMError struct {
	Code DOMErrorCode
	Msg  string
	Err  error
}

// NewDOMError builds a DOMError with a formatted message.
func NewDOMError(code DOMErrorCode, format string, args ...any) *DOMError {
	return &DOMError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *DOMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *DOMError) Unwrap() error { return e.Err }

func (e *DOMError) Is(target error) bool { return target == ErrDOM }

// CodeOf returns the DOMErrorCode carried by err, or 0.
func CodeOf(err error) DOMErrorCode {
	var de *DOMError
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}
