package signature

import (
	"fmt"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// Codes carried by Error
const (
	ErrCodeMalformed   = "MALFORMED_XML"
	ErrCodeNoSignature = "NO_SIGNATURE"
)

// Error is returned by Verify when there is no signature to check at all.
// It matches model.ErrInvalid so the HTTP layer answers 400.
type Error struct {
	Code  string
	Cause error
}

func (e *Error) Error() string {
	msg := "no signature found in document"
	if e.Code == ErrCodeMalformed {
		msg = "document is not well-formed XML"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return e.Code + ": " + msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{model.ErrInvalid}
	}
	return []error{model.ErrInvalid, e.Cause}
}
