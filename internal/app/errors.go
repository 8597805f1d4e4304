package app

import "fmt"

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// PartialWriteError reports a moderation action that persisted the
// updated pending document but failed to persist the destination. The
// in-memory snapshot is not advanced; the caller must reload before
// retrying so the message is not lost or duplicated.
type PartialWriteError struct {
	Collection string
	Err        error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("pending updated but %s write failed: %v", e.Collection, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}
