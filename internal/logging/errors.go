package logging

import (
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OperationError ties a failure to the operation and session it came from.
type OperationError struct {
	Operation string
	SessionID string
	Err       error
}

func (e *OperationError) Error() string {
	msg := e.Operation
	if e.SessionID != "" {
		msg += " [session " + e.SessionID + "]"
	}
	return msg + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error { return e.Err }

// MarshalLogObject splits the error into separate log fields.
func (e *OperationError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("operation", e.Operation)
	if e.SessionID != "" {
		enc.AddString("session_id", e.SessionID)
	}
	enc.AddString("cause", e.Err.Error())
	return nil
}

// Wrap annotates err with the operation and session. A nil err stays nil.
func Wrap(operation, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, SessionID: sessionID, Err: err}
}

// ErrorField logs an OperationError as a structured object and anything else
// as a plain error.
func ErrorField(err error) zap.Field {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return zap.Object("error", opErr)
	}
	return zap.Error(err)
}
