package stream

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes. Configuration and argument errors are EInvalid, EConflict or
// ENotFound; misuse of a closed or unassigned handle is EState; a record that
// does not match the reader's encoding is ECorrupt.
const (
	EInternal    = "internal error"
	EInvalid     = "invalid"
	EConflict    = "conflict"
	ENotFound    = "not found"
	EState       = "illegal state"
	ECorrupt     = "corrupt"
	EUnsupported = "unsupported"
)

// Error is the error type returned by the log engine.
//
// Code targets automated handlers, Msg is for operators. Op and Err chain
// errors into a logical stack trace.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		fmt.Fprintf(&b, "<%s>", e.Code)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the code of the outermost coded error in the chain,
// EInternal for foreign errors and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return EInternal
		}
		if e.Code != "" {
			return e.Code
		}
		err = e.Err
	}
	return EInternal
}

// Sentinel errors. Wrapped errors keep matching with errors.Is.
var (
	ErrPartitionCount      = &Error{Code: EInvalid, Msg: "partition count out of range"}
	ErrPartitionOutOfRange = &Error{Code: EInvalid, Msg: "partition index out of range"}
	ErrLogExists           = &Error{Code: EConflict, Msg: "log already exists"}
	ErrLogNotFound         = &Error{Code: ENotFound, Msg: "unknown log"}
	ErrTailerExists        = &Error{Code: EConflict, Msg: "tailer already open for group"}
	ErrGroupMismatch       = &Error{Code: EInvalid, Msg: "tailers belong to different consumer groups"}
	ErrCodecMismatch       = &Error{Code: EConflict, Msg: "log already bound to another codec"}
	ErrTailerClosed        = &Error{Code: EState, Msg: "tailer closed"}
	ErrAppenderClosed      = &Error{Code: EState, Msg: "appender closed"}
	ErrPartitionMismatch   = &Error{Code: EState, Msg: "partition not assigned to tailer"}
	ErrUnassignedPartition = &Error{Code: EState, Msg: "no tailer assigned to partition"}
	ErrSeekOutOfRange      = &Error{Code: EInvalid, Msg: "seek offset out of range"}
	ErrEncodingMismatch    = &Error{Code: ECorrupt, Msg: "record encoding does not match reader"}
	ErrUnsupported         = &Error{Code: EUnsupported, Msg: "operation not supported by in-memory log"}
)
