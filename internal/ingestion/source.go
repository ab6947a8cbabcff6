package ingestion

import (
	"TxLedger/internal/event"
	"context"
	"errors"
	"fmt"
	"io"
)

// Source yields parsed events one at a time. Next returns io.EOF when the
// stream is exhausted and a *DecodeError for a record that could not be
// parsed; the caller may keep calling Next after a DecodeError. Any other
// error is fatal for the source.
type Source interface {
	Next(ctx context.Context) (event.Transaction, error)
}

// DecodeErrorKind classifies malformed input.
type DecodeErrorKind string

const (
	KindSyntax     DecodeErrorKind = "syntax"
	KindFieldCount DecodeErrorKind = "field_count"
	KindType       DecodeErrorKind = "type"
	KindClient     DecodeErrorKind = "client"
	KindTx         DecodeErrorKind = "tx"
	KindAmount     DecodeErrorKind = "amount"
)

// DecodeError reports a record that was skipped. Position is the line number
// for file input and the stream sequence for NATS input.
type DecodeError struct {
	Kind     DecodeErrorKind
	Position int64
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("decode %s at %d: %v", e.Kind, e.Position, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(kind DecodeErrorKind, err error) *DecodeError {
	return &DecodeError{Kind: kind, Err: err}
}

// AsDecodeError reports whether err marks a skipped record.
func AsDecodeError(err error) (*DecodeError, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsEndOfStream reports whether err is the normal end of a source.
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF)
}
