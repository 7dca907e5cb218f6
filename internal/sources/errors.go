package sources

import (
	"context"
	"errors"
	"fmt"
	"net"

	"route-aggregator/internal/clients"
	"route-aggregator/internal/types"
)

var (
	// ErrNotConfigured is returned by sources that lack credentials.
	ErrNotConfigured = errors.New("source not configured")
	// ErrNoTransaction means the source answered without transaction data.
	ErrNoTransaction = errors.New("source returned no transaction")
	// ErrUnsupportedTransaction means the source only offers a transaction this service cannot relay.
	ErrUnsupportedTransaction = errors.New("transaction type not supported")
	// ErrQuoteDrift means the re-quoted output fell below what the quoted route allows.
	ErrQuoteDrift = errors.New("quoted output no longer available within slippage tolerance")
)

// SourceError is a classified failure of one source call.
type SourceError struct {
	Source     string
	Class      types.FailureClass
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Source, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Class, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Wrap classifies err as a SourceError of source. Nil stays nil and existing SourceErrors pass through.
func Wrap(source string, err error) error {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	se = &SourceError{Source: source, Class: types.FailureUnknown, Err: err}

	var httpErr *clients.HTTPError
	var netErr net.Error
	switch {
	case errors.As(err, &httpErr):
		se.StatusCode = httpErr.StatusCode
		se.Class = types.ClassifyStatus(httpErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		se.Class = types.FailureTimeout
	case errors.Is(err, clients.ErrMalformedResponse):
		se.Class = types.FailureMalformed
	}
	return se
}

// ClassOf returns the failure class of err.
func ClassOf(err error) types.FailureClass {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	return types.FailureUnknown
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", clients.ErrMalformedResponse, fmt.Sprintf(format, args...))
}
