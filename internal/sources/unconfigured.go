package sources

import (
	"context"

	"route-aggregator/internal/types"
)

// Unconfigured stands in for a source whose credentials are missing. It never offers routes.
type Unconfigured struct {
	id   string
	caps Capabilities
}

// NewUnconfigured creates the placeholder adapter of a source.
func NewUnconfigured(id string, caps Capabilities) *Unconfigured {
	return &Unconfigured{id: id, caps: caps}
}

func (u *Unconfigured) ID() string { return u.id }

func (u *Unconfigured) Capabilities() Capabilities { return u.caps }

func (u *Unconfigured) GetQuote(context.Context, types.QuoteRequest) ([]types.Route, error) {
	return nil, nil
}

func (u *Unconfigured) GetTx(context.Context, string, types.ExecutionRequest) (*types.ExecutionPayload, error) {
	return nil, &SourceError{Source: u.id, Class: types.FailureAuth, Err: ErrNotConfigured}
}
