// Package sources integrates the external quote sources behind one Adapter contract.
package sources

import (
	"context"

	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

// Adapter translates quote and execution requests for one external source.
type Adapter interface {
	ID() string
	Capabilities() Capabilities
	// GetQuote returns zero or more routes. No routes with a nil error means the source has nothing to offer.
	GetQuote(ctx context.Context, req types.QuoteRequest) ([]types.Route, error)
	// GetTx builds the unsigned transaction of a route this source quoted.
	GetTx(ctx context.Context, routeID string, req types.ExecutionRequest) (*types.ExecutionPayload, error)
}

// Capabilities declares which requests a source can serve.
type Capabilities struct {
	SameChain  bool     `json:"sameChain"`
	CrossChain bool     `json:"crossChain"`
	Chains     []string `json:"chains,omitempty"` // canonical chain keys; empty means any
}

// Supports reports whether a request falls within the capabilities.
func (c Capabilities) Supports(req types.QuoteRequest) bool {
	from := utils.NormalizeChain(req.FromChain)
	to := utils.NormalizeChain(req.ToChain)
	if from == to && !c.SameChain {
		return false
	}
	if from != to && !c.CrossChain {
		return false
	}
	if len(c.Chains) == 0 {
		return true
	}
	return containsChain(c.Chains, from) && containsChain(c.Chains, to)
}

func containsChain(chains []string, key string) bool {
	for _, c := range chains {
		if c == key {
			return true
		}
	}
	return false
}
