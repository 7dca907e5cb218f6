// Package types provides common type definitions used across the backend
package types

import (
	"fmt"
	"strings"

	"route-aggregator/internal/utils"
)

// DefaultSlippageTolerance is applied when a request omits slippageTolerance (percent).
const DefaultSlippageTolerance = 0.5

// ValidationError reports a malformed request. It is raised before any source is called.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// QuoteRequest asks every enabled source for routes converting fromToken into toToken.
// AmountIn is always a base-unit integer string of fromToken.
type QuoteRequest struct {
	FromChain         string   `json:"fromChain" binding:"required"`
	ToChain           string   `json:"toChain" binding:"required"`
	FromToken         string   `json:"fromToken" binding:"required"`
	ToToken           string   `json:"toToken" binding:"required"`
	AmountIn          string   `json:"amountIn" binding:"required"`
	SlippageTolerance *float64 `json:"slippageTolerance,omitempty"`
	FromAddress       string   `json:"fromAddress,omitempty"`
	ToAddress         string   `json:"toAddress,omitempty"`
}

// Slippage returns the slippage tolerance in percent, falling back to the default.
func (r QuoteRequest) Slippage() float64 {
	if r.SlippageTolerance == nil {
		return DefaultSlippageTolerance
	}
	return *r.SlippageTolerance
}

// SlippageBps converts the slippage tolerance to basis points.
func (r QuoteRequest) SlippageBps() int {
	return utils.PercentToBps(r.Slippage())
}

// IsCrossChain reports whether the request spans two chains.
func (r QuoteRequest) IsCrossChain() bool {
	return r.FromChain != r.ToChain
}

// Normalize returns a copy with chain keys and EVM token addresses in canonical form.
func (r QuoteRequest) Normalize() QuoteRequest {
	r.FromChain = utils.NormalizeChain(r.FromChain)
	r.ToChain = utils.NormalizeChain(r.ToChain)
	r.FromToken = utils.NormalizeToken(r.FromToken)
	r.ToToken = utils.NormalizeToken(r.ToToken)
	r.AmountIn = strings.TrimSpace(r.AmountIn)
	return r
}

// Validate checks the request shape.
func (r QuoteRequest) Validate() error {
	if err := validateLegs(r.FromChain, r.ToChain, r.FromToken, r.ToToken); err != nil {
		return err
	}
	if err := validateAmount("amountIn", r.AmountIn); err != nil {
		return err
	}
	if err := validateSlippage(r.SlippageTolerance); err != nil {
		return err
	}
	for _, f := range []namedValue{{"fromAddress", r.FromAddress}, {"toAddress", r.ToAddress}} {
		if f.value != "" && utils.LooksLikeEvmAddress(f.value) && !utils.IsEvmAddress(f.value) {
			return invalid(f.name, "malformed address %q", f.value)
		}
	}
	return nil
}

// ExecutionRequest asks for an execution payload of a previously quoted route.
// Recipient and SlippageTolerance may differ from the quote; the other fields must not.
type ExecutionRequest struct {
	RouteID           string   `json:"routeId" binding:"required"`
	FromChain         string   `json:"fromChain" binding:"required"`
	ToChain           string   `json:"toChain" binding:"required"`
	FromToken         string   `json:"fromToken" binding:"required"`
	ToToken           string   `json:"toToken" binding:"required"`
	AmountIn          string   `json:"amountIn" binding:"required"`
	Recipient         string   `json:"recipient" binding:"required"`
	FromAddress       string   `json:"fromAddress,omitempty"`
	SlippageTolerance *float64 `json:"slippageTolerance,omitempty"`
}

// Slippage returns the slippage tolerance in percent, falling back to the default.
func (r ExecutionRequest) Slippage() float64 {
	if r.SlippageTolerance == nil {
		return DefaultSlippageTolerance
	}
	return *r.SlippageTolerance
}

// QuoteRequest rebuilds the quote-shaped request an adapter needs to rebuild a route.
func (r ExecutionRequest) QuoteRequest() QuoteRequest {
	slippage := r.Slippage()
	return QuoteRequest{
		FromChain:         r.FromChain,
		ToChain:           r.ToChain,
		FromToken:         r.FromToken,
		ToToken:           r.ToToken,
		AmountIn:          r.AmountIn,
		SlippageTolerance: &slippage,
		FromAddress:       r.FromAddress,
		ToAddress:         r.Recipient,
	}
}

// Normalize returns a copy with chain keys and EVM addresses in canonical form.
func (r ExecutionRequest) Normalize() ExecutionRequest {
	r.RouteID = strings.TrimSpace(r.RouteID)
	r.FromChain = utils.NormalizeChain(r.FromChain)
	r.ToChain = utils.NormalizeChain(r.ToChain)
	r.FromToken = utils.NormalizeToken(r.FromToken)
	r.ToToken = utils.NormalizeToken(r.ToToken)
	r.AmountIn = strings.TrimSpace(r.AmountIn)
	r.Recipient = strings.TrimSpace(r.Recipient)
	return r
}

// Validate checks the request shape.
func (r ExecutionRequest) Validate() error {
	if strings.TrimSpace(r.RouteID) == "" {
		return invalid("routeId", "is required")
	}
	if err := validateLegs(r.FromChain, r.ToChain, r.FromToken, r.ToToken); err != nil {
		return err
	}
	if err := validateAmount("amountIn", r.AmountIn); err != nil {
		return err
	}
	if strings.TrimSpace(r.Recipient) == "" {
		return invalid("recipient", "is required")
	}
	if utils.LooksLikeEvmAddress(r.Recipient) && !utils.IsEvmAddress(r.Recipient) {
		return invalid("recipient", "malformed address %q", r.Recipient)
	}
	return validateSlippage(r.SlippageTolerance)
}

// namedValue pairs a request field with its value, checked in declaration order.
type namedValue struct {
	name  string
	value string
}

func validateLegs(fromChain, toChain, fromToken, toToken string) error {
	if strings.TrimSpace(fromChain) == "" {
		return invalid("fromChain", "is required")
	}
	if strings.TrimSpace(toChain) == "" {
		return invalid("toChain", "is required")
	}
	for _, f := range []namedValue{{"fromToken", fromToken}, {"toToken", toToken}} {
		if strings.TrimSpace(f.value) == "" {
			return invalid(f.name, "is required")
		}
		if utils.LooksLikeEvmAddress(f.value) && !utils.IsEvmAddress(f.value) {
			return invalid(f.name, "malformed token address %q", f.value)
		}
	}
	return nil
}

func validateAmount(field, amount string) error {
	v, ok := utils.ParseBaseUnits(amount)
	if !ok {
		return invalid(field, "must be an unsigned integer in base units, got %q", amount)
	}
	if v.Sign() == 0 {
		return invalid(field, "must be greater than zero")
	}
	return nil
}

func validateSlippage(s *float64) error {
	if s == nil {
		return nil
	}
	if *s < 0 || *s > 100 {
		return invalid("slippageTolerance", "must be between 0 and 100, got %v", *s)
	}
	return nil
}
