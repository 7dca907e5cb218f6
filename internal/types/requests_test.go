package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuote() QuoteRequest {
	return QuoteRequest{
		FromChain: "1",
		ToChain:   "42161",
		FromToken: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		ToToken:   "0xaf88d065e77c8cc2239327c5edb3a432268e5831",
		AmountIn:  "1000000",
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
	return verr.Field
}

func TestQuoteRequestValidate(t *testing.T) {
	assert.NoError(t, validQuote().Validate())

	tests := []struct {
		name   string
		mutate func(*QuoteRequest)
		field  string
	}{
		{"missing from chain", func(r *QuoteRequest) { r.FromChain = " " }, "fromChain"},
		{"missing to token", func(r *QuoteRequest) { r.ToToken = "" }, "toToken"},
		{"bad token", func(r *QuoteRequest) { r.FromToken = "0x1234" }, "fromToken"},
		{"zero amount", func(r *QuoteRequest) { r.AmountIn = "0" }, "amountIn"},
		{"decimal amount", func(r *QuoteRequest) { r.AmountIn = "1.5" }, "amountIn"},
		{"bad to address", func(r *QuoteRequest) { r.ToAddress = "0xzz" }, "toAddress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validQuote()
			tt.mutate(&r)
			assert.Equal(t, tt.field, fieldOf(t, r.Validate()))
		})
	}
}

func TestValidateReportsFirstInvalidFieldInOrder(t *testing.T) {
	tokens := validQuote()
	tokens.FromToken = "0x1234"
	tokens.ToToken = ""

	addresses := validQuote()
	addresses.FromAddress = "0xabc"
	addresses.ToAddress = "0xdef"

	// map iteration would make this flip between runs
	for i := 0; i < 50; i++ {
		assert.Equal(t, "fromToken", fieldOf(t, tokens.Validate()))
		assert.Equal(t, "fromAddress", fieldOf(t, addresses.Validate()))
	}
}

func TestExecutionRequestValidate(t *testing.T) {
	r := ExecutionRequest{
		RouteID:   "skip:abc",
		FromChain: "1",
		ToChain:   "42161",
		FromToken: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		ToToken:   "0xaf88d065e77c8cc2239327c5edb3a432268e5831",
		AmountIn:  "1000000",
		Recipient: "0x1111111111111111111111111111111111111111",
	}
	assert.NoError(t, r.Validate())

	bad := r
	bad.Recipient = "0x11"
	assert.Equal(t, "recipient", fieldOf(t, bad.Validate()))

	bad = r
	bad.FromToken = ""
	bad.ToToken = ""
	assert.Equal(t, "fromToken", fieldOf(t, bad.Validate()))
}
