package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/types"
)

func outputs(routes []types.Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.EffectiveAmountOut()
	}
	return out
}

func TestRankByExactOutput(t *testing.T) {
	routes := []types.Route{
		{RouteID: "0x03", Provider: "a", AmountOut: "995000", Fees: "5000"},
		{RouteID: "0x01", Provider: "b", AmountOut: "998000", Fees: "2000"},
		{RouteID: "0x02", Provider: "c", AmountOut: "997000", Fees: "3000"},
	}
	ranked := RankRoutes(routes)
	assert.Equal(t, []string{"998000", "997000", "995000"}, outputs(ranked))
	assert.Equal(t, "0x03", routes[0].RouteID, "input untouched")
}

func TestRankUsesBigIntegers(t *testing.T) {
	// differ only beyond float64 precision
	routes := []types.Route{
		{RouteID: "0x01", AmountOut: "123456789012345678901234567890"},
		{RouteID: "0x02", AmountOut: "123456789012345678901234567891"},
	}
	ranked := RankRoutes(routes)
	assert.Equal(t, "0x02", ranked[0].RouteID)
}

func TestRankTieBreaks(t *testing.T) {
	routes := []types.Route{
		{RouteID: "0xbb", Provider: "lifi", AmountOut: "1000"},
		{RouteID: "0xaa", Provider: "zerox", AmountOut: "1000"},
		{RouteID: "0xaa", Provider: "debridge", AmountOut: "1000"},
	}
	for i := 0; i < 5; i++ {
		ranked := RankRoutes([]types.Route{routes[i%3], routes[(i+1)%3], routes[(i+2)%3]})
		require.Len(t, ranked, 3)
		assert.Equal(t, "debridge", ranked[0].Provider)
		assert.Equal(t, "zerox", ranked[1].Provider)
		assert.Equal(t, "lifi", ranked[2].Provider)
	}
}

func TestRankTieOnOutputFallsBackToNetOfFees(t *testing.T) {
	routes := []types.Route{
		{RouteID: "0x01", AmountOut: "1000", Fees: "30"},
		{RouteID: "0x02", AmountOut: "1000", Fees: "10"},
	}
	assert.Equal(t, "0x02", RankRoutes(routes)[0].RouteID)
}

func TestRankUsesLastStepWhenTopLevelMissing(t *testing.T) {
	routes := []types.Route{
		{RouteID: "0x01", AmountOut: "500"},
		{RouteID: "0x02", Steps: []types.RouteStep{{AmountOut: "100"}, {AmountOut: "900"}}},
		{RouteID: "0x03"},
	}
	ranked := RankRoutes(routes)
	assert.Equal(t, []string{"0x02", "0x01", "0x03"}, []string{ranked[0].RouteID, ranked[1].RouteID, ranked[2].RouteID})
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, RankRoutes(nil))
}
