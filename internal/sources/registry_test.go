package sources

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/config"
	"route-aggregator/internal/types"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestBuildEnablement(t *testing.T) {
	cfg := config.Default()
	cfg.Sources["zerox"] = config.SourceConfig{APIKey: "k", TimeoutMs: 8000}
	cfg.Sources["debridge"] = config.SourceConfig{Disabled: true}

	reg := Build(cfg, quietLogger())

	var ids []string
	for _, a := range reg.Enabled() {
		ids = append(ids, a.ID())
	}
	assert.Equal(t, []string{"lifi", "oneclick", "skip", "zerox"}, ids)

	_, ok := reg.Get("debridge")
	assert.False(t, ok)
	_, ok = reg.Get("oneinch")
	assert.False(t, ok)

	oneinch, ok := reg.Descriptor("oneinch")
	require.True(t, ok)
	assert.False(t, oneinch.Configured)
	assert.False(t, oneinch.Enabled)
	assert.Equal(t, 10000, oneinch.TimeoutMs)
	assert.Equal(t, cfg.RateLimit, oneinch.RateLimit)

	zerox, ok := reg.Descriptor("zerox")
	require.True(t, ok)
	assert.True(t, zerox.Enabled)
	assert.Equal(t, 8000, zerox.TimeoutMs)
	assert.True(t, zerox.Capabilities.SameChain)
	assert.False(t, zerox.Capabilities.CrossChain)

	debridge, _ := reg.Descriptor("debridge")
	assert.True(t, debridge.Public)
	assert.True(t, debridge.Disabled)
	assert.False(t, debridge.Enabled)

	assert.Len(t, reg.Describe(), 6)
}

func TestUnconfiguredNeverQuotes(t *testing.T) {
	u := NewUnconfigured("oneinch", Capabilities{SameChain: true})

	routes, err := u.GetQuote(context.Background(), types.QuoteRequest{FromChain: "1", ToChain: "1"})
	assert.NoError(t, err)
	assert.Empty(t, routes)

	_, err = u.GetTx(context.Background(), "0xroute", types.ExecutionRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, types.FailureAuth, ClassOf(err))
}
