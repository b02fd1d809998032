package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductMapRoundTrip(t *testing.T) {
	pm := NewProductMap(map[string]string{
		"BTC-USD": "BTCUSDT",
		"ETH-USD": "ETHUSDT",
	})

	sym, ok := pm.ExchangeSymbol("BTC-USD")
	assert.True(t, ok)
	assert.Equal(t, "BTCUSDT", sym)

	gen, ok := pm.GenericProduct("ETHUSDT")
	assert.True(t, ok)
	assert.Equal(t, "ETH-USD", gen)

	_, ok = pm.ExchangeSymbol("DOGE-USD")
	assert.False(t, ok)

	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, pm.Products())
}

func TestSplitProducts(t *testing.T) {
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, splitProducts("BTC-USD, ETH-USD"))
	assert.Equal(t, []string{"BTC-USD"}, splitProducts("BTC-USD,"))
	assert.Nil(t, splitProducts(""))
}
