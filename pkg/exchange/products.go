package exchange

import "sort"

// ProductMap is an immutable two-way mapping between generic product IDs
// ("BTC-USD") and exchange-native symbols ("BTCUSDT"). Build one at startup
// and share it freely; lookups never mutate.
type ProductMap struct {
	toExchange map[string]string
	toGeneric  map[string]string
}

// NewProductMap builds a map from generic product to exchange symbol
func NewProductMap(pairs map[string]string) *ProductMap {
	pm := &ProductMap{
		toExchange: make(map[string]string, len(pairs)),
		toGeneric:  make(map[string]string, len(pairs)),
	}
	for generic, symbol := range pairs {
		pm.toExchange[generic] = symbol
		pm.toGeneric[symbol] = generic
	}
	return pm
}

// ExchangeSymbol returns the exchange symbol for a generic product
func (pm *ProductMap) ExchangeSymbol(generic string) (string, bool) {
	s, ok := pm.toExchange[generic]
	return s, ok
}

// GenericProduct returns the generic product for an exchange symbol
func (pm *ProductMap) GenericProduct(symbol string) (string, bool) {
	g, ok := pm.toGeneric[symbol]
	return g, ok
}

// Products returns the generic products, sorted
func (pm *ProductMap) Products() []string {
	out := make([]string, 0, len(pm.toExchange))
	for g := range pm.toExchange {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
