package engine

// Converter turns a raw quote-currency PnL into account currency.
// The default implementation is a deliberate approximation: static
// tables instead of live cross rates, so a future implementation can
// swap in real conversion without touching the engine.
type Converter interface {
	ToAccountCurrency(symbol string, raw float64, price float64) float64
}

// StaticConverter approximates conversion into a USD account:
// USD-quoted pairs need none, USD-based pairs divide by the current
// price, and JPY/cross pairs use a static rate table.
type StaticConverter struct {
	Account string             // account currency, e.g. "USD"
	Rates   map[string]float64 // quote currency -> account units per quote unit
}

// NewStaticConverter builds the default USD-account converter.
func NewStaticConverter() *StaticConverter {
	return &StaticConverter{
		Account: "USD",
		Rates: map[string]float64{
			"JPY": 0.0067,
			"CHF": 1.10,
			"CAD": 0.73,
			"GBP": 1.27,
			"EUR": 1.08,
			"AUD": 0.66,
			"NZD": 0.61,
		},
	}
}

// ToAccountCurrency converts raw PnL expressed in the symbol's quote
// currency into account currency.
func (c *StaticConverter) ToAccountCurrency(symbol string, raw float64, price float64) float64 {
	if len(symbol) < 6 {
		return raw
	}
	base, quote := symbol[:3], symbol[len(symbol)-3:]

	if quote == c.Account {
		return raw
	}
	if base == c.Account && price > 0 {
		return raw / price
	}
	if rate, ok := c.Rates[quote]; ok {
		return raw * rate
	}
	if price > 0 {
		return raw / price
	}
	return raw
}
