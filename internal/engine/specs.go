package engine

import "github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"

// defaultSpecs is the built-in symbol reference data. Unknown symbols
// fall back to a standard 100k FX contract.
var defaultSpecs = map[string]model.SymbolSpec{
	"EURUSD": {Symbol: "EURUSD", ContractSize: 100000, Digits: 5, PipSize: 0.0001},
	"GBPUSD": {Symbol: "GBPUSD", ContractSize: 100000, Digits: 5, PipSize: 0.0001},
	"AUDUSD": {Symbol: "AUDUSD", ContractSize: 100000, Digits: 5, PipSize: 0.0001},
	"NZDUSD": {Symbol: "NZDUSD", ContractSize: 100000, Digits: 5, PipSize: 0.0001},
	"USDCHF": {Symbol: "USDCHF", ContractSize: 100000, Digits: 5, PipSize: 0.0001},
	"USDCAD": {Symbol: "USDCAD", ContractSize: 100000, Digits: 5, PipSize: 0.0001},
	"USDJPY": {Symbol: "USDJPY", ContractSize: 100000, Digits: 3, PipSize: 0.01},
	"EURJPY": {Symbol: "EURJPY", ContractSize: 100000, Digits: 3, PipSize: 0.01},
	"GBPJPY": {Symbol: "GBPJPY", ContractSize: 100000, Digits: 3, PipSize: 0.01},
	"XAUUSD": {Symbol: "XAUUSD", ContractSize: 100, Digits: 2, PipSize: 0.01},
	"XAGUSD": {Symbol: "XAGUSD", ContractSize: 5000, Digits: 3, PipSize: 0.001},
}

// Spec returns the contract metadata for a symbol.
func Spec(symbol string) model.SymbolSpec {
	if s, ok := defaultSpecs[symbol]; ok {
		return s
	}
	return model.SymbolSpec{Symbol: symbol, ContractSize: 100000, Digits: 5, PipSize: 0.0001}
}
