package types

import "strings"

// Token is a static descriptor of a token supported by the swap program.
type Token struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
	ChainTokenID string `json:"chain_token_id"` // Aleo field literal, e.g. "1field"
	Icon         string `json:"icon,omitempty"`
	Color        string `json:"color,omitempty"`
}

// Tokens is the fixed token table.
var Tokens = []Token{
	{ID: "credits", Name: "Aleo Credits", Symbol: "ALEO", Decimals: 6, ChainTokenID: "1field", Icon: "◎", Color: "#a855f7"},
	{ID: "usdcx", Name: "USDCx", Symbol: "USDCx", Decimals: 6, ChainTokenID: "2field", Icon: "$", Color: "#2775ca"},
	{ID: "usad", Name: "USAD", Symbol: "USAD", Decimals: 6, ChainTokenID: "3field", Icon: "◈", Color: "#00d395"},
	{ID: "weth", Name: "Wrapped Ethereum", Symbol: "wETH", Decimals: 18, ChainTokenID: "4field", Icon: "Ξ", Color: "#627eea"},
	{ID: "wbtc", Name: "Wrapped Bitcoin", Symbol: "wBTC", Decimals: 8, ChainTokenID: "5field", Icon: "₿", Color: "#f7931a"},
}

// TokenByID finds a token in tokens by its internal id.
func TokenByID(tokens []Token, id string) (Token, bool) {
	for _, t := range tokens {
		if t.ID == id {
			return t, true
		}
	}
	return Token{}, false
}

// TokenBySymbol finds a token by symbol, case-insensitively. The internal id is
// accepted as well.
func TokenBySymbol(tokens []Token, symbol string) (Token, bool) {
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, symbol) || strings.EqualFold(t.ID, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// TokenByChainID finds a token by its on-chain field literal.
func TokenByChainID(tokens []Token, chainID string) (Token, bool) {
	for _, t := range tokens {
		if t.ChainTokenID == chainID {
			return t, true
		}
	}
	return Token{}, false
}
