package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/types"
)

var (
	ErrInvalidCommand = errors.New("invalid offer command")
	ErrUnknownToken   = errors.New("unknown token")

	// <amount> <token> FOR <amount> <token>
	offerPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)\s+([A-Z0-9]+)\s+(?:FOR|TO)\s+(\d+\.?\d*|\.\d+)\s+([A-Z0-9]+)$`)
)

// ParseOfferCommand parses a natural language offer command
// Examples:
//   - "offer 12.5 ALEO for 100 USDCx"
//   - "0.5 wBTC for 8 wETH"
//   - "sell 100 USAD for 99.5 USDCx"
func ParseOfferCommand(command string) (*types.OfferRequest, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")

	command = strings.TrimPrefix(command, "OFFER ")
	command = strings.TrimPrefix(command, "SELL ")

	matches := offerPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("%w: expected '<amount> <token> for <amount> <token>' (e.g., '12.5 ALEO for 100 USDCx')", ErrInvalidCommand)
	}

	return &types.OfferRequest{
		MakerAmount: matches[1],
		MakerToken:  matches[2],
		TakerAmount: matches[3],
		TakerToken:  matches[4],
	}, nil
}

// ValidateOfferRequest validates that an offer request has all required fields
func ValidateOfferRequest(req *types.OfferRequest) error {
	if req.MakerAmount == "" || req.TakerAmount == "" {
		return fmt.Errorf("%w: both amounts are required", ErrInvalidCommand)
	}
	if req.MakerToken == "" {
		return fmt.Errorf("%w: offered token is required", ErrInvalidCommand)
	}
	if req.TakerToken == "" {
		return fmt.Errorf("%w: requested token is required", ErrInvalidCommand)
	}
	return nil
}

// NormalizeTokenSymbol maps common aliases onto the symbols of the token table
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"CREDITS": "ALEO",
		"USDC":    "USDCX",
		"ETH":     "WETH",
		"BTC":     "WBTC",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}

// Offer is a parsed offer resolved against the token table, with amounts in
// base units.
type Offer struct {
	MakerToken  types.Token
	MakerAmount string
	TakerToken  types.Token
	TakerAmount string
}

// Resolve looks up the tokens of req in tokens and converts both amounts to
// base units.
func Resolve(req *types.OfferRequest, tokens []types.Token) (*Offer, error) {
	if err := ValidateOfferRequest(req); err != nil {
		return nil, err
	}

	makerToken, ok := types.TokenBySymbol(tokens, NormalizeTokenSymbol(req.MakerToken))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, req.MakerToken)
	}
	takerToken, ok := types.TokenBySymbol(tokens, NormalizeTokenSymbol(req.TakerToken))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, req.TakerToken)
	}
	if makerToken.ID == takerToken.ID {
		return nil, fmt.Errorf("%w: cannot swap %s for itself", ErrInvalidCommand, makerToken.Symbol)
	}

	makerAmount, err := amount.ToBaseUnits(req.MakerAmount, makerToken.Decimals)
	if err != nil {
		return nil, err
	}
	takerAmount, err := amount.ToBaseUnits(req.TakerAmount, takerToken.Decimals)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive(makerAmount) || !amount.IsPositive(takerAmount) {
		return nil, fmt.Errorf("%w: amounts must be greater than zero", amount.ErrInvalidAmount)
	}

	return &Offer{
		MakerToken:  makerToken,
		MakerAmount: makerAmount,
		TakerToken:  takerToken,
		TakerAmount: takerAmount,
	}, nil
}
