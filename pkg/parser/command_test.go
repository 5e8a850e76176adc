package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/types"
)

func TestParseOfferCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    *types.OfferRequest
		wantErr bool
	}{
		{
			name:    "plain",
			command: "12.5 ALEO for 100 USDCx",
			want:    &types.OfferRequest{MakerAmount: "12.5", MakerToken: "ALEO", TakerAmount: "100", TakerToken: "USDCX"},
		},
		{
			name:    "offer prefix and extra spaces",
			command: "  offer  0.5   wBTC for 8 wETH ",
			want:    &types.OfferRequest{MakerAmount: "0.5", MakerToken: "WBTC", TakerAmount: "8", TakerToken: "WETH"},
		},
		{
			name:    "sell with to",
			command: "sell .25 usad to 1 usdcx",
			want:    &types.OfferRequest{MakerAmount: ".25", MakerToken: "USAD", TakerAmount: "1", TakerToken: "USDCX"},
		},
		{name: "missing taker amount", command: "12.5 ALEO for USDCx", wantErr: true},
		{name: "negative", command: "-1 ALEO for 1 USDCx", wantErr: true},
		{name: "empty", command: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOfferCommand(tt.command)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTokenSymbol(t *testing.T) {
	require.Equal(t, "WETH", NormalizeTokenSymbol(" eth "))
	require.Equal(t, "ALEO", NormalizeTokenSymbol("credits"))
	require.Equal(t, "USAD", NormalizeTokenSymbol("usad"))
}

func TestResolve(t *testing.T) {
	req, err := ParseOfferCommand("12.5 ALEO for 100 USDC")
	require.NoError(t, err)

	offer, err := Resolve(req, types.Tokens)
	require.NoError(t, err)
	require.Equal(t, "credits", offer.MakerToken.ID)
	require.Equal(t, "12500000", offer.MakerAmount)
	require.Equal(t, "usdcx", offer.TakerToken.ID)
	require.Equal(t, "100000000", offer.TakerAmount)

	req, err = ParseOfferCommand("1 btc for 15 eth")
	require.NoError(t, err)
	offer, err = Resolve(req, types.Tokens)
	require.NoError(t, err)
	require.Equal(t, "100000000", offer.MakerAmount)
	require.Equal(t, "15000000000000000000", offer.TakerAmount)
}

func TestResolveErrors(t *testing.T) {
	_, err := Resolve(&types.OfferRequest{MakerAmount: "1", MakerToken: "DOGE", TakerAmount: "1", TakerToken: "ALEO"}, types.Tokens)
	require.ErrorIs(t, err, ErrUnknownToken)

	_, err = Resolve(&types.OfferRequest{MakerAmount: "1", MakerToken: "ALEO", TakerAmount: "1", TakerToken: "credits"}, types.Tokens)
	require.ErrorIs(t, err, ErrInvalidCommand)

	_, err = Resolve(&types.OfferRequest{MakerAmount: "0", MakerToken: "ALEO", TakerAmount: "1", TakerToken: "USAD"}, types.Tokens)
	require.ErrorIs(t, err, amount.ErrInvalidAmount)

	// Below one base unit truncates to zero.
	_, err = Resolve(&types.OfferRequest{MakerAmount: "0.0000001", MakerToken: "ALEO", TakerAmount: "1", TakerToken: "USAD"}, types.Tokens)
	require.ErrorIs(t, err, amount.ErrInvalidAmount)

	_, err = Resolve(&types.OfferRequest{MakerToken: "ALEO", TakerAmount: "1", TakerToken: "USAD"}, types.Tokens)
	require.ErrorIs(t, err, ErrInvalidCommand)
}
