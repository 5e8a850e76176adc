package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ghostswap/pkg/types"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens"},
	Short:   "List all supported tokens",
	Long: `List the tokens supported by the OTC program.

Examples:
  ghostswap list-tokens
  ghostswap list-tokens --symbol usd`,
	Args: cobra.NoArgs,
	Run:  runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	filtered := types.Tokens
	if filterSymbol != "" {
		var temp []types.Token
		for _, token := range filtered {
			if strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(filtered, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayTokens(filtered)
	}
}

func displayTokens(tokens []types.Token) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 70))

	for _, token := range tokens {
		fmt.Printf("  %s  %-8s  %-20s  %2d decimals  %s\n",
			token.Icon,
			color.YellowString(token.Symbol),
			token.Name,
			token.Decimals,
			color.HiBlackString(token.ChainTokenID))
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\nTotal: %d tokens\n\n", len(tokens))
}
