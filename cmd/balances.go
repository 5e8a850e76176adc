package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/parser"
	"ghostswap/pkg/types"
	"ghostswap/pkg/wallet"
)

var balancesCmd = &cobra.Command{
	Use:     "balances",
	Aliases: []string{"balance", "bal"},
	Short:   "Show token balances of the connected wallet",
	Args:    cobra.NoArgs,
	Run:     runBalances,
}

var mintCmd = &cobra.Command{
	Use:   "mint <amount> <token>",
	Short: "Mint test tokens to the connected wallet",
	Long: `Mint test tokens on the OTC program.

Examples:
  ghostswap mint 100 ALEO
  ghostswap mint 2.5 wETH`,
	Args: cobra.ExactArgs(2),
	Run:  runMint,
}

func init() {
	rootCmd.AddCommand(balancesCmd, mintCmd)
}

func runBalances(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching records..."
		s.Start()
	}

	balances, err := a.orch.Balances(cmd.Context())
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		output := make(map[string]string, len(balances))
		for id, b := range balances {
			output[id] = b.String()
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      BALANCES")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  %s\n\n", color.HiBlackString(a.wallet.Address()))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, token := range types.Tokens {
		display, _ := amount.Humanize(balances[token.ID].String(), token.Decimals)
		fmt.Fprintf(w, "  %s\t%s\t\n", display, color.YellowString(token.Symbol))
	}
	w.Flush()

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func runMint(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	token, ok := types.TokenBySymbol(types.Tokens, parser.NormalizeTokenSymbol(args[1]))
	if !ok {
		printError(fmt.Errorf("%w: %s", parser.ErrUnknownToken, args[1]))
		os.Exit(1)
	}
	base, err := amount.ToBaseUnits(args[0], token.Decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a := mustApp(cmd)
	defer a.Close()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = fmt.Sprintf(" Minting %s...", formatAmount(base, token))
		s.Start()
	}

	txID, err := a.orch.Mint(cmd.Context(), token.ID, base)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		output := map[string]string{
			"transaction_id": txID,
			"token":          token.ID,
			"amount":         base,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	color.Green("\n✓ Minted %s", formatAmount(base, token))
	fmt.Printf("  Transaction ID: %s\n", color.CyanString(txID))
	fmt.Printf("  Network fee:    %s\n\n", formatFee(a.cfg.Fees[wallet.FnMint]))
}
