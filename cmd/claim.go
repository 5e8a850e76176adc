package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/link"
	"ghostswap/pkg/types"
	"ghostswap/pkg/wallet"
)

var (
	claimExecute bool
	claimAmount  string
)

var claimCmd = &cobra.Command{
	Use:   "claim <link>",
	Short: "Inspect or execute an offer from a claim link",
	Long: `Decode a claim link and show the offer it carries. With --execute the swap
is settled using the ticket the maker issued to your wallet.

The link may be a full URL or the bare ghost_v2_ token.

Examples:
  ghostswap claim https://ghostswap.app/claim/ghost_v2_eyJ2Ijoi...
  ghostswap claim ghost_v2_eyJ2Ijoi... --execute
  ghostswap claim ghost_v2_eyJ2Ijoi... --execute --amount 101`,
	Args: cobra.ExactArgs(1),
	Run:  runClaim,
}

func init() {
	rootCmd.AddCommand(claimCmd)

	claimCmd.Flags().BoolVar(&claimExecute, "execute", false, "Execute the swap")
	claimCmd.Flags().StringVar(&claimAmount, "amount", "", "Amount to pay (defaults to the asked amount)")
	claimCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runClaim(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	token, ok := link.ExtractToken(args[0])
	if !ok {
		printError(link.ErrInvalidLinkFormat)
		os.Exit(1)
	}
	offer, err := link.Decode(token, types.Tokens)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	validErr := link.Validate(offer, time.Now())

	if !claimExecute {
		if jsonOutput {
			output := map[string]interface{}{
				"offer":      offer,
				"valid":      validErr == nil,
				"executable": offer.RecordPlaintext != "",
			}
			if validErr != nil {
				output["error"] = validErr.Error()
			}
			jsonData, _ := json.MarshalIndent(output, "", "  ")
			fmt.Println(string(jsonData))
			return
		}

		displayOffer(offer, "")
		switch {
		case validErr != nil:
			color.Red("This offer cannot be executed: %v\n", validErr)
		case offer.RecordPlaintext == "":
			color.Yellow("The maker has not issued a ticket for this link yet. Ask for the regenerated link.\n")
		default:
			fmt.Println("Execute the swap with:")
			color.Cyan("  ghostswap claim %s --execute\n", token)
		}
		return
	}

	if validErr != nil {
		printError(validErr)
		os.Exit(1)
	}

	pay := offer.TakerAmount
	if claimAmount != "" {
		pay, err = amount.ToBaseUnits(claimAmount, offer.TakerToken.Decimals)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
	}

	a := mustApp(cmd)
	defer a.Close()

	if !jsonOutput && !noConfirm {
		fmt.Printf("\nPay %s for %s (network fee %s)?",
			formatAmount(pay, offer.TakerToken),
			formatAmount(offer.MakerAmount, offer.MakerToken),
			formatFee(a.cfg.Fees[wallet.FnSwap]))
		if !confirm("") {
			fmt.Println("\nSwap not executed.")
			return
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Executing swap..."
		s.Start()
	}

	txID, err := a.orch.ExecuteSwap(cmd.Context(), *offer, offer.TakerToken, pay)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		output := map[string]string{
			"transaction_id": txID,
			"offer_id":       offer.OfferID,
			"status":         string(types.OfferFulfilled),
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	color.Green("\n✓ Swap executed!")
	fmt.Printf("  Received:       %s\n", color.YellowString(formatAmount(offer.MakerAmount, offer.MakerToken)))
	fmt.Printf("  Paid:           %s\n", formatAmount(pay, offer.TakerToken))
	fmt.Printf("  Transaction ID: %s\n", color.CyanString(txID))
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
