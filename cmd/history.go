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

	"ghostswap/pkg/wallet"
)

var historySync bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the local transaction history",
	Long: `Display the most recent program calls made from this machine.

Examples:
  ghostswap history
  ghostswap history --sync
  ghostswap history --json`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&historySync, "sync", false, "Refresh pending transactions from the wallet first")
}

func runHistory(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	if historySync {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		if !jsonOutput {
			s.Suffix = " Checking pending transactions..."
			s.Start()
		}
		updated, err := a.orch.SyncTransactions(cmd.Context())
		if !jsonOutput {
			s.Stop()
		}
		if err != nil {
			a.fail(err)
		}
		if !jsonOutput && updated > 0 {
			color.Green("\n✓ %d transaction(s) updated", updated)
		}
	}

	txs := a.store.Transactions()
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(txs, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(txs) == 0 {
		color.Yellow("\nNo transactions yet.\n")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                    TRANSACTION HISTORY")
	fmt.Println(strings.Repeat("=", 100))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nTIME\tTYPE\tSTATUS\tOFFER\tTRANSACTION")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, tx := range txs {
		offer := "-"
		if tx.OfferID != "" {
			offer = wallet.ShortenAddress(tx.OfferID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			time.UnixMilli(tx.Timestamp).Format("2006-01-02 15:04:05"),
			tx.Kind,
			getColoredTxStatus(tx.Status),
			offer,
			color.HiBlackString(tx.ID))
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 100) + "\n")
}
