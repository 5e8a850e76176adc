package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ghostswap/pkg/amount"
	"ghostswap/pkg/link"
	"ghostswap/pkg/parser"
	"ghostswap/pkg/store"
	"ghostswap/pkg/types"
	"ghostswap/pkg/wallet"
)

var (
	// Offer creation flags
	offerExpiry int
	noConfirm   bool

	// Offer list flags
	offerStatusFilter string
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Create and manage trade offers",
	Long: `Create OTC offers and manage the ones you made.

An offer locks your tokens on chain and produces a claim link. Send the link to
your counterparty, then issue them a ticket so they can execute the swap.

Offers are kept locally across restarts together with a transaction history.`,
}

var offerCreateCmd = &cobra.Command{
	Use:   "create <amount> <token> for <amount> <token>",
	Short: "Create a new trade offer",
	Long: `Lock tokens in a new offer and print its claim link.

Examples:
  ghostswap offer create 12.5 ALEO for 100 USDCx
  ghostswap offer create 0.5 wBTC for 8 wETH --expiry 72
  ghostswap offer create 100 USAD for 99.5 USDCx --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runOfferCreate,
}

var offerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your offers",
	Long: `Display every offer stored locally with its current status.

Examples:
  ghostswap offer list
  ghostswap offer list --status pending
  ghostswap offer list --json`,
	Args: cobra.NoArgs,
	Run:  runOfferList,
}

var offerViewCmd = &cobra.Command{
	Use:   "view <offer-id>",
	Short: "View details of an offer",
	Long: `Display an offer with its claim link. A unique prefix of the id is enough.

Examples:
  ghostswap offer view at1qyz
  ghostswap offer view at1qyz --json`,
	Args: cobra.ExactArgs(1),
	Run:  runOfferView,
}

var offerLinkCmd = &cobra.Command{
	Use:   "link <offer-id>",
	Short: "Print the claim link of an offer",
	Args:  cobra.ExactArgs(1),
	Run:   runOfferLink,
}

var offerTicketCmd = &cobra.Command{
	Use:   "ticket <offer-id> <taker-address>",
	Short: "Issue a swap ticket to a taker",
	Long: `Allow a taker to execute your offer. After the ticket is issued the offer
record changes on chain, so the command waits for the new record and prints a
regenerated link for the taker.

Examples:
  ghostswap offer ticket at1qyz aleo1...`,
	Args: cobra.ExactArgs(2),
	Run:  runOfferTicket,
}

var offerCancelCmd = &cobra.Command{
	Use:   "cancel <offer-id>",
	Short: "Cancel an offer and reclaim the locked tokens",
	Args:  cobra.ExactArgs(1),
	Run:   runOfferCancel,
}

func init() {
	rootCmd.AddCommand(offerCmd)
	offerCmd.AddCommand(offerCreateCmd, offerListCmd, offerViewCmd, offerLinkCmd, offerTicketCmd, offerCancelCmd)

	offerCreateCmd.Flags().IntVar(&offerExpiry, "expiry", 24, "Hours until the offer expires")
	offerCreateCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	offerCancelCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")

	offerListCmd.Flags().StringVar(&offerStatusFilter, "status", "", "Filter by status (pending, fulfilled, cancelled, expired)")
}

func runOfferCreate(cmd *cobra.Command, args []string) {
	req, err := parser.ParseOfferCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	resolved, err := parser.Resolve(req, types.Tokens)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	if !jsonOutput {
		displayOfferDraft(resolved, a.cfg.Fees[wallet.FnCreate])
		if !noConfirm && !confirm("Create this offer?") {
			fmt.Println("\nOffer not created.")
			return
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Creating offer..."
		s.Start()
	}

	offer, shareURL, err := a.orch.CreateOffer(cmd.Context(),
		resolved.MakerToken, resolved.MakerAmount,
		resolved.TakerToken, resolved.TakerAmount,
		offerExpiry)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"offer": offer,
			"url":   shareURL,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	color.Green("\n✓ Offer created!")
	displayOffer(offer, shareURL)

	fmt.Println("Share the link, then issue a ticket to your counterparty:")
	color.Cyan("  ghostswap offer ticket %s <taker-address>\n", offer.OfferID)
}

func runOfferList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	now := time.Now()
	var offers []types.TradeOffer
	if offerStatusFilter != "" {
		offers = a.store.OffersByStatus(types.OfferStatus(strings.ToLower(offerStatusFilter)), now)
	} else {
		offers = a.store.Offers()
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(offers, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(offers) == 0 {
		color.Yellow("No offers found.\n")
		fmt.Println("\nCreate a new offer with:")
		color.Cyan("  ghostswap offer create <amount> <token> for <amount> <token>\n")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                        TRADE OFFERS")
	fmt.Println(strings.Repeat("=", 100))

	nowMs := types.NowMillis(now)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tGIVE\tGET\tSTATUS\tEXPIRES\tLINK")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, o := range offers {
		status := o.EffectiveStatus(nowMs)
		expires := "-"
		if status == types.OfferPending {
			expires = o.TimeRemaining(now)
		}
		linkState := "initial"
		if o.RecordPlaintext != "" {
			linkState = "ticketed"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			wallet.ShortenAddress(o.OfferID),
			formatAmount(o.MakerAmount, o.MakerToken),
			formatAmount(o.TakerAmount, o.TakerToken),
			getColoredOfferStatus(status),
			expires,
			linkState)
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 100) + "\n")
}

func runOfferView(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	offer, err := findOffer(a.store, args[0])
	if err != nil {
		a.fail(err)
	}
	shareURL, err := link.ShareableURL(a.cfg.Origin, &offer)
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"offer":  offer,
			"status": offer.EffectiveStatus(types.NowMillis(time.Now())),
			"url":    shareURL,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayOffer(&offer, shareURL)
	displayOfferHistory(a.store, offer.OfferID)
}

func runOfferLink(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	offer, err := findOffer(a.store, args[0])
	if err != nil {
		a.fail(err)
	}
	shareURL, err := link.ShareableURL(a.cfg.Origin, &offer)
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(map[string]string{"url": shareURL}, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println(shareURL)
	if offer.RecordPlaintext == "" {
		color.Yellow("\nThis link does not carry the offer record yet. Issue a ticket to make it executable.\n")
	}
}

func runOfferTicket(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	taker := strings.TrimSpace(args[1])

	a := mustApp(cmd)
	defer a.Close()

	offer, err := findOffer(a.store, args[0])
	if err != nil {
		a.fail(err)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Issuing ticket..."
		s.Start()
	}

	txID, err := a.orch.IssueTicket(cmd.Context(), offer, taker)
	if err != nil {
		if !jsonOutput {
			s.Stop()
		}
		a.fail(err)
	}

	if !jsonOutput {
		s.Suffix = " Waiting for the updated offer record..."
	}
	a.orch.Wait()
	if !jsonOutput {
		s.Stop()
	}

	updated, err := a.store.Offer(offer.OfferID)
	if err != nil {
		a.fail(err)
	}
	refreshed := updated.RecordPlaintext != "" && updated.RecordPlaintext != offer.RecordPlaintext
	shareURL, err := link.ShareableURL(a.cfg.Origin, &updated)
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"transaction_id": txID,
			"taker":          taker,
			"refreshed":      refreshed,
			"url":            shareURL,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	color.Green("\n✓ Ticket issued to %s", wallet.ShortenAddress(taker))
	fmt.Printf("  Transaction ID: %s\n", color.CyanString(txID))

	if !refreshed {
		color.Yellow("\nThe offer record has not been updated yet. Regenerate the link once the ticket confirms:")
		color.Cyan("  ghostswap offer link %s\n", offer.OfferID)
		return
	}

	fmt.Println("\nSend this link to the taker:")
	color.Cyan("  %s\n", shareURL)
}

func runOfferCancel(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	offer, err := findOffer(a.store, args[0])
	if err != nil {
		a.fail(err)
	}

	if !jsonOutput && !noConfirm {
		fmt.Printf("\nCancel offer %s and reclaim %s?", wallet.ShortenAddress(offer.OfferID), formatAmount(offer.MakerAmount, offer.MakerToken))
		if !confirm("") {
			fmt.Println("\nOffer kept.")
			return
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Cancelling offer..."
		s.Start()
	}

	txID, err := a.orch.CancelOffer(cmd.Context(), offer)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		a.fail(err)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(map[string]string{"transaction_id": txID, "offer_id": offer.OfferID}, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	color.Green("\n✓ Offer cancelled. %s returned to your wallet.", formatAmount(offer.MakerAmount, offer.MakerToken))
	fmt.Printf("  Transaction ID: %s\n\n", color.CyanString(txID))
}

// findOffer resolves a full offer id or a unique prefix of one.
func findOffer(st *store.Store, idOrPrefix string) (types.TradeOffer, error) {
	offer, err := st.Offer(idOrPrefix)
	if err == nil {
		return offer, nil
	}
	if !errors.Is(err, store.ErrOfferNotFound) {
		return types.TradeOffer{}, err
	}

	var matches []types.TradeOffer
	for _, o := range st.Offers() {
		if strings.HasPrefix(o.OfferID, idOrPrefix) {
			matches = append(matches, o)
		}
	}
	switch len(matches) {
	case 0:
		return types.TradeOffer{}, fmt.Errorf("%w: %s", store.ErrOfferNotFound, idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return types.TradeOffer{}, fmt.Errorf("offer id prefix %q is ambiguous (%d matches)", idOrPrefix, len(matches))
	}
}

func formatAmount(base string, token types.Token) string {
	display, err := amount.Humanize(base, token.Decimals)
	if err != nil {
		display = base
	}
	return display + " " + token.Symbol
}

func formatFee(microcredits uint64) string {
	display, _ := amount.FormatUnits(fmt.Sprint(microcredits), 6)
	return display + " ALEO"
}

func displayOfferDraft(offer *parser.Offer, fee uint64) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     NEW OFFER")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  You give:     %s\n", color.YellowString(formatAmount(offer.MakerAmount, offer.MakerToken)))
	fmt.Printf("  You receive:  %s\n", color.YellowString(formatAmount(offer.TakerAmount, offer.TakerToken)))
	if rate, err := amount.Rate(offer.MakerAmount, offer.MakerToken.Decimals, offer.TakerAmount, offer.TakerToken.Decimals); err == nil {
		fmt.Printf("  Rate:         1 %s = %s %s\n", offer.MakerToken.Symbol, rate, offer.TakerToken.Symbol)
	}
	fmt.Printf("  Expires in:   %d hours\n", offerExpiry)
	fmt.Printf("  Network fee:  %s\n", formatFee(fee))

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displayOffer(offer *types.TradeOffer, shareURL string) {
	now := time.Now()
	status := offer.EffectiveStatus(types.NowMillis(now))

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     TRADE OFFER")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Offer ID:     %s\n", color.CyanString(offer.OfferID))
	fmt.Printf("  Maker:        %s\n", wallet.ShortenAddress(offer.MakerAddress))
	fmt.Printf("  Gives:        %s\n", color.YellowString(formatAmount(offer.MakerAmount, offer.MakerToken)))
	fmt.Printf("  Wants:        %s\n", color.YellowString(formatAmount(offer.TakerAmount, offer.TakerToken)))
	if rate, err := amount.Rate(offer.MakerAmount, offer.MakerToken.Decimals, offer.TakerAmount, offer.TakerToken.Decimals); err == nil {
		fmt.Printf("  Rate:         1 %s = %s %s\n", offer.MakerToken.Symbol, rate, offer.TakerToken.Symbol)
	}
	fmt.Printf("  Status:       %s\n", getColoredOfferStatus(status))
	fmt.Printf("  Created:      %s\n", time.UnixMilli(offer.CreatedAt).Format("2006-01-02 15:04:05"))
	if status == types.OfferPending {
		fmt.Printf("  Expires in:   %s\n", offer.TimeRemaining(now))
	}

	if shareURL != "" {
		fmt.Println("\n  Claim link:")
		color.Cyan("  %s", shareURL)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displayOfferHistory(st *store.Store, offerID string) {
	var related []types.TransactionRecord
	for _, tx := range st.Transactions() {
		if tx.OfferID == offerID {
			related = append(related, tx)
		}
	}
	if len(related) == 0 {
		return
	}

	fmt.Println("Transactions:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, tx := range related {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			time.UnixMilli(tx.Timestamp).Format("2006-01-02 15:04"),
			tx.Kind,
			getColoredTxStatus(tx.Status),
			color.HiBlackString(tx.ID))
	}
	w.Flush()
	fmt.Println()
}

func getColoredOfferStatus(status types.OfferStatus) string {
	label := strings.ToUpper(string(status))

	switch status {
	case types.OfferFulfilled:
		return color.GreenString(label)
	case types.OfferPending:
		return color.YellowString(label)
	case types.OfferCancelled, types.OfferExpired:
		return color.RedString(label)
	default:
		return label
	}
}

func getColoredTxStatus(status types.TxStatus) string {
	label := strings.ToUpper(string(status))

	switch status {
	case types.TxConfirmed:
		return color.GreenString(label)
	case types.TxPending:
		return color.YellowString(label)
	case types.TxFailed:
		return color.RedString(label)
	default:
		return label
	}
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	if question != "" {
		fmt.Printf("\n%s", question)
	}
	fmt.Print(" (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
