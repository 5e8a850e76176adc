package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ghostswap/pkg/session"
	"ghostswap/pkg/watcher"
)

var watchInterval int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the wallet session and your offers",
	Long: `Run in the foreground and report wallet connection changes, confirmed
transactions and offers as they expire. With a bridge wallet the signer is
polled for connection changes.

Press Ctrl+C to stop.

Examples:
  ghostswap watch
  ghostswap watch --interval 30`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().IntVar(&watchInterval, "interval", 10, "Transaction check interval in seconds")
}

func runWatch(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	a := mustApp(cmd)
	defer a.Close()

	views := make(chan session.View, 16)
	viewSub := a.session.Subscribe(views)
	defer viewSub.Unsubscribe()

	updates := make(chan watcher.Update, 16)
	w := watcher.New(a.orch, a.store)
	w.SetInterval(time.Duration(watchInterval) * time.Second)
	updateSub := w.Subscribe(updates)
	defer updateSub.Unsubscribe()

	if a.bridge != nil {
		go a.bridge.Watch(ctx, a.cfg.PollInterval)
	}
	if err := w.Start(ctx); err != nil {
		a.fail(err)
	}
	defer w.Stop()

	fmt.Printf("\nWatching wallet %s\n", color.CyanString(a.wallet.Name()))
	fmt.Printf("Checking transactions every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)
	printViewLine(a.session.View())

	for {
		select {
		case <-ctx.Done():
			color.Yellow("\nReceived shutdown signal. Stopping...")
			return
		case view := <-views:
			printViewLine(view)
		case update := <-updates:
			printUpdate(update)
		}
	}
}

func printViewLine(view session.View) {
	stamp := color.HiBlackString(time.Now().Format("15:04:05"))
	switch view.Affordance {
	case session.AffordanceSession, session.AffordanceReconnecting:
		fmt.Printf("%s  wallet %s  %s%s\n", stamp, getColoredAffordance(view.Affordance), view.ShortAddress, suppressNote(view))
	default:
		fmt.Printf("%s  wallet %s%s\n", stamp, getColoredAffordance(view.Affordance), suppressNote(view))
	}
}

func suppressNote(view session.View) string {
	if !view.Suppressing {
		return ""
	}
	return color.HiBlackString("  (navigation, ignoring disconnects)")
}

func printUpdate(update watcher.Update) {
	stamp := color.HiBlackString(update.At.Format("15:04:05"))
	if update.Err != nil {
		fmt.Printf("%s  %s\n", stamp, color.RedString("sync failed: %v", update.Err))
	}
	if update.Synced > 0 {
		fmt.Printf("%s  %s\n", stamp, color.GreenString("%d transaction(s) confirmed or failed", update.Synced))
	}
	for _, offer := range update.Expired {
		fmt.Printf("%s  offer %s %s (%s for %s)\n", stamp,
			offer.OfferID,
			getColoredOfferStatus(offer.EffectiveStatus(offer.ExpiresAt+1)),
			formatAmount(offer.MakerAmount, offer.MakerToken),
			formatAmount(offer.TakerAmount, offer.TakerToken))
	}
}
