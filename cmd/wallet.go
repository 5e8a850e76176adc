package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ghostswap/pkg/session"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the wallet session",
	Long: `Connect, disconnect and inspect the wallet session.

The session survives restarts: after a connect, later commands restore it
without asking again until you disconnect explicitly.

Examples:
  ghostswap wallet connect
  ghostswap wallet status --json
  ghostswap wallet disconnect`,
}

var walletConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the wallet",
	Args:  cobra.NoArgs,
	Run:   runWalletConnect,
}

var walletDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the wallet and forget the session",
	Args:  cobra.NoArgs,
	Run:   runWalletDisconnect,
}

var walletStatusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"whoami"},
	Short:   "Show the wallet session",
	Args:    cobra.NoArgs,
	Run:     runWalletStatus,
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletConnectCmd, walletDisconnectCmd, walletStatusCmd)
}

func runWalletConnect(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	if view := a.session.View(); view.Affordance == session.AffordanceSession {
		printView(view, jsonOutput)
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = fmt.Sprintf(" Waiting for %s to approve...", a.wallet.Name())
		s.Start()
	}

	err := a.session.Connect(cmd.Context(), a.wallet)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		a.fail(err)
	}

	if !jsonOutput {
		color.Green("\n✓ Wallet connected!")
	}
	printView(a.session.View(), jsonOutput)
}

func runWalletDisconnect(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.Close()

	if err := a.session.Disconnect(cmd.Context(), a.wallet); err != nil {
		a.fail(err)
	}

	color.Green("\n✓ Wallet disconnected. The session will not be restored.\n")
}

func runWalletStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	printView(a.session.View(), jsonOutput)
}

func printView(view session.View, jsonOutput bool) {
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(view, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      WALLET")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Status:   %s\n", getColoredAffordance(view.Affordance))
	if view.Wallet != "" {
		fmt.Printf("  Wallet:   %s\n", view.Wallet)
	}
	if view.Address != "" {
		fmt.Printf("  Address:  %s\n", color.CyanString(view.ShortAddress))
		fmt.Printf("            %s\n", color.HiBlackString(view.Address))
	}
	if view.ExplorerURL != "" {
		fmt.Printf("  Explorer: %s\n", view.ExplorerURL)
	}

	switch view.Affordance {
	case session.AffordanceConnect:
		fmt.Println("\nConnect with:")
		color.Cyan("  ghostswap wallet connect")
	case session.AffordanceReconnecting:
		fmt.Println("\nWaiting for the wallet to restore the previous session.")
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func getColoredAffordance(affordance session.Affordance) string {
	label := strings.ToUpper(string(affordance))

	switch affordance {
	case session.AffordanceSession:
		return color.GreenString("CONNECTED")
	case session.AffordanceConnecting, session.AffordanceReconnecting:
		return color.YellowString(label)
	default:
		return color.RedString("DISCONNECTED")
	}
}
