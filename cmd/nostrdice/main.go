// Command nostrdice runs the NostrDice provably-fair dice server: the
// commit-reveal nonce round manager, zap ingestor, roll & settlement
// engine, and payout dispatcher described in SPEC_FULL.md. CLI surface
// follows the teacher's cobra/pflag shape (grounded on
// push-validator-manager-go/cmd/push-validator-manager/root_cobra.go):
// persistent flags feeding a loaded config, subcommands implementing
// operations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nostrdice",
	Short: "NostrDice provably-fair dice server",
	Long:  "Run the NostrDice commit-reveal dice protocol: nonce rounds, zap ingestion, roll computation, and Lightning payouts.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
