package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nostrdice/nostrdice/internal/fraudproof"
	"github.com/nostrdice/nostrdice/internal/sqlitestore"
)

var fraudProofDataDir string

func init() {
	cmd := &cobra.Command{
		Use:   "fraud-proof <payment_hash>",
		Short: "Print the public verification tuple for a settled bet",
		Long:  "Primary surface for spec §4.7: dumps (commitment_event_id, revealed_nonce, roller_pubkey, memo hash, index, multiplier_note_id, paid/payout invoices and preimages) as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE:  runFraudProof,
	}
	cmd.Flags().StringVar(&fraudProofDataDir, "data-dir", "./data", "Bet Store location")
	rootCmd.AddCommand(cmd)
}

func runFraudProof(cmd *cobra.Command, args []string) error {
	b, err := hex.DecodeString(args[0])
	if err != nil || len(b) != 32 {
		return fmt.Errorf("payment_hash must be 64 hex characters")
	}
	var hash [32]byte
	copy(hash[:], b)

	store, err := sqlitestore.New(filepath.Join(fraudProofDataDir, "nostrdice.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	surface := fraudproof.New(store, store)
	proof, err := surface.Build(cmd.Context(), hash)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(proof)
}
