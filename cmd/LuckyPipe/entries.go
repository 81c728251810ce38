package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List lucky draw entries from the ledger",
		Args:  cobra.NoArgs,
		RunE:  a.runEntries,
	}
	cmd.Flags().String("phone", "", "only entries for this phone number")
	cmd.Flags().String("status", "", "only entries with this status (approved, pending, rejected, applied)")
	cmd.Flags().Uint64("limit", 0, "maximum number of entries (0 for all)")
	cmd.Flags().Bool("json", false, "print entries as JSON")
	return cmd
}

func (a *app) runEntries(cmd *cobra.Command, _ []string) error {
	phone, _ := cmd.Flags().GetString("phone")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetUint64("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	filter := store.EntryFilter{PhoneNumber: phone, Status: models.EntryStatus(status), Limit: limit}
	if filter.Status != "" && !models.IsValidEntryStatus(filter.Status) {
		return fmt.Errorf("invalid status %q", status)
	}

	st, err := store.Open(cmd.Context(), a.cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	entries, err := st.ListEntries(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []models.LedgerEntry{}
		}
		return enc.Encode(entries)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIPT\tSTATUS\tAMOUNT\tCONFIDENCE\tNAME\tPHONE\tEMAIL\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.0f\t%s\t%s\t%s\t%s\n",
			e.ReceiptNumber, e.Status, e.TransactionAmount.StringFixed(2), e.ConfidenceLevel,
			e.Name, e.PhoneNumber, e.Email, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
