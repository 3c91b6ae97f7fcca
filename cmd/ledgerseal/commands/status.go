package commands

import (
	"fmt"
	"time"

	"ledgerseal/pkg/app"
	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/journal"
	"ledgerseal/pkg/types"

	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Resolve uploads whose confirmation was not observed",
		Long: `Look up every UNKNOWN upload in the local journal on the ledger and record
whether it was eventually sealed or rejected.`,
		Args: inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			j, err := journal.Open(c.settings.Journal.Path)
			if err != nil {
				return err
			}
			pending := j.Pending()
			if len(pending) == 0 {
				fmt.Fprintln(out, "No pending transactions.")
				return nil
			}

			at, err := c.newAttester(ctx, app.ReadOnly)
			if err != nil {
				return err
			}
			defer at.Close()

			resolved := 0
			for _, e := range pending {
				o, block, err := at.Resolve(ctx, types.TxID(e.TxID))
				if err != nil {
					fmt.Fprintf(out, "%-9s %s\n  tx:      %s\n  error:   %v\n", attest.OutcomeUnknown, e.Name, e.TxID, err)
					continue
				}

				fmt.Fprintf(out, "%-9s %s\n  tx:      %s\n", o, e.Name, e.TxID)
				if block > 0 {
					fmt.Fprintf(out, "  block:   %d\n", block)
				}
				if o != attest.OutcomeUnknown {
					resolved += j.Resolve(e.TxID, string(o), time.Now())
				}
			}

			if resolved > 0 {
				if err := j.Save(); err != nil {
					return fmt.Errorf("failed to save journal: %w", err)
				}
			}
			fmt.Fprintf(out, "%d of %d pending resolved.\n", resolved, len(pending))
			return nil
		},
	}
}
