package commands

import (
	"fmt"
	"io"

	"ledgerseal/pkg/app"
	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/journal"
	"ledgerseal/pkg/types"

	"github.com/spf13/cobra"
)

func newVerifyCmd(c *cli) *cobra.Command {
	var (
		name       string
		crossCheck bool
		address    string
	)

	cmd := &cobra.Command{
		Use:   "verify <file|dir>",
		Short: "Check a file against the digest recorded on the ledger",
		Long: `Recompute the SHA-256 digest of a file and compare it with the ledger.
With --cross-check the stored copy is fetched back from the content store,
rehashed and compared with the ledger as well. Its address comes from the
upload journal unless --address is given.`,
		Args: inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			targets, err := attest.Targets(args[0], name)
			if err != nil {
				return inputError(err)
			}
			if len(targets) == 0 {
				fmt.Fprintln(out, "Nothing to verify.")
				return nil
			}

			if address != "" {
				if len(targets) > 1 {
					return inputError(fmt.Errorf("--address needs a single file, got %d", len(targets)))
				}
				crossCheck = true
			}

			// 只读：不需要私钥；交叉校验时才连接内容存储
			mode := app.ReadOnly
			var j *journal.Journal
			if crossCheck {
				mode = app.Audit
				if address == "" {
					if j, err = journal.Open(c.settings.Journal.Path); err != nil {
						return err
					}
				}
			}
			at, err := c.newAttester(ctx, mode)
			if err != nil {
				return err
			}
			defer at.Close()

			codes := make([]int, 0, len(targets))
			for _, t := range targets {
				addr := types.ContentAddress(address)
				if j != nil {
					if a, ok := j.LatestAddress(t.Name); ok {
						addr = types.ContentAddress(a)
					} else {
						fmt.Fprintf(out, "no stored copy recorded for %s; skipping cross-check\n", t.Name)
					}
				}
				res, err := at.Verify(ctx, t, addr)
				printVerify(out, res, err)
				if err != nil || res == nil {
					codes = append(codes, attest.ExitCode(err))
					continue
				}
				codes = append(codes, res.Outcome.ExitCode())
			}
			return exitWith(attest.Worst(codes...))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "ledger key (default: the file's base name; prefix for directories)")
	cmd.Flags().BoolVar(&crossCheck, "cross-check", false, "also fetch the stored copy and compare it with the ledger")
	cmd.Flags().StringVar(&address, "address", "", "content address to cross-check (default: from the upload journal)")
	cmd.Flags().Bool("store-fatal", false, "treat a failed cross-check as fatal")
	return cmd
}

func printVerify(w io.Writer, res *attest.VerifyResult, err error) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "%-9s %s\n", res.Outcome, res.Name)
	if !res.Digest.IsZero() {
		fmt.Fprintf(w, "  digest:   %s\n", res.Digest.Hex())
	}
	if !res.Recorded.IsZero() {
		fmt.Fprintf(w, "  recorded: %s\n", res.Recorded.Hex())
	}
	if !res.Address.IsZero() {
		fmt.Fprintf(w, "  address:  %s\n", res.Address)
	}
	if res.StoreErr != nil && err == nil {
		fmt.Fprintf(w, "  warning:  %v\n", res.StoreErr)
	}
	if err != nil {
		fmt.Fprintf(w, "  error:    %v\n", err)
	}
}
