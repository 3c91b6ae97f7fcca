package commands

import (
	"fmt"
	"io"
	"time"

	"ledgerseal/pkg/journal"
	"ledgerseal/pkg/types"

	"github.com/spf13/cobra"
)

func newLogCmd(c *cli) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the local upload journal",
		Args:  inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(c.settings.Journal.Path)
			if err != nil {
				return err
			}

			entries := j.Snapshot()
			if pendingOnly {
				entries = j.Pending()
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No uploads yet.")
				return nil
			}

			// 最新的在前，仿 git log
			for i := len(entries) - 1; i >= 0; i-- {
				printEntry(cmd.OutOrStdout(), entries[i])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "only show uploads still UNKNOWN")
	return cmd
}

// printEntry 格式化输出
func printEntry(w io.Writer, e journal.Entry) {
	// 颜色代码 (ANSI Escape Codes)
	const (
		colorYellow = "\033[33m"
		colorReset  = "\033[0m"
	)

	fmt.Fprintf(w, "%s%-9s %s%s\n", colorYellow, e.Outcome, e.Name, colorReset)
	fmt.Fprintf(w, "Date:    %s\n", e.At.Local().Format(time.RFC1123))
	if e.Digest != "" {
		fmt.Fprintf(w, "Digest:  %s\n", e.Digest)
	}
	if e.TxID != "" {
		fmt.Fprintf(w, "Tx:      %s\n", types.TxID(e.TxID).Short())
	}
	if e.Address != "" {
		fmt.Fprintf(w, "Address: %s\n", e.Address)
	}
	if e.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", e.Warning)
	}
	if e.ResolvedAt != nil {
		fmt.Fprintf(w, "Resolved: %s\n", e.ResolvedAt.Local().Format(time.RFC1123))
	}
	fmt.Fprintln(w)
}
