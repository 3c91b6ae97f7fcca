package commands

import (
	"fmt"
	"io"

	"ledgerseal/pkg/app"
	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/journal"

	"github.com/spf13/cobra"
)

func newUploadCmd(c *cli) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <file|dir>",
		Short: "Record a file's digest on the ledger",
		Long: `Compute the SHA-256 digest of a file, put its bytes into the content store,
and bind (name, digest) on the ledger. Directories are walked; .sealignore applies.`,
		Args: inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			// 1. 展开目标 (文件或目录)
			targets, err := attest.Targets(args[0], name)
			if err != nil {
				return inputError(err)
			}
			if len(targets) == 0 {
				fmt.Fprintln(out, "Nothing to upload.")
				return nil
			}

			// 2. 组装依赖
			at, err := c.newAttester(ctx, app.ReadWrite)
			if err != nil {
				return err
			}
			defer at.Close()

			j, err := journal.Open(c.settings.Journal.Path)
			if err != nil {
				return err
			}

			// 3. 逐个处理，最严重的结论决定退出码
			codes := make([]int, 0, len(targets))
			for _, t := range targets {
				res, err := at.Upload(ctx, t)
				printUpload(out, res, err)
				if res != nil {
					j.Append(journalEntry(t, res, err))
				}
				codes = append(codes, uploadCode(res, err))
			}

			if err := j.Save(); err != nil {
				c.logger.Warn("failed to save journal", "path", j.Path(), "error", err)
			}
			return exitWith(attest.Worst(codes...))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "ledger key (default: the file's base name; prefix for directories)")
	cmd.Flags().Bool("store-fatal", false, "treat a content store failure as fatal")
	return cmd
}

func uploadCode(res *attest.UploadResult, err error) int {
	if err != nil || res == nil {
		return attest.ExitCode(err)
	}
	return res.Outcome.ExitCode()
}

func journalEntry(t attest.Target, res *attest.UploadResult, err error) journal.Entry {
	e := journal.Entry{
		Invocation: res.Invocation,
		Name:       t.Name,
		Path:       t.Path,
		Address:    res.Address.String(),
		TxID:       res.TxID.String(),
		Outcome:    string(res.Outcome),
	}
	if !res.Digest.IsZero() {
		e.Digest = res.Digest.Hex()
	}
	if res.StoreErr != nil {
		e.Warning = res.StoreErr.Error()
	}
	if err != nil && e.Warning == "" {
		e.Warning = err.Error()
	}
	return e
}

// printUpload 每次调用输出唯一的结论标签和附带信息
func printUpload(w io.Writer, res *attest.UploadResult, err error) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "%-9s %s\n", res.Outcome, res.Name)
	if !res.Digest.IsZero() {
		fmt.Fprintf(w, "  digest:  %s\n", res.Digest.Hex())
	}
	if !res.Address.IsZero() {
		fmt.Fprintf(w, "  address: %s\n", res.Address)
	}
	if !res.TxID.IsZero() {
		fmt.Fprintf(w, "  tx:      %s\n", res.TxID)
	}
	if res.Receipt != nil && res.Receipt.BlockNumber > 0 {
		fmt.Fprintf(w, "  block:   %d\n", res.Receipt.BlockNumber)
	}
	if res.StoreErr != nil {
		fmt.Fprintf(w, "  ⚠️  store: %v\n", res.StoreErr)
	}
	switch {
	case err != nil:
		fmt.Fprintf(w, "  error:   %v\n", err)
	case res.Outcome == attest.OutcomeUnknown && res.TxID.IsZero():
		fmt.Fprintln(w, "  no transaction id was returned; run 'ledgerseal verify' later instead of re-uploading")
	case res.Outcome == attest.OutcomeUnknown:
		fmt.Fprintln(w, "  confirmation not observed; run 'ledgerseal status' or 'ledgerseal verify' later instead of re-uploading")
	}
}
