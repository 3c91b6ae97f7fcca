package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ledgerseal/pkg/app"
	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/config"

	"github.com/spf13/cobra"
)

// cli 持有一次进程调用的共享状态
type cli struct {
	cfgFile  string
	settings *config.Settings
	logger   *slog.Logger

	// newAttester 根据 --remote 选择本地或远程实现
	newAttester func(ctx context.Context, mode app.Mode) (attester, error)
}

// NewRootCmd 构建完整的命令树
func NewRootCmd() *cobra.Command {
	c := &cli{}
	c.newAttester = c.defaultAttester

	rootCmd := &cobra.Command{
		Use:   "ledgerseal",
		Short: "LedgerSeal: file integrity attestation backed by a ledger",
		Long: `LedgerSeal records a SHA-256 digest of a file on a ledger under the file's name,
and later re-computes the digest to detect tampering.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		// PersistentPreRunE 会在所有子命令执行前运行
		// 配置在这里加载一次，之后只读
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(c.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			c.settings = s
			c.logger = app.NewLogger(cmd.ErrOrStderr(), s.Log.SlogLevel())
			if s.Source != "" {
				c.logger.Debug("using config file", "path", s.Source)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.ledgerseal/config.yaml)")
	flags.String("remote", "", "send requests to a ledgerseal-server at host:port")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newUploadCmd(c),
		newVerifyCmd(c),
		newStatusCmd(c),
		newLogCmd(c),
	)
	return rootCmd
}

// Execute 是入口，返回进程退出码
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	return report(rootCmd.ErrOrStderr(), err)
}

// ExitError 携带非零退出码；结论已经打印过，不再重复输出
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}

// report 把错误转换为退出码
func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	fmt.Fprintln(w, "Error:", err)
	return attest.ExitCode(err)
}

// inputArgs 把参数错误归类为输入错误
func inputArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return inputError(err)
		}
		return nil
	}
}

func inputError(err error) error {
	return &attest.OutcomeError{Outcome: attest.OutcomeIOFailure, Err: err}
}
