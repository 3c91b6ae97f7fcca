package attest

import (
	"context"
	"errors"

	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/types"
)

// Resolve 查询一笔 UNKNOWN 交易的最终结论
// 返回 UNKNOWN 表示仍未打包；error 只用于查询本身失败
func Resolve(ctx context.Context, rl ledger.ReceiptLookup, txID types.TxID) (Outcome, *ledger.Receipt, error) {
	r, err := rl.LookupReceipt(ctx, txID)
	switch {
	case err == nil:
		return OutcomeSealed, r, nil
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		return OutcomeUnknown, nil, nil
	case errors.Is(err, ledger.ErrSubmissionRejected), errors.Is(err, ledger.ErrTxNotFound):
		// 已回滚，或账本确定从未收到
		return OutcomeRejected, nil, nil
	default:
		return OutcomeUnknown, nil, err
	}
}
