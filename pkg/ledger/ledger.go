package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerseal/pkg/types"
)

var (
	// ErrNotFound 该名字下没有任何绑定
	ErrNotFound = errors.New("no binding recorded for name")

	// ErrSubmissionRejected 交易在被打包之前就被拒绝 (nonce、手续费、签名、合约 revert)
	ErrSubmissionRejected = errors.New("ledger rejected the submission")

	// ErrUnavailable 广播之前就无法与账本通信 (节点不可达、数据库故障)
	// 什么都没有提交，是确定的失败
	ErrUnavailable = errors.New("ledger unavailable; nothing was submitted")

	// ErrConfirmationTimeout 交易可能已经广播，但在等待预算内没有观察到确认
	// 结果未知：既不是成功也不是失败
	ErrConfirmationTimeout = errors.New("confirmation not observed within budget; outcome unknown")

	// ErrAlreadyBound 重绑定策略为 reject 时，名字已存在绑定
	ErrAlreadyBound = errors.New("name already bound")

	// ErrTxNotFound 账本中没有这笔交易 (从未提交或已被丢弃)
	ErrTxNotFound = errors.New("transaction not found")

	// ErrReadUnsupported 合约只暴露 verifyHash，无法直接读出 Digest
	ErrReadUnsupported = errors.New("ledger contract does not expose a digest getter")
)

// Policy 描述账本对同名二次写入的处理方式
type Policy string

const (
	PolicyOverwrite Policy = "overwrite" // 最后被打包的交易生效
	PolicyReject    Policy = "reject"    // 第二次写入被拒绝
)

// ParsePolicy 解析配置中的策略名，空值默认为 overwrite
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown rebind policy %q (want %q or %q)", s, PolicyOverwrite, PolicyReject)
	}
}

// Receipt 是一次已确认写入的凭证
type Receipt struct {
	TxID        types.TxID
	Writer      string // 0x 地址
	BlockNumber uint64
	ConfirmedAt time.Time
}

// Client 是 Attestation 协议对账本的全部需求
type Client interface {
	// SubmitBinding 签名并提交 (name, digest) 写交易，阻塞直到确认或超时
	SubmitBinding(ctx context.Context, name string, digest types.Digest) (*Receipt, error)

	// FetchBinding 只读调用，不需要签名和手续费
	// 没有绑定时返回 ErrNotFound
	FetchBinding(ctx context.Context, name string) (types.Digest, error)
}

// Matcher 由只提供 verifyHash(name, digest) -> bool 形态的账本实现
// 没有绑定时返回 ErrNotFound
type Matcher interface {
	MatchBinding(ctx context.Context, name string, candidate types.Digest) (bool, error)
}

// ReceiptLookup 用交易标识查询之前提交的交易
// 交易还未被打包时返回 ErrConfirmationTimeout
type ReceiptLookup interface {
	LookupReceipt(ctx context.Context, txID types.TxID) (*Receipt, error)
}

// PendingError 携带已广播但未确认的交易标识
type PendingError struct {
	TxID  types.TxID
	Cause error
}

func (e *PendingError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("transaction %s: %v", e.TxID, ErrConfirmationTimeout)
	}
	return fmt.Sprintf("transaction %s: %v: %v", e.TxID, ErrConfirmationTimeout, e.Cause)
}

func (e *PendingError) Is(target error) bool { return target == ErrConfirmationTimeout }

func (e *PendingError) Unwrap() error { return e.Cause }

// Rejected 包装一个提交前拒绝
func Rejected(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSubmissionRejected, stage, err)
}

// Unavailable 包装一个广播前的通信失败
func Unavailable(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, stage, err)
}
