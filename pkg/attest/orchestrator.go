package attest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledgerseal/pkg/core"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/storage"
	"ledgerseal/pkg/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options 控制编排器的可配置行为
type Options struct {
	// StoreFatal 为 true 时，内容存储失败终止上传，且不再提交账本
	StoreFatal bool

	// Policy 账本的重绑定策略；reject 时上传前先查询账本
	Policy ledger.Policy

	StorePutTimeout time.Duration
	StoreGetTimeout time.Duration
	FetchTimeout    time.Duration
}

// UploadResult 是 upload 工作流的结果
type UploadResult struct {
	Invocation string
	Name       string
	Digest     types.Digest
	Size       int

	// Address 内容存储返回的地址，失败时为空
	Address types.ContentAddress
	// StoreErr 非致命的存储失败，作为警告展示
	StoreErr error

	TxID    types.TxID
	Receipt *ledger.Receipt
	Outcome Outcome
}

// VerifyResult 是 verify 工作流的结果
type VerifyResult struct {
	Invocation string
	Name       string
	Digest     types.Digest
	// Recorded 账本中的 Digest；NO_RECORD 或 verifyHash 形态的合约时为零值
	Recorded types.Digest
	Outcome  Outcome

	// Address 交叉校验时取回的存储地址
	Address types.ContentAddress
	// StoreErr 交叉校验失败 (取不回、内容与账本不符)，非致命时作为警告展示
	StoreErr error
}

// Orchestrator 把 Digest、存储、账本三步串成 upload / verify
// 它不持有跨调用的状态
type Orchestrator struct {
	ledger ledger.Client
	store  storage.Store // 可以为 nil，表示不上传内容
	opts   Options
	logger *slog.Logger
}

func NewOrchestrator(lc ledger.Client, store storage.Store, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = ledger.PolicyOverwrite
	}
	return &Orchestrator{ledger: lc, store: store, opts: opts, logger: logger}
}

// -----------------------------------------------------------------------------
// upload
// -----------------------------------------------------------------------------

// Upload 读取文件并把 (name, digest) 绑定到账本
func (o *Orchestrator) Upload(ctx context.Context, path, name string) (*UploadResult, error) {
	id := uuid.NewString()

	// 1. 读取并计算 Digest。失败时什么都不提交
	digest, data, err := core.DigestFile(path)
	if err != nil {
		o.logger.Error("read failed", "invocation", id, "path", path, "error", err)
		return &UploadResult{Invocation: id, Name: name, Outcome: OutcomeIOFailure}, fail(OutcomeIOFailure, err)
	}

	return o.seal(ctx, id, name, digest, data)
}

// Seal 对已经在内存中的内容执行 upload 工作流
func (o *Orchestrator) Seal(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	return o.seal(ctx, uuid.NewString(), name, core.ComputeDigest(data), data)
}

func (o *Orchestrator) seal(ctx context.Context, id, name string, digest types.Digest, data []byte) (*UploadResult, error) {
	log := o.logger.With("invocation", id, "name", name, "digest", digest.Hex())
	res := &UploadResult{Invocation: id, Name: name, Digest: digest, Size: len(data)}

	if name == "" {
		res.Outcome = OutcomeIOFailure
		return res, fail(OutcomeIOFailure, fmt.Errorf("empty ledger key"))
	}

	// 2. reject 策略：先看名字是否已被占用，避免白白广播一笔必败的交易
	if o.opts.Policy == ledger.PolicyReject {
		bound, err := o.isBound(ctx, name)
		if err != nil {
			log.Warn("rebind pre-check failed, submitting anyway", "error", err)
		} else if bound {
			res.Outcome = OutcomeRejected
			return res, fail(OutcomeRejected, ledger.Rejected("policy", fmt.Errorf("%w: %s", ledger.ErrAlreadyBound, name)))
		}
	}

	// 3. 存储与账本
	// 非致命模式下两者并发，存储失败绝不取消账本提交
	// 致命模式下先存储，失败就不再提交
	var ledgerErr error
	if o.opts.StoreFatal {
		res.Address, res.StoreErr = o.put(ctx, data)
		if res.StoreErr != nil {
			log.Error("content store put failed", "error", res.StoreErr)
			res.Outcome = OutcomeStoreFailure
			return res, fail(OutcomeStoreFailure, res.StoreErr)
		}
		res.Receipt, ledgerErr = o.ledger.SubmitBinding(ctx, name, digest)
	} else {
		var g errgroup.Group
		g.Go(func() error {
			res.Address, res.StoreErr = o.put(ctx, data)
			return nil
		})
		g.Go(func() error {
			res.Receipt, ledgerErr = o.ledger.SubmitBinding(ctx, name, digest)
			return nil
		})
		_ = g.Wait()

		if res.StoreErr != nil {
			log.Warn("content store put failed; ledger binding unaffected", "error", res.StoreErr)
		}
	}

	// 4. 账本结果决定最终结论
	if ledgerErr != nil {
		return o.classifySubmit(log, res, ledgerErr)
	}

	res.TxID = res.Receipt.TxID
	res.Outcome = OutcomeSealed
	log.Info("binding confirmed", "tx", res.TxID, "block", res.Receipt.BlockNumber, "address", res.Address)
	return res, nil
}

// classifySubmit 区分 REJECTED、LEDGER_UNAVAILABLE 与 UNKNOWN
// UNKNOWN 不是错误：交易可能仍会被打包，调用方应稍后 verify 或 status
func (o *Orchestrator) classifySubmit(log *slog.Logger, res *UploadResult, err error) (*UploadResult, error) {
	var pending *ledger.PendingError
	if errors.As(err, &pending) {
		res.TxID = pending.TxID
	}

	switch {
	case errors.Is(err, ledger.ErrSubmissionRejected):
		log.Error("submission rejected", "error", err)
		res.Outcome = OutcomeRejected
		return res, fail(OutcomeRejected, err)
	case errors.Is(err, ledger.ErrUnavailable):
		// 广播之前就失败了，没有交易在途
		log.Error("ledger unavailable; nothing submitted", "error", err)
		res.Outcome = OutcomeLedgerUnavailable
		return res, fail(OutcomeLedgerUnavailable, err)
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		log.Warn("confirmation not observed; outcome unknown", "tx", res.TxID, "error", err)
	default:
		// 无法判断交易是否已经广播，只能按未知处理
		log.Warn("unclassified ledger error; outcome unknown", "error", err)
	}
	res.Outcome = OutcomeUnknown
	return res, nil
}

func (o *Orchestrator) put(ctx context.Context, data []byte) (types.ContentAddress, error) {
	if o.store == nil {
		return "", nil
	}
	ctx, cancel := withTimeout(ctx, o.opts.StorePutTimeout)
	defer cancel()
	return o.store.Put(ctx, data)
}

func (o *Orchestrator) isBound(ctx context.Context, name string) (bool, error) {
	ctx, cancel := withTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	_, err := o.ledger.FetchBinding(ctx, name)
	if errors.Is(err, ledger.ErrReadUnsupported) {
		if m, ok := o.ledger.(ledger.Matcher); ok {
			_, err = m.MatchBinding(ctx, name, types.Digest{})
		}
	}
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ledger.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// -----------------------------------------------------------------------------
// verify
// -----------------------------------------------------------------------------

// Verify 重新计算文件 Digest 并与账本记录比较
func (o *Orchestrator) Verify(ctx context.Context, path, name string) (*VerifyResult, error) {
	return o.VerifyStored(ctx, path, name, "")
}

// VerifyStored 在 Verify 之外，再从内容存储取回 addr 并与账本比对
// addr 为空时等同于 Verify
func (o *Orchestrator) VerifyStored(ctx context.Context, path, name string, addr types.ContentAddress) (*VerifyResult, error) {
	id := uuid.NewString()

	digest, _, err := core.DigestFile(path)
	if err != nil {
		o.logger.Error("read failed", "invocation", id, "path", path, "error", err)
		return &VerifyResult{Invocation: id, Name: name, Outcome: OutcomeIOFailure}, fail(OutcomeIOFailure, err)
	}
	return o.check(ctx, id, name, digest, addr)
}

// Check 对内存中的内容执行 verify 工作流
func (o *Orchestrator) Check(ctx context.Context, name string, data []byte) (*VerifyResult, error) {
	return o.CheckStored(ctx, name, data, "")
}

// CheckStored 是 VerifyStored 的内存版本
func (o *Orchestrator) CheckStored(ctx context.Context, name string, data []byte, addr types.ContentAddress) (*VerifyResult, error) {
	return o.check(ctx, uuid.NewString(), name, core.ComputeDigest(data), addr)
}

func (o *Orchestrator) check(ctx context.Context, id, name string, digest types.Digest, addr types.ContentAddress) (*VerifyResult, error) {
	log := o.logger.With("invocation", id, "name", name, "digest", digest.Hex())
	res := &VerifyResult{Invocation: id, Name: name, Digest: digest}

	res, err := o.compare(ctx, log, res)
	if err != nil || addr.IsZero() {
		return res, err
	}
	// 只有账本里有记录时，存储副本才有比对的基准
	if res.Outcome != OutcomeIntact && res.Outcome != OutcomeTampered {
		return res, nil
	}
	return o.crossCheck(ctx, log, res, addr)
}

func (o *Orchestrator) compare(ctx context.Context, log *slog.Logger, res *VerifyResult) (*VerifyResult, error) {
	ctx, cancel := withTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	recorded, err := o.ledger.FetchBinding(ctx, res.Name)
	if errors.Is(err, ledger.ErrReadUnsupported) {
		if m, ok := o.ledger.(ledger.Matcher); ok {
			return o.match(ctx, log, res, m)
		}
	}

	switch {
	case errors.Is(err, ledger.ErrNotFound):
		// 没有基线，不是篡改
		res.Outcome = OutcomeNoRecord
	case err != nil:
		log.Error("ledger read failed", "error", err)
		res.Outcome = OutcomeLedgerUnavailable
		return res, fail(OutcomeLedgerUnavailable, err)
	case res.Digest.Equal(recorded):
		res.Recorded = recorded
		res.Outcome = OutcomeIntact
	default:
		res.Recorded = recorded
		res.Outcome = OutcomeTampered
	}

	log.Info("verified", "outcome", res.Outcome, "recorded", recorded.Hex())
	return res, nil
}

func (o *Orchestrator) match(ctx context.Context, log *slog.Logger, res *VerifyResult, m ledger.Matcher) (*VerifyResult, error) {
	ok, err := m.MatchBinding(ctx, res.Name, res.Digest)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		res.Outcome = OutcomeNoRecord
	case err != nil:
		log.Error("ledger match failed", "error", err)
		res.Outcome = OutcomeLedgerUnavailable
		return res, fail(OutcomeLedgerUnavailable, err)
	case ok:
		res.Recorded = res.Digest
		res.Outcome = OutcomeIntact
	default:
		res.Outcome = OutcomeTampered
	}
	log.Info("verified", "outcome", res.Outcome)
	return res, nil
}

// crossCheck 取回存储副本重新计算 Digest，与账本记录比对
// 失败与 upload 的存储失败同样处理：默认是警告，StoreFatal 时是 STORE_FAILURE
func (o *Orchestrator) crossCheck(ctx context.Context, log *slog.Logger, res *VerifyResult, addr types.ContentAddress) (*VerifyResult, error) {
	res.Address = addr
	res.StoreErr = o.replicaMatches(ctx, res, addr)
	switch {
	case res.StoreErr == nil:
		log.Info("stored copy matches ledger", "address", addr)
	case o.opts.StoreFatal:
		log.Error("stored copy cross-check failed", "address", addr, "error", res.StoreErr)
		res.Outcome = OutcomeStoreFailure
		return res, fail(OutcomeStoreFailure, res.StoreErr)
	default:
		log.Warn("stored copy cross-check failed", "address", addr, "error", res.StoreErr)
	}
	return res, nil
}

func (o *Orchestrator) replicaMatches(ctx context.Context, res *VerifyResult, addr types.ContentAddress) error {
	if o.store == nil {
		return errors.New("no content store configured")
	}

	gctx, cancel := withTimeout(ctx, o.opts.StoreGetTimeout)
	defer cancel()

	rc, err := o.store.Get(gctx, addr)
	if err != nil {
		return err
	}
	defer rc.Close()

	stored, _, err := core.DigestReader(rc)
	if err != nil {
		return storage.Unavailable("get", err)
	}

	ok, err := o.accepts(ctx, res, stored)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s hashes to %s", storage.ErrContentMismatch, addr, stored.Hex())
	}
	return nil
}

// accepts 判断账本是否认可 stored 这个 Digest
func (o *Orchestrator) accepts(ctx context.Context, res *VerifyResult, stored types.Digest) (bool, error) {
	if !res.Recorded.IsZero() {
		return stored.Equal(res.Recorded), nil
	}
	// verifyHash 形态的合约且本地文件不匹配：只能再问一次账本
	m, ok := o.ledger.(ledger.Matcher)
	if !ok {
		return false, nil
	}
	ctx, cancel := withTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()
	return m.MatchBinding(ctx, res.Name, stored)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
