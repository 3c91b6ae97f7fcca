package rdb

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledgerseal/pkg/core"
	"ledgerseal/pkg/credentials"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const genesisHash = "genesis"

var (
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
	ErrBadSignature     = errors.New("signature does not match writer")
	ErrBadNonce         = errors.New("nonce out of order")
	ErrChainBroken      = errors.New("ledger hash chain broken")
)

// SignedBinding 是提交到账本的一笔完整写交易
type SignedBinding struct {
	Payload   core.BindingPayload
	Signature []byte
}

// chainEntry 是 TxHash 的哈希原像
type chainEntry struct {
	Sequence  uint64              `cbor:"1,keyasint"`
	Payload   core.BindingPayload `cbor:"2,keyasint"`
	Signature []byte              `cbor:"3,keyasint"`
	PrevHash  string              `cbor:"4,keyasint"`
}

func (e chainEntry) hash() (string, error) {
	h, _, err := core.CalculateHash(e)
	if err != nil {
		return "", err
	}
	return "0x" + h.Hex(), nil
}

// Ledger 是基于 SQL 的自托管账本
// 实现 ledger.Client 和 ledger.ReceiptLookup；写入同步确认
type Ledger struct {
	db     *DB
	signer *credentials.Signer
	policy ledger.Policy
	clock  func() time.Time
}

func NewLedger(db *DB, signer *credentials.Signer, policy ledger.Policy) *Ledger {
	if policy == "" {
		policy = ledger.PolicyOverwrite
	}
	return &Ledger{db: db, signer: signer, policy: policy, clock: time.Now}
}

// WithClock overrides clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Policy 暴露账本的重绑定策略
func (l *Ledger) Policy() ledger.Policy { return l.policy }

// -----------------------------------------------------------------------------
// 1. 写入 (Contract A)
// -----------------------------------------------------------------------------

// SubmitBinding 用进程凭证签名并提交
func (l *Ledger) SubmitBinding(ctx context.Context, name string, digest types.Digest) (*ledger.Receipt, error) {
	if l.signer == nil {
		return nil, ledger.Rejected("sign", credentials.ErrNoCredential)
	}
	writer := l.signer.Address().Hex()

	nonce, err := l.nextNonce(ctx, writer)
	if err != nil {
		return nil, ledger.Unavailable("nonce", err)
	}

	payload := core.BindingPayload{
		Name:      name,
		Digest:    digest,
		Writer:    writer,
		Nonce:     nonce,
		Timestamp: l.clock().Unix(),
	}
	h, err := payload.SigningHash()
	if err != nil {
		return nil, ledger.Rejected("encode", err)
	}
	sig, err := l.signer.SignDigest(h)
	if err != nil {
		return nil, ledger.Rejected("sign", err)
	}

	return l.Apply(ctx, SignedBinding{Payload: payload, Signature: sig})
}

// Apply 校验签名、执行重绑定策略，然后追加交易
// 这是账本的“合约逻辑”，所有写入都必须经过这里
func (l *Ledger) Apply(ctx context.Context, sb SignedBinding) (*ledger.Receipt, error) {
	p := sb.Payload
	if p.Name == "" {
		return nil, ledger.Rejected("validate", fmt.Errorf("empty name"))
	}

	// 1. 签名校验：恢复出的地址必须等于声明的 Writer
	h, err := p.SigningHash()
	if err != nil {
		return nil, ledger.Rejected("encode", err)
	}
	signer, err := credentials.RecoverAddress(h, sb.Signature)
	if err != nil || !strings.EqualFold(signer.Hex(), p.Writer) {
		return nil, ledger.Rejected("signature", ErrBadSignature)
	}

	var rec TxRecord
	err = l.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. Nonce 必须严格递增，防止重放
		expected, err := countWrites(tx, p.Writer)
		if err != nil {
			return err
		}
		if p.Nonce != expected {
			return fmt.Errorf("%w: got %d, expected %d", ErrBadNonce, p.Nonce, expected)
		}

		// 3. 重绑定策略 + CAS 更新世界状态
		version, err := l.applyBinding(tx, p)
		if err != nil {
			return err
		}

		// 4. 追加交易，链接到上一条
		rec, err = appendTx(tx, sb, version, l.policy, l.clock())
		return err
	})
	if err != nil {
		return nil, classifyCommit(err)
	}

	return &ledger.Receipt{
		TxID:        types.TxID(rec.TxHash),
		Writer:      rec.Writer,
		BlockNumber: rec.Sequence,
		ConfirmedAt: rec.CreatedAt,
	}, nil
}

// classifyCommit 合约规则拒绝的写入算拒绝；其余是数据库故障
// 事务已回滚，什么都没有写入
func classifyCommit(err error) error {
	switch {
	case errors.Is(err, ErrBadNonce),
		errors.Is(err, ledger.ErrAlreadyBound),
		errors.Is(err, ErrConcurrentUpdate):
		return ledger.Rejected("commit", err)
	default:
		return ledger.Unavailable("commit", err)
	}
}

// applyBinding 返回写入后的版本号
func (l *Ledger) applyBinding(tx *gorm.DB, p core.BindingPayload) (int64, error) {
	var current Binding
	err := tx.Where("name = ?", p.Name).First(&current).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 场景 A: 第一次创建 (Create)
		b := Binding{
			Name:      p.Name,
			Digest:    p.Digest.Hex(),
			Writer:    p.Writer,
			TxHash:    "pending",
			Version:   1,
			UpdatedAt: l.clock(),
		}
		if err := tx.Create(&b).Error; err != nil {
			if isDuplicate(err) {
				return 0, ErrConcurrentUpdate
			}
			return 0, fmt.Errorf("failed to create binding: %w", err)
		}
		return 1, nil
	case err != nil:
		return 0, err
	}

	// 场景 B: 已经存在
	if l.policy == ledger.PolicyReject {
		return 0, fmt.Errorf("%w: %s (tx %s)", ledger.ErrAlreadyBound, p.Name, current.TxHash)
	}

	// SQL: UPDATE bindings SET ... WHERE name = ? AND version = ?
	result := tx.Model(&Binding{}).
		Where("name = ? AND version = ?", p.Name, current.Version).
		Updates(map[string]any{
			"digest":     p.Digest.Hex(),
			"writer":     p.Writer,
			"version":    gorm.Expr("version + 1"),
			"updated_at": l.clock(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	// 影响行数为 0，说明 version 不匹配（被人抢先改了）
	if result.RowsAffected == 0 {
		return 0, ErrConcurrentUpdate
	}
	return current.Version + 1, nil
}

func appendTx(tx *gorm.DB, sb SignedBinding, version int64, policy ledger.Policy, now time.Time) (TxRecord, error) {
	var last TxRecord
	seq := uint64(1)
	prev := genesisHash
	err := tx.Order("sequence DESC").Limit(1).Find(&last).Error
	if err != nil {
		return TxRecord{}, err
	}
	if last.TxHash != "" {
		seq = last.Sequence + 1
		prev = last.TxHash
	}

	txHash, err := chainEntry{Sequence: seq, Payload: sb.Payload, Signature: sb.Signature, PrevHash: prev}.hash()
	if err != nil {
		return TxRecord{}, err
	}

	meta, err := json.Marshal(map[string]any{"policy": string(policy), "version": version})
	if err != nil {
		return TxRecord{}, err
	}

	rec := TxRecord{
		Sequence:  seq,
		TxHash:    txHash,
		Name:      sb.Payload.Name,
		Digest:    sb.Payload.Digest.Hex(),
		Writer:    sb.Payload.Writer,
		Nonce:     sb.Payload.Nonce,
		Timestamp: sb.Payload.Timestamp,
		Signature: hex.EncodeToString(sb.Signature),
		PrevHash:  prev,
		Meta:      datatypes.JSON(meta),
		CreatedAt: now.UTC(),
	}
	if err := tx.Create(&rec).Error; err != nil {
		if isDuplicate(err) {
			return TxRecord{}, ErrConcurrentUpdate
		}
		return TxRecord{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	// 世界状态指向最新交易
	if err := tx.Model(&Binding{}).Where("name = ?", rec.Name).Update("tx_hash", rec.TxHash).Error; err != nil {
		return TxRecord{}, err
	}
	return rec, nil
}

func (l *Ledger) nextNonce(ctx context.Context, writer string) (uint64, error) {
	return countWrites(l.db.GetConn().WithContext(ctx), writer)
}

func countWrites(tx *gorm.DB, writer string) (uint64, error) {
	var n int64
	if err := tx.Model(&TxRecord{}).Where("writer = ?", writer).Count(&n).Error; err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// isDuplicate 兼容不同数据库 (PG 与 SQLite) 的唯一约束错误
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key")
}

// -----------------------------------------------------------------------------
// 2. 只读 (Contract B)
// -----------------------------------------------------------------------------

// FetchBinding 读取当前生效的 Digest
func (l *Ledger) FetchBinding(ctx context.Context, name string) (types.Digest, error) {
	var b Binding
	err := l.db.GetConn().WithContext(ctx).Where("name = ?", name).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Digest{}, ledger.ErrNotFound
	}
	if err != nil {
		return types.Digest{}, fmt.Errorf("fetch binding: %w", err)
	}
	return types.ParseDigest(b.Digest)
}

// GetBinding 返回完整的绑定记录
func (l *Ledger) GetBinding(ctx context.Context, name string) (*core.AttestationRecord, error) {
	var b Binding
	err := l.db.GetConn().WithContext(ctx).Where("name = ?", name).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := types.ParseDigest(b.Digest)
	if err != nil {
		return nil, err
	}
	return &core.AttestationRecord{Name: b.Name, Digest: d, Writer: b.Writer, TxID: types.TxID(b.TxHash)}, nil
}

// LookupReceipt 按交易哈希查询
// 写入是同步确认的，查不到就说明这笔交易从未提交成功
func (l *Ledger) LookupReceipt(ctx context.Context, txID types.TxID) (*ledger.Receipt, error) {
	var rec TxRecord
	err := l.db.GetConn().WithContext(ctx).Where("tx_hash = ?", txID.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTxNotFound, txID)
	}
	if err != nil {
		return nil, err
	}
	return &ledger.Receipt{
		TxID:        types.TxID(rec.TxHash),
		Writer:      rec.Writer,
		BlockNumber: rec.Sequence,
		ConfirmedAt: rec.CreatedAt,
	}, nil
}

// History 按时间顺序列出某个名字的所有写入
func (l *Ledger) History(ctx context.Context, name string) ([]TxRecord, error) {
	var recs []TxRecord
	err := l.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		Order("sequence ASC").
		Find(&recs).Error
	return recs, err
}

// VerifyChain 从头遍历交易日志，检查哈希链、签名与序号连续性
func (l *Ledger) VerifyChain(ctx context.Context) error {
	var recs []TxRecord
	if err := l.db.GetConn().WithContext(ctx).Order("sequence ASC").Find(&recs).Error; err != nil {
		return err
	}

	prev := genesisHash
	for i, rec := range recs {
		if rec.Sequence != uint64(i+1) {
			return fmt.Errorf("%w: sequence gap at %d", ErrChainBroken, rec.Sequence)
		}
		if rec.PrevHash != prev {
			return fmt.Errorf("%w: entry %d links to %s, want %s", ErrChainBroken, rec.Sequence, rec.PrevHash, prev)
		}

		d, err := types.ParseDigest(rec.Digest)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, rec.Sequence, err)
		}
		sig, err := hex.DecodeString(rec.Signature)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, rec.Sequence, err)
		}
		payload := core.BindingPayload{
			Name:      rec.Name,
			Digest:    d,
			Writer:    rec.Writer,
			Nonce:     rec.Nonce,
			Timestamp: rec.Timestamp,
		}

		h, err := payload.SigningHash()
		if err != nil {
			return err
		}
		signer, err := credentials.RecoverAddress(h, sig)
		if err != nil || signer != common.HexToAddress(rec.Writer) {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, rec.Sequence, ErrBadSignature)
		}

		want, err := chainEntry{Sequence: rec.Sequence, Payload: payload, Signature: sig, PrevHash: prev}.hash()
		if err != nil {
			return err
		}
		if want != rec.TxHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, rec.Sequence)
		}
		prev = rec.TxHash
	}
	return nil
}
