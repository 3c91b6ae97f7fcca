package rdb

import (
	"context"
	"testing"
	"time"

	"ledgerseal/pkg/core"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_SubmitAndFetch(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	ctx := context.Background()

	d := digestOf("hello")
	r := mustSubmit(t, l, "hello.txt", d)

	assert.Len(t, r.TxID.String(), 66)
	assert.Equal(t, uint64(1), r.BlockNumber)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", r.Writer)

	got, err := l.FetchBinding(ctx, "hello.txt")
	require.NoError(t, err)
	assert.True(t, got.Equal(d))

	rec, err := l.GetBinding(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, r.TxID, rec.TxID)
}

func TestLedger_FetchMissing(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)

	_, err := l.FetchBinding(context.Background(), "ghost.txt")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = l.GetBinding(context.Background(), "ghost.txt")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLedger_OverwritePolicy(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	ctx := context.Background()

	mustSubmit(t, l, "a.bin", digestOf("v1"))
	r2 := mustSubmit(t, l, "a.bin", digestOf("v2"))

	got, err := l.FetchBinding(ctx, "a.bin")
	require.NoError(t, err)
	assert.True(t, got.Equal(digestOf("v2")), "last confirmed write wins")

	var b Binding
	require.NoError(t, l.db.GetConn().Where("name = ?", "a.bin").First(&b).Error)
	assert.Equal(t, int64(2), b.Version)
	assert.Equal(t, r2.TxID.String(), b.TxHash)
	assert.True(t, b.UpdatedAt.Equal(time.Unix(1700000000, 0)), "updated_at 来自账本时钟")

	hist, err := l.History(ctx, "a.bin")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, digestOf("v1").Hex(), hist[0].Digest)
	assert.JSONEq(t, `{"policy":"overwrite","version":2}`, string(hist[1].Meta))
}

func TestLedger_RejectPolicy(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyReject)
	ctx := context.Background()

	mustSubmit(t, l, "a.bin", digestOf("v1"))

	_, err := l.SubmitBinding(ctx, "a.bin", digestOf("v2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
	assert.ErrorIs(t, err, ledger.ErrAlreadyBound)

	// 拒绝后状态不变，也不留下交易
	got, err := l.FetchBinding(ctx, "a.bin")
	require.NoError(t, err)
	assert.True(t, got.Equal(digestOf("v1")))

	var n int64
	require.NoError(t, l.db.GetConn().Model(&TxRecord{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestLedger_NoSigner(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	l.signer = nil

	_, err := l.SubmitBinding(context.Background(), "a.bin", digestOf("x"))
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
}

func TestLedger_Apply_ForgedSignature(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	other := mustSigner(t, hardhatKey1)

	// 用 key1 签名，却声称是 key0 写的
	p := core.BindingPayload{
		Name:      "a.bin",
		Digest:    digestOf("x"),
		Writer:    l.signer.Address().Hex(),
		Nonce:     0,
		Timestamp: 1700000000,
	}
	h, err := p.SigningHash()
	require.NoError(t, err)
	sig, err := other.SignDigest(h)
	require.NoError(t, err)

	_, err = l.Apply(context.Background(), SignedBinding{Payload: p, Signature: sig})
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestLedger_Apply_ReplayRejected(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	ctx := context.Background()

	p := core.BindingPayload{
		Name:      "a.bin",
		Digest:    digestOf("x"),
		Writer:    l.signer.Address().Hex(),
		Nonce:     0,
		Timestamp: 1700000000,
	}
	h, err := p.SigningHash()
	require.NoError(t, err)
	sig, err := l.signer.SignDigest(h)
	require.NoError(t, err)

	_, err = l.Apply(ctx, SignedBinding{Payload: p, Signature: sig})
	require.NoError(t, err)

	// 同一笔签名交易再提交一次
	_, err = l.Apply(ctx, SignedBinding{Payload: p, Signature: sig})
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
	assert.ErrorIs(t, err, ErrBadNonce)
}

func TestLedger_DatabaseDown(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	require.NoError(t, l.db.Close())

	_, err := l.SubmitBinding(context.Background(), "a.bin", digestOf("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
	assert.NotErrorIs(t, err, ledger.ErrSubmissionRejected, "数据库故障不是拒绝")
}

func TestLedger_LookupReceipt(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	ctx := context.Background()

	r := mustSubmit(t, l, "a.bin", digestOf("x"))

	got, err := l.LookupReceipt(ctx, r.TxID)
	require.NoError(t, err)
	assert.Equal(t, r.BlockNumber, got.BlockNumber)
	assert.Equal(t, r.Writer, got.Writer)

	_, err = l.LookupReceipt(ctx, types.TxID("0xdeadbeef"))
	assert.ErrorIs(t, err, ledger.ErrTxNotFound)
}

func TestLedger_MultipleWriters(t *testing.T) {
	l0 := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	l1 := withSigner(t, l0, hardhatKey1)
	ctx := context.Background()

	mustSubmit(t, l0, "a.bin", digestOf("x"))
	r := mustSubmit(t, l1, "b.bin", digestOf("y"))
	mustSubmit(t, l0, "c.bin", digestOf("z"))

	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", r.Writer)

	var recs []TxRecord
	require.NoError(t, l0.db.GetConn().Order("sequence ASC").Find(&recs).Error)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(0), recs[1].Nonce, "nonce is per writer")
	assert.Equal(t, uint64(1), recs[2].Nonce)

	require.NoError(t, l0.VerifyChain(ctx))
}

func TestLedger_VerifyChain_DetectsTamper(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	ctx := context.Background()

	mustSubmit(t, l, "a.bin", digestOf("v1"))
	mustSubmit(t, l, "b.bin", digestOf("v2"))
	mustSubmit(t, l, "c.bin", digestOf("v3"))
	require.NoError(t, l.VerifyChain(ctx))

	// 直接改库里的 digest，绕过合约逻辑
	err := l.db.GetConn().Model(&TxRecord{}).
		Where("sequence = ?", 2).
		Update("digest", digestOf("evil").Hex()).Error
	require.NoError(t, err)

	err = l.VerifyChain(ctx)
	assert.ErrorIs(t, err, ErrChainBroken)
}

func TestLedger_VerifyChain_Empty(t *testing.T) {
	l := setupTestLedger(t, hardhatKey0, ledger.PolicyOverwrite)
	assert.NoError(t, l.VerifyChain(context.Background()))
}
