package attest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"ledgerseal/pkg/core"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestUploadVerify_RoundTrip(t *testing.T) {
	ctx := context.Background()
	lc, st := newFakeLedger(), newFakeStore()
	o := NewOrchestrator(lc, st, Options{}, quietLogger())

	path := writeFile(t, t.TempDir(), "hello.txt", "hello")

	up, err := o.Upload(ctx, path, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSealed, up.Outcome)
	assert.Equal(t, helloDigest, up.Digest.Hex())
	assert.Equal(t, "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq", up.Address.String())
	assert.NotEmpty(t, up.TxID)
	assert.NotEmpty(t, up.Invocation)
	assert.NoError(t, up.StoreErr)

	v, err := o.Verify(ctx, path, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIntact, v.Outcome)
	assert.Equal(t, helloDigest, v.Recorded.Hex())
	assert.Equal(t, 0, v.Outcome.ExitCode())
}

func TestVerify_Tampered(t *testing.T) {
	ctx := context.Background()
	o := NewOrchestrator(newFakeLedger(), newFakeStore(), Options{}, quietLogger())

	path := writeFile(t, t.TempDir(), "hello.txt", "hello")
	_, err := o.Upload(ctx, path, "hello.txt")
	require.NoError(t, err)

	// 改一个字节
	require.NoError(t, os.WriteFile(path, []byte("hellO"), 0644))

	v, err := o.Verify(ctx, path, "hello.txt")
	require.NoError(t, err, "tampered is an outcome, not an error")
	assert.Equal(t, OutcomeTampered, v.Outcome)
	assert.Equal(t, helloDigest, v.Recorded.Hex())
	assert.Equal(t, 6, v.Outcome.ExitCode())
}

func TestVerify_NoRecord(t *testing.T) {
	o := NewOrchestrator(newFakeLedger(), nil, Options{}, quietLogger())
	path := writeFile(t, t.TempDir(), "ghost.txt", "boo")

	v, err := o.Verify(context.Background(), path, "ghost.txt")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoRecord, v.Outcome)
	assert.NotEqual(t, OutcomeTampered, v.Outcome)
	assert.Equal(t, 7, v.Outcome.ExitCode())
}

func TestVerify_LedgerUnavailable(t *testing.T) {
	lc := newFakeLedger()
	lc.fetchErr = errors.New("dial tcp: connection refused")
	o := NewOrchestrator(lc, nil, Options{}, quietLogger())
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	v, err := o.Verify(context.Background(), path, "a.txt")
	require.Error(t, err)
	assert.Equal(t, OutcomeLedgerUnavailable, v.Outcome)
	assert.Equal(t, 8, ExitCode(err))
}

func TestVerify_MatchOnlyLedger(t *testing.T) {
	ctx := context.Background()
	lc := matchOnlyLedger{newFakeLedger()}
	o := NewOrchestrator(lc, nil, Options{}, quietLogger())

	_, err := o.Seal(ctx, "a.bin", []byte("v1"))
	require.NoError(t, err)

	v, err := o.Check(ctx, "a.bin", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIntact, v.Outcome)

	v, err = o.Check(ctx, "a.bin", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTampered, v.Outcome)

	v, err = o.Check(ctx, "b.bin", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoRecord, v.Outcome)
}

func TestCheckStored_ReplicaMatches(t *testing.T) {
	ctx := context.Background()
	o := NewOrchestrator(newFakeLedger(), newFakeStore(), Options{}, quietLogger())

	up, err := o.Seal(ctx, "a.bin", []byte("payload"))
	require.NoError(t, err)
	require.False(t, up.Address.IsZero())

	v, err := o.CheckStored(ctx, "a.bin", []byte("payload"), up.Address)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIntact, v.Outcome)
	assert.Equal(t, up.Address, v.Address)
	assert.NoError(t, v.StoreErr)

	// 本地文件被改，存储副本仍与账本一致
	v, err = o.CheckStored(ctx, "a.bin", []byte("payload!"), up.Address)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTampered, v.Outcome)
	assert.NoError(t, v.StoreErr)
}

func TestCheckStored_ReplicaTampered(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	o := NewOrchestrator(newFakeLedger(), st, Options{}, quietLogger())

	up, err := o.Seal(ctx, "a.bin", []byte("payload"))
	require.NoError(t, err)
	st.corrupt(up.Address, []byte("swapped"))

	v, err := o.CheckStored(ctx, "a.bin", []byte("payload"), up.Address)
	require.NoError(t, err, "non-fatal cross-check failure is a warning")
	assert.Equal(t, OutcomeIntact, v.Outcome)
	assert.ErrorIs(t, v.StoreErr, storage.ErrContentMismatch)

	fatal := NewOrchestrator(o.ledger, st, Options{StoreFatal: true}, quietLogger())
	v, err = fatal.CheckStored(ctx, "a.bin", []byte("payload"), up.Address)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrContentMismatch)
	assert.Equal(t, OutcomeStoreFailure, v.Outcome)
	assert.Equal(t, 3, ExitCode(err))
}

func TestCheckStored_ReplicaMissing(t *testing.T) {
	ctx := context.Background()
	lc := newFakeLedger()
	o := NewOrchestrator(lc, newFakeStore(), Options{}, quietLogger())
	_, err := o.Seal(ctx, "a.bin", []byte("payload"))
	require.NoError(t, err)

	v, err := o.CheckStored(ctx, "a.bin", []byte("payload"), "bafkreimissing")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIntact, v.Outcome)
	assert.ErrorIs(t, v.StoreErr, storage.ErrNotFound)

	// 没有配置存储
	bare := NewOrchestrator(lc, nil, Options{}, quietLogger())
	v, err = bare.CheckStored(ctx, "a.bin", []byte("payload"), "bafkreimissing")
	require.NoError(t, err)
	assert.Error(t, v.StoreErr)
}

func TestCheckStored_SkippedWithoutRecord(t *testing.T) {
	st := newFakeStore()
	o := NewOrchestrator(newFakeLedger(), st, Options{StoreFatal: true}, quietLogger())
	addr, err := st.Put(context.Background(), []byte("payload"))
	require.NoError(t, err)

	v, err := o.CheckStored(context.Background(), "ghost.bin", []byte("payload"), addr)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoRecord, v.Outcome)
	assert.True(t, v.Address.IsZero())
}

func TestCheckStored_MatchOnlyLedger(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	o := NewOrchestrator(matchOnlyLedger{newFakeLedger()}, st, Options{}, quietLogger())

	up, err := o.Seal(ctx, "a.bin", []byte("v1"))
	require.NoError(t, err)

	// 本地不匹配时 Recorded 为零值，副本需要再问一次账本
	v, err := o.CheckStored(ctx, "a.bin", []byte("v2"), up.Address)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTampered, v.Outcome)
	assert.NoError(t, v.StoreErr)

	st.corrupt(up.Address, []byte("v3"))
	v, err = o.CheckStored(ctx, "a.bin", []byte("v1"), up.Address)
	require.NoError(t, err)
	assert.ErrorIs(t, v.StoreErr, storage.ErrContentMismatch)
}

func TestUpload_IOFailure(t *testing.T) {
	lc := newFakeLedger()
	o := NewOrchestrator(lc, newFakeStore(), Options{}, quietLogger())

	res, err := o.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIOFailure)
	assert.Equal(t, OutcomeIOFailure, res.Outcome)
	assert.Equal(t, 2, ExitCode(err))
	assert.Zero(t, lc.submits, "nothing is submitted after a read failure")
}

func TestUpload_StoreFailureNonFatal(t *testing.T) {
	lc, st := newFakeLedger(), newFakeStore()
	st.err = storage.Unavailable("put", errors.New("connection refused"))
	o := NewOrchestrator(lc, st, Options{}, quietLogger())

	res, err := o.Seal(context.Background(), "a.bin", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSealed, res.Outcome)
	assert.ErrorIs(t, res.StoreErr, storage.ErrStoreUnavailable)
	assert.Empty(t, res.Address)
	assert.Equal(t, 1, lc.submits)
}

func TestUpload_StoreFailureFatal(t *testing.T) {
	lc, st := newFakeLedger(), newFakeStore()
	st.err = storage.Rejected("put", errors.New("quota exceeded"))
	o := NewOrchestrator(lc, st, Options{StoreFatal: true}, quietLogger())

	res, err := o.Seal(context.Background(), "a.bin", []byte("payload"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStoreRejected)
	assert.Equal(t, OutcomeStoreFailure, res.Outcome)
	assert.Equal(t, 3, ExitCode(err))
	assert.Zero(t, lc.submits)
}

func TestUpload_Rejected(t *testing.T) {
	lc := newFakeLedger()
	lc.submitErr = ledger.Rejected("send", errors.New("nonce too low"))
	o := NewOrchestrator(lc, nil, Options{}, quietLogger())

	res, err := o.Seal(context.Background(), "a.bin", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, 4, ExitCode(err))
}

func TestUpload_LedgerUnreachable(t *testing.T) {
	lc := newFakeLedger()
	lc.submitErr = ledger.Unavailable("nonce", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	o := NewOrchestrator(lc, nil, Options{}, quietLogger())

	res, err := o.Seal(context.Background(), "a.bin", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, OutcomeLedgerUnavailable, res.Outcome)
	assert.NotEqual(t, OutcomeRejected.ExitCode(), ExitCode(err), "unreachable node is not a refusal")
	assert.Equal(t, 8, ExitCode(err))
	assert.True(t, res.TxID.IsZero())
}

func TestUpload_TimeoutIsUnknown(t *testing.T) {
	lc := newFakeLedger()
	lc.submitErr = fmt.Errorf("wait: %w", &ledger.PendingError{TxID: "0xfeed", Cause: context.DeadlineExceeded})
	o := NewOrchestrator(lc, newFakeStore(), Options{}, quietLogger())

	res, err := o.Seal(context.Background(), "a.bin", []byte("x"))
	require.NoError(t, err, "unknown is neither success nor failure")
	assert.Equal(t, OutcomeUnknown, res.Outcome)
	assert.Equal(t, "0xfeed", res.TxID.String())
	assert.False(t, res.Outcome.Success())

	code := res.Outcome.ExitCode()
	assert.NotEqual(t, OutcomeSealed.ExitCode(), code)
	assert.NotEqual(t, OutcomeRejected.ExitCode(), code)
	assert.Equal(t, 5, code)
}

func TestUpload_RejectPolicy(t *testing.T) {
	ctx := context.Background()
	lc := newFakeLedger()
	o := NewOrchestrator(lc, nil, Options{Policy: ledger.PolicyReject}, quietLogger())

	_, err := o.Seal(ctx, "a.bin", []byte("v1"))
	require.NoError(t, err)

	res, err := o.Seal(ctx, "a.bin", []byte("v2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrAlreadyBound)
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, 1, lc.submits, "second write is never broadcast")
}

func TestUpload_RejectPolicy_MatchOnly(t *testing.T) {
	ctx := context.Background()
	lc := matchOnlyLedger{newFakeLedger()}
	o := NewOrchestrator(lc, nil, Options{Policy: ledger.PolicyReject}, quietLogger())

	_, err := o.Seal(ctx, "a.bin", []byte("v1"))
	require.NoError(t, err)

	_, err = o.Seal(ctx, "a.bin", []byte("v2"))
	assert.ErrorIs(t, err, ledger.ErrAlreadyBound)
}

func TestUpload_OverwritePolicy(t *testing.T) {
	ctx := context.Background()
	o := NewOrchestrator(newFakeLedger(), nil, Options{}, quietLogger())

	_, err := o.Seal(ctx, "a.bin", []byte("v1"))
	require.NoError(t, err)
	_, err = o.Seal(ctx, "a.bin", []byte("v2"))
	require.NoError(t, err)

	v, err := o.Check(ctx, "a.bin", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIntact, v.Outcome)
}

func TestUpload_EmptyName(t *testing.T) {
	o := NewOrchestrator(newFakeLedger(), nil, Options{}, quietLogger())
	_, err := o.Seal(context.Background(), "", []byte("x"))
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 4, ExitCode(fmt.Errorf("wrapped: %w", fail(OutcomeRejected, errors.New("x")))))
	assert.Equal(t, 7, Worst(0, 7, 6, 1))
	assert.Equal(t, 0, Worst())

	o, err := ParseOutcome("UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, o)
	_, err = ParseOutcome("MAYBE")
	assert.Error(t, err)
}
