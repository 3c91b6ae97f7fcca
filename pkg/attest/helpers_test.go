package attest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/storage"
	"ledgerseal/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 内存替身 (Fakes)
// -----------------------------------------------------------------------------

// fakeLedger 是一个内存账本，overwrite 语义
type fakeLedger struct {
	mu        sync.Mutex
	bindings  map[string]types.Digest
	submits   int
	submitErr error
	fetchErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bindings: make(map[string]types.Digest)}
}

func (l *fakeLedger) SubmitBinding(ctx context.Context, name string, d types.Digest) (*ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++
	if l.submitErr != nil {
		return nil, l.submitErr
	}
	l.bindings[name] = d
	return &ledger.Receipt{TxID: types.TxID("0x" + d.Hex()), BlockNumber: uint64(l.submits)}, nil
}

func (l *fakeLedger) FetchBinding(ctx context.Context, name string) (types.Digest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetchErr != nil {
		return types.Digest{}, l.fetchErr
	}
	d, ok := l.bindings[name]
	if !ok {
		return types.Digest{}, ledger.ErrNotFound
	}
	return d, nil
}

// matchOnlyLedger 模拟只暴露 verifyHash 的合约
type matchOnlyLedger struct {
	*fakeLedger
}

func (l matchOnlyLedger) FetchBinding(ctx context.Context, name string) (types.Digest, error) {
	return types.Digest{}, ledger.ErrReadUnsupported
}

func (l matchOnlyLedger) MatchBinding(ctx context.Context, name string, candidate types.Digest) (bool, error) {
	d, err := l.fakeLedger.FetchBinding(ctx, name)
	if err != nil {
		return false, err
	}
	return d.Equal(candidate), nil
}

// fakeStore 记录上传次数，可注入失败
type fakeStore struct {
	mu    sync.Mutex
	blobs map[types.ContentAddress][]byte
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[types.ContentAddress][]byte)}
}

func (s *fakeStore) Put(ctx context.Context, data []byte) (types.ContentAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	addr, err := storage.AddressOf(data)
	if err != nil {
		return "", err
	}
	s.blobs[addr] = append([]byte(nil), data...)
	return addr, nil
}

func (s *fakeStore) Get(ctx context.Context, addr types.ContentAddress) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// corrupt 原地改写已存储的内容，模拟存储端被篡改
func (s *fakeStore) corrupt(addr types.ContentAddress, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[addr] = data
}

func (s *fakeStore) Has(ctx context.Context, addr types.ContentAddress) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[addr]
	return ok, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}
