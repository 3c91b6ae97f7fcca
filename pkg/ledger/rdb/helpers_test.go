package rdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ledgerseal/pkg/core"
	"ledgerseal/pkg/credentials"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

const (
	hardhatKey0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatKey1 = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

// setupTestLedger 构建隔离的测试环境
func setupTestLedger(t *testing.T, key string, policy ledger.Policy) *Ledger {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	ledgerDB := NewWithConn(db)
	require.NoError(t, ledgerDB.AutoMigrate())

	t.Cleanup(func() { _ = ledgerDB.Close() })

	return NewLedger(ledgerDB, mustSigner(t, key), policy).
		WithClock(func() time.Time { return time.Unix(1700000000, 0) })
}

// withSigner 复用同一个数据库，换一个写入者
func withSigner(t *testing.T, l *Ledger, key string) *Ledger {
	t.Helper()
	return NewLedger(l.db, mustSigner(t, key), l.policy).WithClock(l.clock)
}

func mustSigner(t *testing.T, key string) *credentials.Signer {
	t.Helper()
	s, err := credentials.LoadSigner(key)
	require.NoError(t, err)
	return s
}

func digestOf(s string) types.Digest {
	return core.ComputeDigest([]byte(s))
}

// mustSubmit 强制提交，失败则终止
func mustSubmit(t *testing.T, l *Ledger, name string, d types.Digest, msgAndArgs ...any) *ledger.Receipt {
	t.Helper()
	r, err := l.SubmitBinding(context.Background(), name, d)
	require.NoError(t, err, msgAndArgs...)
	return r
}
