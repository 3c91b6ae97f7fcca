package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"

	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/client"
	"ledgerseal/pkg/credentials"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/ledger/rdb"
	"ledgerseal/pkg/rpc"
	"ledgerseal/pkg/server"
	"ledgerseal/pkg/storage/disk"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// setupTestServer 是所有 Service 测试共享的基础设施初始化逻辑
// 真实的 rdb 账本 + 磁盘存储，经 bufconn 走完整的 gRPC 链路
func setupTestServer(t *testing.T, policy ledger.Policy) *client.Client {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 1. Store
	store, err := disk.NewAdapter(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	// 2. Ledger
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	ledgerDB := rdb.NewWithConn(db)
	require.NoError(t, ledgerDB.AutoMigrate())

	signer, err := credentials.LoadSigner(testKey)
	require.NoError(t, err)
	lc := rdb.NewLedger(ledgerDB, signer, policy)

	// 3. Orchestrator + Service
	orch := attest.NewOrchestrator(lc, store, attest.Options{Policy: policy}, quiet)
	srv := server.New(quiet, client.MaxMessageSize)
	rpc.RegisterAttestServer(srv, NewAttestService(orch, lc, quiet))

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()

	c, err := client.New("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		srv.Stop()
		_ = ledgerDB.Close()
	})
	return c
}
