// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"

	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/config"
	"ledgerseal/pkg/credentials"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/ledger/evm"
	"ledgerseal/pkg/ledger/rdb"
	"ledgerseal/pkg/storage"
	"ledgerseal/pkg/storage/cache"
	"ledgerseal/pkg/storage/disk"
	"ledgerseal/pkg/storage/ipfs"
	"ledgerseal/pkg/storage/s3"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 生命周期等于一次命令调用
type App struct {
	Settings *config.Settings
	Logger   *slog.Logger

	Store        storage.Store // store.type=none 时为 nil
	Ledger       ledger.Client
	Orchestrator *attest.Orchestrator

	closers []func() error
}

// Mode 决定是否需要加载签名凭证、是否需要内容存储
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	// Audit 只读账本，但要连接内容存储做交叉校验
	Audit
)

// NewLogger 创建写到 w 的结构化日志
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewApp 是工厂函数，负责组装这一台机器
// 它只依赖 Settings，不知道具体的 CLI 命令
func NewApp(ctx context.Context, s *config.Settings, mode Mode, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. 启动时校验配置，缺什么立即失败
	if err := s.Validate(mode == ReadWrite); err != nil {
		return nil, err
	}

	a := &App{Settings: s, Logger: logger}

	// 2. 初始化存储层 (写流程和交叉校验需要)
	if mode != ReadOnly {
		store, err := initStore(ctx, s.Store, s.Timeouts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to init storage: %w", err)
		}
		a.Store = store
		if c, ok := store.(*cache.CachedStore); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	// 3. 初始化账本
	lc, closer, err := initLedger(ctx, s, mode)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init ledger: %w", err)
	}
	a.Ledger = lc
	a.closers = append(a.closers, closer)

	a.Orchestrator = attest.NewOrchestrator(lc, a.Store, attest.Options{
		StoreFatal:      s.Store.Fatal,
		Policy:          s.Ledger.Policy(),
		StorePutTimeout: s.Timeouts.StorePut,
		StoreGetTimeout: s.Timeouts.StoreGet,
		FetchTimeout:    s.Timeouts.Fetch,
	}, logger)

	return a, nil
}

// Close 释放账本连接、缓存连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ReceiptLookup 返回账本的交易查询能力 (如果支持)
func (a *App) ReceiptLookup() (ledger.ReceiptLookup, bool) {
	rl, ok := a.Ledger.(ledger.ReceiptLookup)
	return rl, ok
}

func initStore(ctx context.Context, s config.StoreSettings, t config.TimeoutSettings, logger *slog.Logger) (storage.Store, error) {
	var backend storage.Store
	var err error

	switch s.Type {
	case "disk":
		backend, err = disk.NewAdapter(s.Path)
	case "s3":
		backend, err = s3.NewAdapter(ctx, s3.Config{
			Endpoint:        s.S3.Endpoint,
			Region:          s.S3.Region,
			Bucket:          s.S3.Bucket,
			Prefix:          s.S3.Prefix,
			AccessKeyID:     s.S3.AccessKey,
			SecretAccessKey: s.S3.SecretKey,
		})
	case "ipfs":
		// 同一个 http.Client 既做 add 也做 cat，取两者较长者
		backend, err = ipfs.NewAdapter(ipfs.Config{URL: s.IPFS.URL, Pin: s.IPFS.Pin, Timeout: max(t.StorePut, t.StoreGet)})
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
	if err != nil {
		return nil, err
	}

	if s.Cache.RedisURL == "" {
		return backend, nil
	}

	// 缓存是锦上添花，连不上就直接用后端
	cached, err := cache.NewCachedStore(backend, cache.Config{
		RedisURL:  s.Cache.RedisURL,
		TTL:       s.Cache.TTL,
		Namespace: storeNamespace(s),
	})
	if err != nil {
		logger.Warn("redis cache disabled", "error", err)
		return backend, nil
	}
	return cached, nil
}

// storeNamespace 标识一个具体的后端实例，作为缓存键的一部分
func storeNamespace(s config.StoreSettings) string {
	switch s.Type {
	case "disk":
		if abs, err := filepath.Abs(s.Path); err == nil {
			return "disk:" + abs
		}
		return "disk:" + s.Path
	case "s3":
		return "s3:" + path.Join(s.S3.Endpoint, s.S3.Bucket, s.S3.Prefix)
	case "ipfs":
		return "ipfs:" + s.IPFS.URL
	default:
		return s.Type
	}
}

func initLedger(ctx context.Context, s *config.Settings, mode Mode) (ledger.Client, func() error, error) {
	var signer *credentials.Signer
	if s.Ledger.PrivateKey != "" {
		var err error
		signer, err = credentials.LoadSigner(s.Ledger.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
	} else if mode == ReadWrite {
		return nil, nil, credentials.ErrNoCredential
	}

	l := s.Ledger
	switch l.Backend {
	case "evm":
		a, err := evm.Dial(ctx, evm.Config{
			Endpoint:        l.Endpoint,
			ChainID:         l.ChainID,
			ContractAddress: l.ContractAddress,
			ContractABI:     l.ContractABI,
			GasLimit:        l.GasLimit,
			GasPriceGwei:    l.GasPriceGwei,
			PollInterval:    l.PollInterval,
			SubmitTimeout:   s.Timeouts.Submit,
			ConfirmTimeout:  s.Timeouts.Confirm,
		}, signer)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	case "rdb":
		db, err := rdb.NewDB(ctx, rdb.Config{
			Driver:   l.Database.Driver,
			DSN:      l.Database.DSN,
			Host:     l.Database.Host,
			Port:     l.Database.Port,
			User:     l.Database.User,
			Password: l.Database.Password,
			DBName:   l.Database.DBName,
			SSLMode:  l.Database.SSLMode,
			LogSQL:   l.Database.LogSQL,
		})
		if err != nil {
			return nil, nil, err
		}
		return rdb.NewLedger(db, signer, l.Policy()), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger backend: %s", l.Backend)
	}
}
