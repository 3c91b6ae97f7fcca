package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ledgerseal/pkg/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Settings 是进程启动时构建一次的完整配置
// 构建后只读，按引用传给各个组件
type Settings struct {
	Ledger   LedgerSettings  `mapstructure:"ledger"`
	Store    StoreSettings   `mapstructure:"store"`
	Timeouts TimeoutSettings `mapstructure:"timeouts"`
	Journal  JournalSettings `mapstructure:"journal"`
	Log      LogSettings     `mapstructure:"log"`
	Server   ServerSettings  `mapstructure:"server"`

	// Source 实际使用的配置文件，没有时为空
	Source string `mapstructure:"-"`
}

type LedgerSettings struct {
	Backend         string         `mapstructure:"backend"` // evm | rdb
	Endpoint        string         `mapstructure:"endpoint"`
	ChainID         int64          `mapstructure:"chain_id"`
	ContractAddress string         `mapstructure:"contract_address"`
	ContractABI     string         `mapstructure:"contract_abi"`
	PrivateKey      string         `mapstructure:"private_key"`
	RebindPolicy    string         `mapstructure:"rebind_policy"`
	GasLimit        uint64         `mapstructure:"gas_limit"`
	GasPriceGwei    int64          `mapstructure:"gas_price_gwei"`
	PollInterval    time.Duration  `mapstructure:"poll_interval"`
	Database        DatabaseConfig `mapstructure:"database"`
}

// Policy 返回解析后的重绑定策略，Validate 之后不会失败
func (l LedgerSettings) Policy() ledger.Policy {
	p, _ := ledger.ParsePolicy(l.RebindPolicy)
	return p
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | sqlite
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	LogSQL   bool   `mapstructure:"log_sql"`
}

type StoreSettings struct {
	Type  string        `mapstructure:"type"` // disk | s3 | ipfs | none
	Path  string        `mapstructure:"path"`
	Fatal bool          `mapstructure:"fatal"`
	S3    S3Settings    `mapstructure:"s3"`
	IPFS  IPFSSettings  `mapstructure:"ipfs"`
	Cache CacheSettings `mapstructure:"cache"`
}

type S3Settings struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type IPFSSettings struct {
	URL string `mapstructure:"url"`
	Pin bool   `mapstructure:"pin"`
}

// CacheSettings: RedisURL 为空时不启用缓存
type CacheSettings struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TimeoutSettings 每类远程调用各自独立的预算
type TimeoutSettings struct {
	StorePut time.Duration `mapstructure:"store_put"`
	StoreGet time.Duration `mapstructure:"store_get"`
	Submit   time.Duration `mapstructure:"submit"`
	Confirm  time.Duration `mapstructure:"confirm"`
	Fetch    time.Duration `mapstructure:"fetch"`
}

type JournalSettings struct {
	Path string `mapstructure:"path"`
}

type LogSettings struct {
	Level string `mapstructure:"level"`
}

// SlogLevel 把配置中的字符串转换为 slog.Level
func (l LogSettings) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type ServerSettings struct {
	Addr   string `mapstructure:"addr"`   // ledgerseal-server 监听地址
	Remote string `mapstructure:"remote"` // CLI 远程模式的目标地址
}

// ErrInvalidConfig 所有配置校验失败都包装它
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate 在启动时检查必需的配置
// write 为 true 时还要求签名私钥
func (s *Settings) Validate(write bool) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// 1. 账本
	l := s.Ledger
	switch l.Backend {
	case "evm":
		if l.Endpoint == "" {
			add("ledger.endpoint is required (INFURA_URL)")
		}
		if !common.IsHexAddress(l.ContractAddress) {
			add("ledger.contract_address %q is not a valid address (CONTRACT_ADDRESS)", l.ContractAddress)
		}
	case "rdb":
		db := l.Database
		switch db.Driver {
		case "sqlite":
			if db.DSN == "" {
				add("ledger.database.dsn is required for sqlite")
			}
		case "", "postgres":
			if db.DSN == "" && (db.Host == "" || db.DBName == "") {
				add("ledger.database needs dsn or host+dbname")
			}
		default:
			add("unsupported ledger.database.driver %q", db.Driver)
		}
	default:
		add("unsupported ledger.backend %q (want evm or rdb)", l.Backend)
	}
	if write && strings.TrimSpace(l.PrivateKey) == "" {
		add("ledger.private_key is required to submit bindings (PRIVATE_KEY)")
	}
	if _, err := ledger.ParsePolicy(l.RebindPolicy); err != nil {
		errs = append(errs, err)
	}

	// 2. 内容存储
	st := s.Store
	switch st.Type {
	case "disk":
		if st.Path == "" {
			add("store.path is required for disk store")
		}
	case "s3":
		if st.S3.Bucket == "" {
			add("store.s3.bucket is required")
		}
	case "ipfs":
		if st.IPFS.URL == "" {
			add("store.ipfs.url is required (IPFS_API_URL)")
		}
	case "none", "":
	default:
		add("unsupported store.type %q", st.Type)
	}

	// 3. 超时
	for name, d := range map[string]time.Duration{
		"store_put": s.Timeouts.StorePut,
		"store_get": s.Timeouts.StoreGet,
		"submit":    s.Timeouts.Submit,
		"confirm":   s.Timeouts.Confirm,
		"fetch":     s.Timeouts.Fetch,
	} {
		if d < 0 {
			add("timeouts.%s must not be negative", name)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
