package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 LEDGERSEAL_LEDGER_ENDPOINT
const EnvPrefix = "LEDGERSEAL"

// legacyEnv 兼容旧工具的环境变量名 (.env 文件里也是这些名字)
var legacyEnv = map[string]string{
	"ledger.endpoint":         "INFURA_URL",
	"ledger.private_key":      "PRIVATE_KEY",
	"ledger.contract_address": "CONTRACT_ADDRESS",
	"ledger.contract_abi":     "CONTRACT_ABI",
	"store.ipfs.url":          "IPFS_API_URL",
}

// flagKeys 命令行 flag 到配置键的映射；只绑定 FlagSet 中存在的
var flagKeys = map[string]string{
	"remote":      "server.remote",
	"log-level":   "log.level",
	"store-fatal": "store.fatal",
	"listen":      "server.addr",
}

// Load 构建 Settings
// cfgFile: 可选，用户显式指定的配置文件路径 (yaml / json / toml / .env)
// flags: 可选，已解析的命令行 flag，优先级最高
func Load(cfgFile string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// 1. 设置默认值 (Defaults)
	setDefaults(v)

	// 2. 配置搜索路径
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if isDotenv(cfgFile) {
			v.SetConfigType("dotenv")
		}
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		// 搜索顺序：
		// 1. 当前目录
		v.AddConfigPath(".")
		// 2. 当前目录下的 .ledgerseal
		v.AddConfigPath(".ledgerseal")
		// 3. 用户主目录下的 .ledgerseal
		v.AddConfigPath(filepath.Join(home, ".ledgerseal"))

		v.SetConfigType("yaml")
		v.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (LEDGERSEAL_LEDGER_ENDPOINT 等)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		// 新名字优先，旧名字兜底
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return nil, err
		}
	}

	// 4. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// 只是没找到配置文件，可能全靠环境变量，不算错
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	// .env 文件里的扁平旧名字映射到层级键
	for key, legacy := range legacyEnv {
		lk := strings.ToLower(legacy)
		if v.InConfig(lk) && !v.InConfig(key) {
			v.SetDefault(key, v.Get(lk))
		}
	}

	// 5. 命令行 flag
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	s.Source = v.ConfigFileUsed()
	return &s, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func isDotenv(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasSuffix(base, ".env")
}

func setDefaults(v *viper.Viper) {
	// 账本默认值
	v.SetDefault("ledger.backend", "evm")
	v.SetDefault("ledger.endpoint", "")
	v.SetDefault("ledger.chain_id", 0)
	v.SetDefault("ledger.contract_address", "")
	v.SetDefault("ledger.contract_abi", "")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.rebind_policy", "overwrite")
	v.SetDefault("ledger.gas_limit", 200000)
	v.SetDefault("ledger.gas_price_gwei", 0)
	v.SetDefault("ledger.poll_interval", "2s")

	// 关系型账本默认值
	v.SetDefault("ledger.database.driver", "postgres")
	v.SetDefault("ledger.database.dsn", "")
	v.SetDefault("ledger.database.host", "localhost")
	v.SetDefault("ledger.database.port", 5432)
	v.SetDefault("ledger.database.user", "")
	v.SetDefault("ledger.database.password", "")
	v.SetDefault("ledger.database.dbname", "")
	v.SetDefault("ledger.database.sslmode", "disable")
	v.SetDefault("ledger.database.log_sql", false)

	// 存储默认值
	wd, _ := os.Getwd()
	v.SetDefault("store.type", "disk")
	v.SetDefault("store.path", filepath.Join(wd, ".ledgerseal", "objects"))
	v.SetDefault("store.fatal", false)
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.prefix", "")
	v.SetDefault("store.s3.access_key", "")
	v.SetDefault("store.s3.secret_key", "")
	v.SetDefault("store.ipfs.url", "")
	v.SetDefault("store.ipfs.pin", true)
	v.SetDefault("store.cache.redis_url", "")
	v.SetDefault("store.cache.ttl", "24h")

	// 超时
	v.SetDefault("timeouts.store_put", "30s")
	v.SetDefault("timeouts.store_get", "30s")
	v.SetDefault("timeouts.submit", "30s")
	v.SetDefault("timeouts.confirm", "2m")
	v.SetDefault("timeouts.fetch", "15s")

	v.SetDefault("journal.path", filepath.Join(wd, ".ledgerseal", "journal.json"))
	v.SetDefault("log.level", "info")
	v.SetDefault("server.addr", ":50051")
	v.SetDefault("server.remote", "")
}
