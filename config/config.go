package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	LedgerEthereum = "ethereum"
	LedgerMemory   = "memory"

	// MinKDFIterations is the lowest PBKDF2 work factor accepted in production.
	MinKDFIterations = 100_000
)

type Config struct {
	Port     string         `mapstructure:"port"`
	Log      LogConfig      `mapstructure:"log"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Eth      EthConfig      `mapstructure:"eth"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Purchase PurchaseConfig `mapstructure:"purchase"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type EthConfig struct {
	RPC             string `mapstructure:"rpc"`
	TestToken       string `mapstructure:"test_token"`
	ChainID         int64  `mapstructure:"chain_id"`
	MainNet         bool   `mapstructure:"main_net"`
	ContractAddress string `mapstructure:"contract_address"`
}

type LedgerConfig struct {
	// Mode selects the gateway: "ethereum" or "memory".
	Mode         string        `mapstructure:"mode"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type VaultConfig struct {
	KDFIterations int `mapstructure:"kdf_iterations"`
	Workers       int `mapstructure:"workers"`
}

type CacheConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	SweepSchedule  string        `mapstructure:"sweep_schedule"`
	SweepRate      float64       `mapstructure:"sweep_rate"`
	SweepWorkers   int           `mapstructure:"sweep_workers"`
}

type PurchaseConfig struct {
	PlatformFeeBps      int64         `mapstructure:"platform_fee_bps"`
	FeeReserve          string        `mapstructure:"fee_reserve"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
	ConfirmationDepth   uint64        `mapstructure:"confirmation_depth"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("mongo.database", "energy_share_service")
	v.SetDefault("ledger.mode", LedgerEthereum)
	v.SetDefault("ledger.poll_interval", 2*time.Second)
	v.SetDefault("vault.kdf_iterations", 310_000)
	v.SetDefault("vault.workers", 4)
	v.SetDefault("cache.ttl", 300*time.Second)
	v.SetDefault("cache.refresh_timeout", 10*time.Second)
	v.SetDefault("cache.sweep_schedule", "@hourly")
	v.SetDefault("cache.sweep_rate", 5.0)
	v.SetDefault("cache.sweep_workers", 4)
	v.SetDefault("purchase.platform_fee_bps", 250)
	v.SetDefault("purchase.fee_reserve", "1000000000000000") // 0.001 unit
	v.SetDefault("purchase.gas_limit", 300_000)
	v.SetDefault("purchase.confirmation_depth", 3)
	v.SetDefault("purchase.confirmation_timeout", 10*time.Minute)
}

// Load reads path (YAML) with environment overrides, e.g. CACHE_TTL=60s.
// A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// ENV 覆盖 YAML
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Ledger.Mode {
	case LedgerEthereum:
		if c.Eth.RPC == "" || c.Eth.ContractAddress == "" {
			return fmt.Errorf("config: eth.rpc and eth.contract_address are required in %s mode", LedgerEthereum)
		}
	case LedgerMemory:
	default:
		return fmt.Errorf("config: unknown ledger.mode %q", c.Ledger.Mode)
	}
	if c.Vault.KDFIterations < MinKDFIterations {
		return fmt.Errorf("config: vault.kdf_iterations must be at least %d", MinKDFIterations)
	}
	if c.Vault.Workers <= 0 {
		return fmt.Errorf("config: vault.workers must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive")
	}
	if c.Purchase.PlatformFeeBps < 0 || c.Purchase.PlatformFeeBps > 10_000 {
		return fmt.Errorf("config: purchase.platform_fee_bps must be within [0, 10000]")
	}
	if c.Purchase.ConfirmationDepth == 0 {
		return fmt.Errorf("config: purchase.confirmation_depth must be positive")
	}
	if c.Purchase.ConfirmationTimeout <= 0 {
		return fmt.Errorf("config: purchase.confirmation_timeout must be positive")
	}
	return nil
}
