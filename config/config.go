package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

type RPCConfig struct {
	URLs         []string `yaml:"urls"`
	FallbackURLs []string `yaml:"fallback_urls"`
	Timeout      Duration `yaml:"timeout"`
	MaxInflight  int64    `yaml:"max_inflight"`
}

type ChainConfig struct {
	ChainID             string     `yaml:"chain_id"`
	RPC                 *RPCConfig `yaml:"rpc"`
	PollInterval        Duration   `yaml:"poll_interval"`
	BlockBatchSize      uint64     `yaml:"block_batch_size"`
	MaxCatchupBlocks    uint64     `yaml:"max_catchup_blocks"`
	LargeGapBlocks      uint64     `yaml:"large_gap_blocks"`
	SmallLookbackBlocks uint64     `yaml:"small_lookback_blocks"`
	SaveEveryBlocks     uint64     `yaml:"save_every_blocks"`
}

type QueuesConfig struct {
	TxCapacity  int `yaml:"tx_capacity"`
	LogCapacity int `yaml:"log_capacity"`
}

type WorkersConfig struct {
	Native int `yaml:"native"`
	Token  int `yaml:"token"`
}

type AlertsConfig struct {
	MinLimitUSD         float64 `yaml:"min_limit_usd"`
	Owners              []int64 `yaml:"owners"`
	DeliveryConcurrency int64   `yaml:"delivery_concurrency"`
}

type PricingConfig struct {
	BaseURL                string   `yaml:"base_url"`
	NativeCoinID           string   `yaml:"native_coin_id"`
	TokenPlatform          string   `yaml:"token_platform"`
	FallbackNativePriceUSD float64  `yaml:"fallback_native_price_usd"`
	CacheTTL               Duration `yaml:"cache_ttl"`
	Timeout                Duration `yaml:"timeout"`
}

type RiskConfig struct {
	BaseURL   string   `yaml:"base_url"`
	AppKey    string   `yaml:"app_key"`
	AppSecret string   `yaml:"app_secret"`
	Timeout   Duration `yaml:"timeout"`
}

type WalletsConfig struct {
	MaxPerUser      int      `yaml:"max_per_user"`
	VerificationTTL Duration `yaml:"verification_ttl"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type AttestationConfig struct {
	Enabled         bool           `yaml:"enabled"`
	Contract        string         `yaml:"contract"`
	PrivateKey      string         `yaml:"private_key"`
	GasLimit        uint64         `yaml:"gas_limit"`
	QueueCapacity   int            `yaml:"queue_capacity"`
	ContractAddress common.Address `yaml:"-"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type MetricsConfig struct {
	Host string `yaml:"host"`
}

type ShutdownConfig struct {
	DrainTimeout Duration `yaml:"drain_timeout"`
}

type Config struct {
	Chain       *ChainConfig       `yaml:"chain"`
	Queues      *QueuesConfig      `yaml:"queues"`
	Workers     *WorkersConfig     `yaml:"workers"`
	Alerts      *AlertsConfig      `yaml:"alerts"`
	Pricing     *PricingConfig     `yaml:"pricing"`
	Risk        *RiskConfig        `yaml:"risk"`
	Wallets     *WalletsConfig     `yaml:"wallets"`
	Telegram    *TelegramConfig    `yaml:"telegram"`
	Attestation *AttestationConfig `yaml:"attestation"`
	DBConfig    *DBConfig          `yaml:"postgres"`
	Redis       *RedisConfig       `yaml:"redis"`
	Presenter   *PresenterConfig   `yaml:"presenter"`
	Metrics     *MetricsConfig     `yaml:"metrics"`
	Shutdown    *ShutdownConfig    `yaml:"shutdown"`
	LogLevel    Level              `yaml:"log_level"`
}

const (
	DefaultRPCTimeout          = 12 * time.Second
	DefaultMaxInflight         = 10
	DefaultPollInterval        = 5 * time.Second
	DefaultBlockBatchSize      = 2
	DefaultMaxCatchupBlocks    = 50
	DefaultLargeGapBlocks      = 1000
	DefaultSmallLookbackBlocks = 5
	DefaultSaveEveryBlocks     = 20
	DefaultQueueCapacity       = 8000
	DefaultNativeWorkers       = 6
	DefaultTokenWorkers        = 4
	DefaultMinLimitUSD         = 100.0
	DefaultDeliveryConcurrency = 20
	DefaultPriceCacheTTL       = 120 * time.Second
	DefaultHTTPTimeout         = 8 * time.Second
	DefaultMaxWalletsPerUser   = 5
	DefaultVerificationTTL     = 600 * time.Second
	DefaultAttestationGasLimit = 130000
	DefaultAttestationQueueCap = 100
	DefaultDrainTimeout        = 30 * time.Second
)

func (cfg *Config) applyDefaults() {
	if cfg.Chain.RPC.Timeout == 0 {
		cfg.Chain.RPC.Timeout = Duration(DefaultRPCTimeout)
	}
	if cfg.Chain.RPC.MaxInflight == 0 {
		cfg.Chain.RPC.MaxInflight = DefaultMaxInflight
	}
	if cfg.Chain.PollInterval == 0 {
		cfg.Chain.PollInterval = Duration(DefaultPollInterval)
	}
	if cfg.Chain.BlockBatchSize == 0 {
		cfg.Chain.BlockBatchSize = DefaultBlockBatchSize
	}
	if cfg.Chain.MaxCatchupBlocks == 0 {
		cfg.Chain.MaxCatchupBlocks = DefaultMaxCatchupBlocks
	}
	if cfg.Chain.LargeGapBlocks == 0 {
		cfg.Chain.LargeGapBlocks = DefaultLargeGapBlocks
	}
	if cfg.Chain.SmallLookbackBlocks == 0 {
		cfg.Chain.SmallLookbackBlocks = DefaultSmallLookbackBlocks
	}
	if cfg.Chain.SaveEveryBlocks == 0 {
		cfg.Chain.SaveEveryBlocks = DefaultSaveEveryBlocks
	}
	if cfg.Queues == nil {
		cfg.Queues = &QueuesConfig{}
	}
	if cfg.Queues.TxCapacity == 0 {
		cfg.Queues.TxCapacity = DefaultQueueCapacity
	}
	if cfg.Queues.LogCapacity == 0 {
		cfg.Queues.LogCapacity = DefaultQueueCapacity
	}
	if cfg.Workers == nil {
		cfg.Workers = &WorkersConfig{}
	}
	if cfg.Workers.Native == 0 {
		cfg.Workers.Native = DefaultNativeWorkers
	}
	if cfg.Workers.Token == 0 {
		cfg.Workers.Token = DefaultTokenWorkers
	}
	if cfg.Alerts.MinLimitUSD == 0 {
		cfg.Alerts.MinLimitUSD = DefaultMinLimitUSD
	}
	if cfg.Alerts.DeliveryConcurrency == 0 {
		cfg.Alerts.DeliveryConcurrency = DefaultDeliveryConcurrency
	}
	if cfg.Pricing == nil {
		cfg.Pricing = &PricingConfig{}
	}
	if cfg.Pricing.BaseURL == "" {
		cfg.Pricing.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Pricing.NativeCoinID == "" {
		cfg.Pricing.NativeCoinID = "binancecoin"
	}
	if cfg.Pricing.TokenPlatform == "" {
		cfg.Pricing.TokenPlatform = "binance-smart-chain"
	}
	if cfg.Pricing.FallbackNativePriceUSD == 0 {
		cfg.Pricing.FallbackNativePriceUSD = 600.0
	}
	if cfg.Pricing.CacheTTL == 0 {
		cfg.Pricing.CacheTTL = Duration(DefaultPriceCacheTTL)
	}
	if cfg.Pricing.Timeout == 0 {
		cfg.Pricing.Timeout = Duration(DefaultHTTPTimeout)
	}
	if cfg.Risk == nil {
		cfg.Risk = &RiskConfig{}
	}
	if cfg.Risk.BaseURL == "" {
		cfg.Risk.BaseURL = "https://api.gopluslabs.io/api/v1"
	}
	if cfg.Risk.Timeout == 0 {
		cfg.Risk.Timeout = Duration(DefaultHTTPTimeout)
	}
	if cfg.Wallets == nil {
		cfg.Wallets = &WalletsConfig{}
	}
	if cfg.Wallets.MaxPerUser == 0 {
		cfg.Wallets.MaxPerUser = DefaultMaxWalletsPerUser
	}
	if cfg.Wallets.VerificationTTL == 0 {
		cfg.Wallets.VerificationTTL = Duration(DefaultVerificationTTL)
	}
	if cfg.Attestation == nil {
		cfg.Attestation = &AttestationConfig{}
	}
	if cfg.Attestation.GasLimit == 0 {
		cfg.Attestation.GasLimit = DefaultAttestationGasLimit
	}
	if cfg.Attestation.QueueCapacity == 0 {
		cfg.Attestation.QueueCapacity = DefaultAttestationQueueCap
	}
	if cfg.Shutdown == nil {
		cfg.Shutdown = &ShutdownConfig{}
	}
	if cfg.Shutdown.DrainTimeout == 0 {
		cfg.Shutdown.DrainTimeout = Duration(DefaultDrainTimeout)
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = Level(logrus.InfoLevel)
	}
}

func (cfg *Config) validate() error {
	if cfg.Chain == nil {
		return fmt.Errorf("chain section is required")
	}
	if cfg.Chain.RPC == nil || len(cfg.Chain.RPC.URLs) == 0 {
		return fmt.Errorf("chain.rpc.urls must list at least one endpoint")
	}
	if cfg.Chain.ChainID == "" {
		return fmt.Errorf("chain.chain_id is required")
	}
	if cfg.Alerts == nil || len(cfg.Alerts.Owners) == 0 {
		return fmt.Errorf("alerts.owners must list at least one recipient")
	}
	if cfg.Telegram == nil || cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.DBConfig == nil && cfg.Redis == nil {
		return fmt.Errorf("either postgres or redis state store must be configured")
	}
	if cfg.Attestation != nil && cfg.Attestation.Enabled {
		if cfg.Attestation.PrivateKey == "" {
			return fmt.Errorf("attestation.private_key is required when attestation is enabled")
		}
		if !common.IsHexAddress(cfg.Attestation.Contract) {
			return fmt.Errorf("attestation.contract %q is not a valid address", cfg.Attestation.Contract)
		}
		cfg.Attestation.ContractAddress = common.HexToAddress(cfg.Attestation.Contract)
	}
	return nil
}

// ReadConfigWithEnv parses a yaml blob after expanding ${VAR} references from
// the process environment.
func ReadConfigWithEnv(blob []byte) (*Config, error) {
	blob = []byte(os.ExpandEnv(string(blob)))
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
