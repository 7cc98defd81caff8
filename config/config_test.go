package config_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vibeguard/sentinel/config"
)

const testCfg = `
chain:
  chain_id: 56
  rpc:
    urls:
      - https://bsc-dataseed.binance.org
      - https://rpc.ankr.com/bsc/${ANKR_API_KEY}
    fallback_urls:
      - https://bsc-dataseed1.defibit.io
    timeout: 15s
    max_inflight: 10
  poll_interval: 5s
  block_batch_size: 2
  max_catchup_blocks: 50
queues:
  tx_capacity: 8000
  log_capacity: 8000
workers:
  native: 6
  token: 4
alerts:
  min_limit_usd: 100
  owners:
    - 111111
    - 222222
  delivery_concurrency: 20
wallets:
  max_per_user: 5
  verification_ttl: 10m
telegram:
  token: test-token
attestation:
  enabled: true
  contract: 0x7301CFA0e1756B71869E93d4e4Dca5c7d0eb0AA6
  private_key: 4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318
  gas_limit: 130000
postgres:
  user: test_user
  password: test_password
  host: test_host
  port: 5432
  database: test_db
presenter:
  host: 0.0.0.0:3333
metrics:
  host: 0.0.0.0:2112
shutdown:
  drain_timeout: 30s
log_level: debug
`

//nolint:paralleltest
func TestReadConfigWithEnv(t *testing.T) {
	t.Setenv("ANKR_API_KEY", "12345678")

	cfg, err := config.ReadConfigWithEnv([]byte(testCfg))
	require.NoError(t, err)

	require.Equal(t, "56", cfg.Chain.ChainID)
	require.Equal(t, []string{
		"https://bsc-dataseed.binance.org",
		"https://rpc.ankr.com/bsc/12345678",
	}, cfg.Chain.RPC.URLs)
	require.Equal(t, []string{"https://bsc-dataseed1.defibit.io"}, cfg.Chain.RPC.FallbackURLs)
	require.Equal(t, config.Duration(15*time.Second), cfg.Chain.RPC.Timeout)
	require.Equal(t, uint64(2), cfg.Chain.BlockBatchSize)
	require.Equal(t, uint64(50), cfg.Chain.MaxCatchupBlocks)

	require.Equal(t, 8000, cfg.Queues.TxCapacity)
	require.Equal(t, 6, cfg.Workers.Native)
	require.Equal(t, 4, cfg.Workers.Token)

	require.Equal(t, 100.0, cfg.Alerts.MinLimitUSD)
	require.Equal(t, []int64{111111, 222222}, cfg.Alerts.Owners)

	require.Equal(t, 5, cfg.Wallets.MaxPerUser)
	require.Equal(t, config.Duration(10*time.Minute), cfg.Wallets.VerificationTTL)

	require.True(t, cfg.Attestation.Enabled)
	require.Equal(t, common.HexToAddress("0x7301CFA0e1756B71869E93d4e4Dca5c7d0eb0AA6"), cfg.Attestation.ContractAddress)
	require.Equal(t, uint64(130000), cfg.Attestation.GasLimit)

	require.Equal(t, &config.DBConfig{
		User:     "test_user",
		Password: "test_password",
		Host:     "test_host",
		Port:     5432,
		DB:       "test_db",
	}, cfg.DBConfig)
	require.Equal(t, "0.0.0.0:3333", cfg.Presenter.Host)
	require.Equal(t, "0.0.0.0:2112", cfg.Metrics.Host)
	require.Equal(t, config.Level(logrus.DebugLevel), cfg.LogLevel)
}

func TestReadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.ReadConfigWithEnv([]byte(`
chain:
  chain_id: 56
  rpc:
    urls:
      - https://bsc-dataseed.binance.org
alerts:
  owners:
    - 111111
telegram:
  token: test-token
redis:
  url: redis://localhost:6379/0
`))
	require.NoError(t, err)

	require.Equal(t, config.Duration(config.DefaultRPCTimeout), cfg.Chain.RPC.Timeout)
	require.Equal(t, int64(config.DefaultMaxInflight), cfg.Chain.RPC.MaxInflight)
	require.Equal(t, config.Duration(config.DefaultPollInterval), cfg.Chain.PollInterval)
	require.Equal(t, uint64(config.DefaultBlockBatchSize), cfg.Chain.BlockBatchSize)
	require.Equal(t, uint64(config.DefaultMaxCatchupBlocks), cfg.Chain.MaxCatchupBlocks)
	require.Equal(t, uint64(config.DefaultLargeGapBlocks), cfg.Chain.LargeGapBlocks)
	require.Equal(t, uint64(config.DefaultSmallLookbackBlocks), cfg.Chain.SmallLookbackBlocks)
	require.Equal(t, uint64(config.DefaultSaveEveryBlocks), cfg.Chain.SaveEveryBlocks)
	require.Equal(t, config.DefaultQueueCapacity, cfg.Queues.TxCapacity)
	require.Equal(t, config.DefaultQueueCapacity, cfg.Queues.LogCapacity)
	require.Equal(t, config.DefaultNativeWorkers, cfg.Workers.Native)
	require.Equal(t, config.DefaultTokenWorkers, cfg.Workers.Token)
	require.Equal(t, config.DefaultMinLimitUSD, cfg.Alerts.MinLimitUSD)
	require.Equal(t, int64(config.DefaultDeliveryConcurrency), cfg.Alerts.DeliveryConcurrency)
	require.Equal(t, config.DefaultMaxWalletsPerUser, cfg.Wallets.MaxPerUser)
	require.Equal(t, config.Duration(config.DefaultVerificationTTL), cfg.Wallets.VerificationTTL)
	require.Equal(t, config.Duration(config.DefaultDrainTimeout), cfg.Shutdown.DrainTimeout)
	require.Equal(t, config.Level(logrus.InfoLevel), cfg.LogLevel)
	require.NotEmpty(t, cfg.Pricing.BaseURL)
	require.NotEmpty(t, cfg.Risk.BaseURL)
}

func TestReadConfigErrors(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string
		blob string
		msg  string
	}{
		{
			name: "missing chain",
			blob: `
alerts:
  owners: [1]
telegram:
  token: t`,
			msg: "chain section is required",
		},
		{
			name: "missing rpc urls",
			blob: `
chain:
  chain_id: 56
alerts:
  owners: [1]
telegram:
  token: t`,
			msg: "chain.rpc.urls",
		},
		{
			name: "missing owners",
			blob: `
chain:
  chain_id: 56
  rpc:
    urls: [http://localhost:8545]
telegram:
  token: t`,
			msg: "alerts.owners",
		},
		{
			name: "missing telegram token",
			blob: `
chain:
  chain_id: 56
  rpc:
    urls: [http://localhost:8545]
alerts:
  owners: [1]`,
			msg: "telegram.token",
		},
		{
			name: "missing state store",
			blob: `
chain:
  chain_id: 56
  rpc:
    urls: [http://localhost:8545]
alerts:
  owners: [1]
telegram:
  token: t`,
			msg: "postgres or redis",
		},
		{
			name: "invalid attestation contract",
			blob: `
chain:
  chain_id: 56
  rpc:
    urls: [http://localhost:8545]
alerts:
  owners: [1]
telegram:
  token: t
redis:
  url: redis://localhost:6379/0
attestation:
  enabled: true
  private_key: abcd
  contract: not-an-address`,
			msg: "attestation.contract",
		},
		{
			name: "unknown field",
			blob: `
chain:
  chain_id: 56
  rpc:
    urls: [http://localhost:8545]
  unknown_key: 1
alerts:
  owners: [1]
telegram:
  token: t
redis:
  url: redis://localhost:6379/0`,
			msg: "unknown_key",
		},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.ReadConfigWithEnv([]byte(test.blob))
			require.Error(t, err)
			require.Contains(t, err.Error(), test.msg)
		})
	}
}
