package monitor_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/vibeguard/sentinel/config"
	"github.com/vibeguard/sentinel/entity"
	"github.com/vibeguard/sentinel/ethclient"
	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/monitor"
	"github.com/vibeguard/sentinel/pricing"
	"github.com/vibeguard/sentinel/risk"
	"github.com/vibeguard/sentinel/state"
)

type memRepo struct {
	blob []byte
}

func (r *memRepo) Load(_ context.Context) ([]byte, bool, error) {
	if r.blob == nil {
		return nil, false, nil
	}
	return r.blob, true, nil
}

func (r *memRepo) Save(_ context.Context, blob []byte) error {
	r.blob = append([]byte(nil), blob...)
	return nil
}

type fakeClient struct {
	mu       sync.Mutex
	head     uint64
	blocks   map[uint64]*ethclient.Block
	logs     []types.Log
	decimals map[common.Address]uint8
	sent     []*types.Transaction
}

func (f *fakeClient) ChainID() *big.Int { return big.NewInt(56) }

func (f *fakeClient) BlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeClient) BlockByNumber(_ context.Context, n uint64) (*ethclient.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	block, ok := f.blocks[n]
	if !ok {
		return nil, fmt.Errorf("block %d is not available yet", n)
	}
	return block, nil
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			res = append(res, l)
		}
	}
	return res, nil
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if decimals, ok := f.decimals[*msg.To]; ok {
		return common.BigToHash(big.NewInt(int64(decimals))).Bytes(), nil
	}
	return nil, fmt.Errorf("execution reverted")
}

func (f *fakeClient) NonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(5000000000), nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	personal []*entity.ClassificationResult
	whales   []*entity.ClassificationResult
}

func (d *recordingDispatcher) DispatchPersonal(_ context.Context, res *entity.ClassificationResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.personal = append(d.personal, res)
}

func (d *recordingDispatcher) DispatchWhale(_ context.Context, res *entity.ClassificationResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.whales = append(d.whales, res)
}

var riskyToken = common.HexToAddress("0x000000000000000000000000000000000000bad0")

// newMarketServer serves both the price and the token security endpoints.
func newMarketServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			"binancecoin": {"usd": 600},
		})
	})
	mux.HandleFunc("/simple/token_price/", func(w http.ResponseWriter, r *http.Request) {
		addr := r.URL.Query().Get("contract_addresses")
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			addr: {"usd": 2},
		})
	})
	mux.HandleFunc("/token_security/", func(w http.ResponseWriter, r *http.Request) {
		addr := r.URL.Query().Get("contract_addresses")
		flags := map[string]string{}
		if addr == strings.ToLower(riskyToken.Hex()) {
			flags["is_honeypot"] = "1"
			flags["is_open_source"] = "0"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{addr: flags},
		})
	})
	return httptest.NewServer(mux)
}

type classifierEnv struct {
	classifier *monitor.Classifier
	dispatcher *recordingDispatcher
	state      *state.State
	client     *fakeClient
}

func newClassifierEnv(t *testing.T) *classifierEnv {
	t.Helper()
	srv := newMarketServer(t)
	t.Cleanup(srv.Close)

	logger := logging.New()
	st := state.New(logger, &memRepo{}, 100, 5)
	require.NoError(t, st.Load(context.Background()))
	require.NoError(t, st.SetLimitUSD(1000))

	oracle := pricing.NewOracle(logger, &config.PricingConfig{
		BaseURL:                srv.URL,
		NativeCoinID:           "binancecoin",
		TokenPlatform:          "binance-smart-chain",
		FallbackNativePriceUSD: 600,
		CacheTTL:               config.Duration(time.Minute),
		Timeout:                config.Duration(time.Second),
	})
	scorer := risk.NewScorer(logger, &config.RiskConfig{
		BaseURL: srv.URL,
		Timeout: config.Duration(time.Second),
	}, "56")

	client := &fakeClient{decimals: map[common.Address]uint8{}}
	dispatcher := &recordingDispatcher{}
	return &classifierEnv{
		classifier: monitor.NewClassifier(logger, client, st, oracle, scorer, dispatcher),
		dispatcher: dispatcher,
		state:      st,
		client:     client,
	}
}

func nativeTx(value *big.Int, to common.Address) *entity.RawTx {
	return &entity.RawTx{
		Hash:        common.HexToHash("0x01"),
		From:        common.HexToAddress("0xf0"),
		To:          &to,
		Value:       value,
		BlockNumber: 100,
	}
}

func TestClassifierNativeWhale(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	ctx := context.Background()

	// 2 native * $600 = $1200, above the $1000 limit
	env.classifier.ProcessNativeTx(ctx, nativeTx(big.NewInt(0).Mul(big.NewInt(2), big.NewInt(1e18)), common.HexToAddress("0xaa")))

	require.Len(t, env.dispatcher.whales, 1)
	require.Empty(t, env.dispatcher.personal)
	res := env.dispatcher.whales[0]
	require.True(t, res.IsWhale)
	require.InDelta(t, 1200, res.AmountUSD, 0.01)
	require.Empty(t, res.RiskTags)

	stats, _ := env.state.StatsSnapshot()
	require.Equal(t, uint64(1), stats.Whales)
	require.Equal(t, uint64(0), stats.Threats)
}

func TestClassifierNativeBelowThreshold(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	env.classifier.ProcessNativeTx(context.Background(), nativeTx(big.NewInt(1e18), common.HexToAddress("0xaa")))

	require.Empty(t, env.dispatcher.whales)
	require.Empty(t, env.dispatcher.personal)
}

func TestClassifierSkipsZeroAndContractCreation(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	ctx := context.Background()

	env.classifier.ProcessNativeTx(ctx, nativeTx(big.NewInt(0), common.HexToAddress("0xaa")))
	env.classifier.ProcessNativeTx(ctx, &entity.RawTx{Value: big.NewInt(1e18)})
	env.classifier.ProcessNativeTx(ctx, &entity.RawTx{To: &common.Address{}})

	require.Empty(t, env.dispatcher.whales)
	require.Empty(t, env.dispatcher.personal)
}

func TestClassifierIgnoreList(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	ignored := common.HexToAddress("0xaa")
	env.state.AddIgnore(ignored)

	env.classifier.ProcessNativeTx(context.Background(), nativeTx(big.NewInt(0).Mul(big.NewInt(10), big.NewInt(1e18)), ignored))

	require.Empty(t, env.dispatcher.whales)
	require.Empty(t, env.dispatcher.personal)
}

func TestClassifierPersonalAlertBypassesThreshold(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	bound := common.HexToAddress("0xaa")
	_, err := env.state.BindWallet(42, bound)
	require.NoError(t, err)

	// $600, below the limit, still routed to the owner
	env.classifier.ProcessNativeTx(context.Background(), nativeTx(big.NewInt(1e18), bound))

	require.Empty(t, env.dispatcher.whales)
	require.Len(t, env.dispatcher.personal, 1)
	require.Equal(t, []int64{42}, env.dispatcher.personal[0].WalletOwners)

	stats, _ := env.state.StatsSnapshot()
	require.Equal(t, uint64(0), stats.Whales)
}

func TestClassifierWatchlistFlag(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	watched := common.HexToAddress("0xaa")
	env.state.AddWatch(watched)

	env.classifier.ProcessNativeTx(context.Background(), nativeTx(big.NewInt(0).Mul(big.NewInt(2), big.NewInt(1e18)), watched))

	require.Len(t, env.dispatcher.whales, 1)
	require.True(t, env.dispatcher.whales[0].IsWatchlist)
}

func transferLog(token common.Address, amount *big.Int) *entity.RawTransferLog {
	return &entity.RawTransferLog{
		Token:       token,
		From:        common.HexToAddress("0xf0"),
		To:          common.HexToAddress("0xf1"),
		Amount:      amount,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0x02"),
	}
}

func TestClassifierTokenWhaleWithRiskTags(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	env.client.decimals[riskyToken] = 6

	// 1e12 raw units at 6 decimals = 1e6 tokens * $2
	env.classifier.ProcessTransferLog(context.Background(), transferLog(riskyToken, big.NewInt(1e12)))

	require.Len(t, env.dispatcher.whales, 1)
	res := env.dispatcher.whales[0]
	require.InDelta(t, 2e6, res.AmountUSD, 1)
	require.ElementsMatch(t, []string{"honeypot", "closed-source"}, res.RiskTags)

	stats, _ := env.state.StatsSnapshot()
	require.Equal(t, uint64(1), stats.Whales)
	require.Equal(t, uint64(1), stats.Threats)
}

func TestClassifierTokenDecimalsFallback(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	token := common.HexToAddress("0x000000000000000000000000000000000000cafe")

	// decimals call fails, fall back to 18: 1e21 raw = 1000 tokens * $2
	env.classifier.ProcessTransferLog(context.Background(), transferLog(token, new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)))

	require.Len(t, env.dispatcher.whales, 1)
	require.InDelta(t, 2000, env.dispatcher.whales[0].AmountUSD, 0.01)
}

func TestClassifierTokenZeroAmount(t *testing.T) {
	t.Parallel()

	env := newClassifierEnv(t)
	env.classifier.ProcessTransferLog(context.Background(), transferLog(common.HexToAddress("0xcc"), big.NewInt(0)))

	require.Empty(t, env.dispatcher.whales)
	require.Empty(t, env.dispatcher.personal)
}
