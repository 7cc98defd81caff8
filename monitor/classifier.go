package monitor

import (
	"context"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/vibeguard/sentinel/contract/abi"
	"github.com/vibeguard/sentinel/entity"
	"github.com/vibeguard/sentinel/ethclient"
	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/pricing"
	"github.com/vibeguard/sentinel/risk"
	"github.com/vibeguard/sentinel/state"
)

const defaultTokenDecimals = 18

// Dispatcher receives finished classification results. Delivery failures stay
// inside the dispatcher, classification never blocks on them.
type Dispatcher interface {
	DispatchPersonal(ctx context.Context, res *entity.ClassificationResult)
	DispatchWhale(ctx context.Context, res *entity.ClassificationResult)
}

// Classifier turns raw queue items into alerts. Every item goes through the
// same funnel: ignore list, personal routing for bound wallets, then the USD
// whale threshold and a risk lookup on the counterparty.
type Classifier struct {
	logger     logging.Logger
	client     ethclient.Client
	state      *state.State
	oracle     *pricing.Oracle
	scorer     *risk.Scorer
	dispatcher Dispatcher

	decimalsMu sync.Mutex
	decimals   map[common.Address]uint8
}

func NewClassifier(
	logger logging.Logger,
	client ethclient.Client,
	st *state.State,
	oracle *pricing.Oracle,
	scorer *risk.Scorer,
	dispatcher Dispatcher,
) *Classifier {
	return &Classifier{
		logger:     logger,
		client:     client,
		state:      st,
		oracle:     oracle,
		scorer:     scorer,
		dispatcher: dispatcher,
		decimals:   map[common.Address]uint8{},
	}
}

// ProcessNativeTx classifies one native-coin transaction.
func (c *Classifier) ProcessNativeTx(ctx context.Context, tx *entity.RawTx) {
	if tx.Value == nil || tx.Value.Sign() == 0 || tx.To == nil {
		return
	}
	snap := c.state.ConfigSnapshot()
	if c.isIgnored(&snap, tx.From, *tx.To) {
		return
	}

	amount := weiToFloat(tx.Value, 18)
	amountUSD := amount * c.oracle.NativePriceUSD(ctx)

	res := &entity.ClassificationResult{
		TxHash:      tx.Hash,
		BlockNumber: tx.BlockNumber,
		From:        tx.From,
		To:          *tx.To,
		Asset:       "native",
		Amount:      amount,
		AmountUSD:   amountUSD,
	}
	c.route(ctx, &snap, res, *tx.To)
}

// ProcessTransferLog classifies one ERC-20 Transfer event.
func (c *Classifier) ProcessTransferLog(ctx context.Context, log *entity.RawTransferLog) {
	if log.Amount == nil || log.Amount.Sign() == 0 {
		return
	}
	snap := c.state.ConfigSnapshot()
	if c.isIgnored(&snap, log.From, log.To) {
		return
	}

	decimals := c.tokenDecimals(ctx, log.Token)
	amount := weiToFloat(log.Amount, decimals)
	amountUSD := amount * c.oracle.TokenPriceUSD(ctx, log.Token)

	token := log.Token
	res := &entity.ClassificationResult{
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		From:        log.From,
		To:          log.To,
		Asset:       "token",
		Token:       &token,
		Amount:      amount,
		AmountUSD:   amountUSD,
	}
	c.route(ctx, &snap, res, log.Token)
}

// route applies the shared routing rules: bound-wallet owners get a personal
// alert regardless of size, everything else competes against the whale
// threshold and picks up risk tags on the scored address.
func (c *Classifier) route(ctx context.Context, snap *state.ConfigSnapshot, res *entity.ClassificationResult, scored common.Address) {
	owners := appendUnique(c.state.WalletOwners(res.From), c.state.WalletOwners(res.To))
	if len(owners) > 0 {
		res.WalletOwners = owners
		PersonalAlerts.Inc()
		c.dispatcher.DispatchPersonal(ctx, res)
		return
	}

	if res.AmountUSD < snap.LimitUSD {
		return
	}
	res.IsWhale = true
	res.IsWatchlist = snap.Watch[lowerHex(res.From)] || snap.Watch[lowerHex(res.To)]
	c.state.IncWhales()
	WhaleEvents.Inc()

	res.RiskTags = c.scorer.Score(ctx, scored)
	if len(res.RiskTags) > 0 {
		c.state.IncThreats()
		ThreatEvents.Inc()
	}

	c.logger.WithFields(logrus.Fields{
		"tx_hash":    res.TxHash.Hex(),
		"amount_usd": res.AmountUSD,
		"risk_tags":  res.RiskTags,
	}).Info("whale event detected")
	c.dispatcher.DispatchWhale(ctx, res)
}

func (c *Classifier) isIgnored(snap *state.ConfigSnapshot, from, to common.Address) bool {
	return snap.Ignore[lowerHex(from)] || snap.Ignore[lowerHex(to)]
}

// tokenDecimals resolves the decimals of a token contract, caching the answer
// forever. Contracts that fail the call are treated as 18-decimal tokens.
func (c *Classifier) tokenDecimals(ctx context.Context, token common.Address) uint8 {
	c.decimalsMu.Lock()
	cached, ok := c.decimals[token]
	c.decimalsMu.Unlock()
	if ok {
		return cached
	}

	decimals := uint8(defaultTokenDecimals)
	data, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: abi.DecimalsCallData,
	})
	if err != nil {
		c.logger.WithError(err).WithField("token", token.Hex()).Debug("can't call decimals, assuming 18")
	} else if parsed, err := abi.UnpackDecimals(data); err != nil {
		c.logger.WithError(err).WithField("token", token.Hex()).Debug("can't decode decimals, assuming 18")
	} else {
		decimals = parsed
	}

	c.decimalsMu.Lock()
	c.decimals[token] = decimals
	c.decimalsMu.Unlock()
	return decimals
}

func weiToFloat(amount *big.Int, decimals uint8) float64 {
	f, _ := new(big.Float).SetInt(amount).Float64()
	return f / math.Pow10(int(decimals))
}

func lowerHex(addr common.Address) string {
	return "0x" + common.Bytes2Hex(addr.Bytes())
}

func appendUnique(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	var out []int64
	for _, id := range append(a, b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
