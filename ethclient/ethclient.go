package ethclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/semaphore"
)

var (
	ErrAllEndpointsUnavailable = errors.New("all rpc endpoints are unavailable")
	ErrIncompatibleChainID     = errors.New("rpc url returned incompatible chainID")
)

// Client is the gateway surface consumed by the scanner, the classifier and
// the attestation writer.
type Client interface {
	ChainID() *big.Int
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, n uint64) (*Block, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Transaction is the subset of a block transaction the pipeline needs. The
// sender comes straight from the node response, no local recovery.
type Transaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

type Block struct {
	Number       hexutil.Uint64 `json:"number"`
	Transactions []Transaction  `json:"transactions"`
}

type endpoint struct {
	url       string
	rawClient *rpc.Client
	client    *ethclient.Client
}

// Pool iterates a fixed-order endpoint list per logical call: primary URLs
// first, then fallbacks. An endpoint failing with a transport error or an
// HTTP 429 is skipped for this call only; no health state survives the call.
type Pool struct {
	chainID   *big.Int
	timeout   time.Duration
	endpoints []*endpoint
	sem       *semaphore.Weighted
}

func NewPool(ctx context.Context, urls, fallbackURLs []string, timeout time.Duration, chainID string, maxInflight int64) (*Pool, error) {
	id, ok := new(big.Int).SetString(chainID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", chainID)
	}
	all := make([]string, 0, len(urls)+len(fallbackURLs))
	all = append(all, urls...)
	all = append(all, fallbackURLs...)
	if len(all) == 0 {
		return nil, fmt.Errorf("endpoint pool is empty")
	}

	p := &Pool{
		chainID: id,
		timeout: timeout,
		sem:     semaphore.NewWeighted(maxInflight),
	}
	for _, url := range all {
		rawClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("can't dial JSON rpc url %s: %w", url, err)
		}
		p.endpoints = append(p.endpoints, &endpoint{
			url:       url,
			rawClient: rawClient,
			client:    ethclient.NewClient(rawClient),
		})
	}

	var remoteID *big.Int
	err := p.call(ctx, "eth_chainId", func(ctx context.Context, ep *endpoint) error {
		var err2 error
		remoteID, err2 = ep.client.ChainID(ctx)
		return err2
	})
	if err != nil {
		return nil, fmt.Errorf("can't get chainID: %w", err)
	}
	if remoteID.Cmp(id) != 0 {
		return nil, fmt.Errorf("received chainID %s != expected %s: %w", remoteID, id, ErrIncompatibleChainID)
	}
	return p, nil
}

func (p *Pool) ChainID() *big.Int {
	return new(big.Int).Set(p.chainID)
}

// call runs fn against the endpoints in order until one succeeds. Each
// endpoint is tried at most once per logical call.
func (p *Pool) call(ctx context.Context, method string, fn func(ctx context.Context, ep *endpoint) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	var lastErr error
	for _, ep := range p.endpoints {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		stop := ObserveDuration(ep.url, method)
		err := fn(callCtx, ep)
		stop()
		cancel()
		ObserveError(ep.url, method, err)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return &exhaustedError{last: lastErr}
}

type exhaustedError struct {
	last error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("all rpc endpoints are unavailable, last error: %s", e.last)
}

func (e *exhaustedError) Is(target error) bool {
	return target == ErrAllEndpointsUnavailable
}

func (e *exhaustedError) Unwrap() error {
	return e.last
}

// IsRateLimited reports whether err was ultimately caused by an HTTP 429.
func IsRateLimited(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := p.call(ctx, "eth_blockNumber", func(ctx context.Context, ep *endpoint) error {
		var err2 error
		n, err2 = ep.client.BlockNumber(ctx)
		return err2
	})
	return n, err
}

// BlockByNumber requests a block with full transaction objects and decodes
// only the fields the pipeline consumes.
func (p *Pool) BlockByNumber(ctx context.Context, n uint64) (*Block, error) {
	var block *Block
	err := p.call(ctx, "eth_getBlockByNumber", func(ctx context.Context, ep *endpoint) error {
		return ep.rawClient.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(n), true)
	})
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("block %d is not available yet", n)
	}
	return block, nil
}

func (p *Pool) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := p.call(ctx, "eth_getLogs", func(ctx context.Context, ep *endpoint) error {
		var err2 error
		logs, err2 = ep.client.FilterLogs(ctx, q)
		return err2
	})
	return logs, err
}

func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var res []byte
	err := p.call(ctx, "eth_call", func(ctx context.Context, ep *endpoint) error {
		var err2 error
		res, err2 = ep.client.CallContract(ctx, msg, nil)
		return err2
	})
	return res, err
}

func (p *Pool) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := p.call(ctx, "eth_getTransactionCount", func(ctx context.Context, ep *endpoint) error {
		var err2 error
		nonce, err2 = ep.client.PendingNonceAt(ctx, account)
		return err2
	})
	return nonce, err
}

func (p *Pool) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := p.call(ctx, "eth_gasPrice", func(ctx context.Context, ep *endpoint) error {
		var err2 error
		price, err2 = ep.client.SuggestGasPrice(ctx)
		return err2
	})
	return price, err
}

func (p *Pool) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return p.call(ctx, "eth_sendRawTransaction", func(ctx context.Context, ep *endpoint) error {
		return ep.client.SendTransaction(ctx, tx)
	})
}
