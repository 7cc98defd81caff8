package attestation

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/vibeguard/sentinel/config"
	"github.com/vibeguard/sentinel/contract/abi"
	"github.com/vibeguard/sentinel/ethclient"
	"github.com/vibeguard/sentinel/logging"
)

// Request is one scan verdict to record on chain.
type Request struct {
	Target common.Address
	Score  int64
	IsSafe bool
}

// Writer records scan verdicts by calling the registry contract from a single
// reporter key. Requests flow through a bounded queue and are submitted one at
// a time, so nonces never race. A failed submission is logged and dropped,
// alert delivery never depends on it.
type Writer struct {
	logger   logging.Logger
	client   ethclient.Client
	contract common.Address
	gasLimit uint64
	key      *ecdsa.PrivateKey
	reporter common.Address
	queue    chan Request
}

func NewWriter(logger logging.Logger, client ethclient.Client, cfg *config.AttestationConfig) (*Writer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("can't parse attestation key: %w", err)
	}
	return &Writer{
		logger:   logger,
		client:   client,
		contract: cfg.ContractAddress,
		gasLimit: cfg.GasLimit,
		key:      key,
		reporter: crypto.PubkeyToAddress(key.PublicKey),
		queue:    make(chan Request, cfg.QueueCapacity),
	}, nil
}

func (w *Writer) Reporter() common.Address {
	return w.reporter
}

// Schedule enqueues a request without blocking. Returns false when the queue
// is full.
func (w *Writer) Schedule(target common.Address, score int64, isSafe bool) bool {
	select {
	case w.queue <- Request{Target: target, Score: score, IsSafe: isSafe}:
		return true
	default:
		return false
	}
}

// Start drains the queue until ctx is cancelled.
func (w *Writer) Start(ctx context.Context) {
	w.logger.WithField("reporter", w.reporter.Hex()).Info("starting attestation writer")
	for {
		select {
		case req := <-w.queue:
			if err := w.submit(ctx, req); err != nil {
				w.logger.WithError(err).WithField("target", req.Target.Hex()).Error("can't submit attestation")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Writer) submit(ctx context.Context, req Request) error {
	data, err := abi.PackLogScan(req.Target, req.Score, req.IsSafe, w.reporter)
	if err != nil {
		return fmt.Errorf("can't pack calldata: %w", err)
	}
	nonce, err := w.client.NonceAt(ctx, w.reporter)
	if err != nil {
		return fmt.Errorf("can't fetch reporter nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("can't fetch gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, w.contract, big.NewInt(0), w.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.client.ChainID()), w.key)
	if err != nil {
		return fmt.Errorf("can't sign attestation tx: %w", err)
	}
	if err = w.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("can't send attestation tx: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"target":  req.Target.Hex(),
		"score":   req.Score,
	}).Info("attestation submitted")
	return nil
}
