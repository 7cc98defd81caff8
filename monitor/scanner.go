package monitor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vibeguard/sentinel/config"
	"github.com/vibeguard/sentinel/contract/abi"
	"github.com/vibeguard/sentinel/entity"
	"github.com/vibeguard/sentinel/ethclient"
	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/state"
	"github.com/vibeguard/sentinel/utils"
)

const (
	errorPause       = 10 * time.Second
	rateLimitedPause = 60 * time.Second
	pollJitter       = time.Second
)

// Scanner polls the chain head and feeds the two ingestion queues with
// native transactions and ERC-20 Transfer logs. It owns the cursor: the
// cursor only advances after a batch has been fully enqueued, and large gaps
// are skipped with a small lookback instead of replayed.
type Scanner struct {
	cfg    *config.ChainConfig
	logger logging.Logger
	client ethclient.Client
	state  *state.State

	txChan    chan *entity.RawTx
	logChan   chan *entity.RawTransferLog
	sinceSave uint64
}

func NewScanner(logger logging.Logger, client ethclient.Client, st *state.State, cfg *config.ChainConfig, queues *config.QueuesConfig) *Scanner {
	return &Scanner{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		state:   st,
		txChan:  make(chan *entity.RawTx, queues.TxCapacity),
		logChan: make(chan *entity.RawTransferLog, queues.LogCapacity),
	}
}

func (s *Scanner) TxQueue() <-chan *entity.RawTx {
	return s.txChan
}

func (s *Scanner) LogQueue() <-chan *entity.RawTransferLog {
	return s.logChan
}

// CloseQueues signals the worker pools that no more items will arrive.
// Must only be called after Start has returned.
func (s *Scanner) CloseQueues() {
	close(s.txChan)
	close(s.logChan)
}

// Start runs the polling loop until ctx is cancelled. RPC failures pause the
// loop and are retried forever; the scanner never terminates on error.
func (s *Scanner) Start(ctx context.Context) {
	s.logger.Info("starting chain scanner")
	for ctx.Err() == nil {
		if err := s.cycle(ctx); err != nil {
			pause := errorPause
			if ethclient.IsRateLimited(err) {
				pause = rateLimitedPause
			}
			s.logger.WithError(err).WithField("pause", pause).Error("scan cycle failed, pausing")
			if utils.ContextSleep(ctx, pause) == nil {
				return
			}
			continue
		}
		if utils.ContextSleepWithJitter(ctx, time.Duration(s.cfg.PollInterval), pollJitter) == nil {
			return
		}
	}
}

func (s *Scanner) cycle(ctx context.Context) error {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	LatestHeadBlock.Set(float64(head))

	cursor := s.state.Cursor()
	if cursor == 0 || (head > cursor && head-cursor > s.cfg.LargeGapBlocks) {
		cursor = 0
		if head > s.cfg.SmallLookbackBlocks {
			cursor = head - s.cfg.SmallLookbackBlocks
		}
		s.state.SetCursor(cursor)
		s.logger.WithFields(logrus.Fields{
			"head":   head,
			"cursor": cursor,
		}).Info("cursor is stale or unset, snapping to near head")
	}
	if head <= cursor {
		return nil
	}

	toProcess := head - cursor
	if toProcess > s.cfg.MaxCatchupBlocks {
		toProcess = s.cfg.MaxCatchupBlocks
	}
	end := cursor + toProcess

	for start := cursor + 1; start <= end; start += s.cfg.BlockBatchSize {
		if ctx.Err() != nil {
			return nil
		}
		batchEnd := start + s.cfg.BlockBatchSize - 1
		if batchEnd > end {
			batchEnd = end
		}
		if err = s.processRange(ctx, start, batchEnd); err != nil {
			return err
		}
		s.state.AdvanceCursor(batchEnd, batchEnd-start+1)
		LatestProcessedBlock.Set(float64(batchEnd))

		s.sinceSave += batchEnd - start + 1
		if s.sinceSave >= s.cfg.SaveEveryBlocks {
			if err = s.state.Save(ctx); err != nil {
				s.logger.WithError(err).Error("periodic cursor save failed")
			}
			s.sinceSave = 0
		}
	}
	return nil
}

// processRange fetches the blocks and the Transfer logs of a small range in
// parallel, then enqueues the results.
func (s *Scanner) processRange(ctx context.Context, fromBlock, toBlock uint64) error {
	blocks := make([]*ethclient.Block, toBlock-fromBlock+1)
	var logs []*entity.RawTransferLog

	g, gctx := errgroup.WithContext(ctx)
	for n := fromBlock; n <= toBlock; n++ {
		n := n
		g.Go(func() error {
			block, err := s.client.BlockByNumber(gctx, n)
			if err != nil {
				return err
			}
			blocks[n-fromBlock] = block
			return nil
		})
	}
	g.Go(func() error {
		var err error
		logs, err = s.fetchTransferLogs(gctx, fromBlock, toBlock)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, block := range blocks {
		for i := range block.Transactions {
			s.enqueueTx(uint64(block.Number), &block.Transactions[i])
		}
	}
	for _, log := range logs {
		s.enqueueLog(log)
	}
	return nil
}

func (s *Scanner) fetchTransferLogs(ctx context.Context, fromBlock, toBlock uint64) ([]*entity.RawTransferLog, error) {
	rawLogs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    [][]common.Hash{{abi.ERC20TransferTopic}},
	})
	if err != nil {
		return nil, err
	}
	logs := make([]*entity.RawTransferLog, 0, len(rawLogs))
	for _, l := range rawLogs {
		if len(l.Topics) < 3 {
			continue
		}
		logs = append(logs, &entity.RawTransferLog{
			Token:       l.Address,
			From:        common.BytesToAddress(l.Topics[1].Bytes()),
			To:          common.BytesToAddress(l.Topics[2].Bytes()),
			Amount:      new(big.Int).SetBytes(l.Data),
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
		})
	}
	return logs, nil
}

// enqueueTx drops the item when the queue is full: scanner liveness wins
// over ingestion completeness.
func (s *Scanner) enqueueTx(blockNumber uint64, tx *ethclient.Transaction) {
	value := new(big.Int)
	if tx.Value != nil {
		value = tx.Value.ToInt()
	}
	item := &entity.RawTx{
		Hash:        tx.Hash,
		From:        tx.From,
		To:          tx.To,
		Value:       value,
		BlockNumber: blockNumber,
	}
	select {
	case s.txChan <- item:
		EnqueuedItems.WithLabelValues("tx").Inc()
	default:
		DroppedItems.WithLabelValues("tx").Inc()
		s.logger.WithField("tx_hash", tx.Hash.Hex()).Warn("tx queue is full, dropping item")
	}
}

func (s *Scanner) enqueueLog(log *entity.RawTransferLog) {
	select {
	case s.logChan <- log:
		EnqueuedItems.WithLabelValues("log").Inc()
	default:
		DroppedItems.WithLabelValues("log").Inc()
		s.logger.WithField("tx_hash", log.TxHash.Hex()).Warn("log queue is full, dropping item")
	}
}

// QueueSizes reports the current queue depths, used by the status endpoint.
func (s *Scanner) QueueSizes() (txs, logs int) {
	return len(s.txChan), len(s.logChan)
}
