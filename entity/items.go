package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RawTx is an immutable snapshot of a native-coin transaction taken off a
// fetched block. Ownership transfers to the worker that dequeues it.
type RawTx struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	Value       *big.Int
	BlockNumber uint64
}

// RawTransferLog is an immutable snapshot of an ERC-20 Transfer event.
type RawTransferLog struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// ClassificationResult is handed from a worker to the alert dispatcher.
// It is derived state and never persisted.
type ClassificationResult struct {
	TxHash       common.Hash
	BlockNumber  uint64
	From         common.Address
	To           common.Address
	Asset        string
	Token        *common.Address
	Amount       float64
	AmountUSD    float64
	RiskTags     []string
	IsWatchlist  bool
	IsWhale      bool
	WalletOwners []int64
}
