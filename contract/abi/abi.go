package abi

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC20TransferTopic is the topic0 of Transfer(address,address,uint256).
var ERC20TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const erc20JSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const scanLogJSON = `[
	{"inputs":[
		{"name":"_contract","type":"address"},
		{"name":"_score","type":"uint256"},
		{"name":"_isSafe","type":"bool"},
		{"name":"_user","type":"address"}
	],"name":"logScan","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	ERC20   = mustParse(erc20JSON)
	ScanLog = mustParse(scanLogJSON)
)

// DecimalsCallData is the fixed call data of decimals(), selector 0x313ce567.
var DecimalsCallData = ERC20.Methods["decimals"].ID

func mustParse(blob string) abi.ABI {
	res, err := abi.JSON(strings.NewReader(blob))
	if err != nil {
		panic(err)
	}
	return res
}

// UnpackDecimals decodes a decimals() return value.
func UnpackDecimals(data []byte) (uint8, error) {
	out, err := ERC20.Unpack("decimals", data)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// PackLogScan encodes the logScan attestation call.
func PackLogScan(target common.Address, score int64, isSafe bool, reporter common.Address) ([]byte, error) {
	return ScanLog.Pack("logScan", target, big.NewInt(score), isSafe, reporter)
}
