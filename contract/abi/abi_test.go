package abi_test

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/vibeguard/sentinel/contract/abi"
)

func TestERC20TransferTopic(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
		abi.ERC20TransferTopic)
}

func TestDecimalsCallData(t *testing.T) {
	t.Parallel()

	require.Equal(t, "313ce567", hex.EncodeToString(abi.DecimalsCallData))
}

func TestUnpackDecimals(t *testing.T) {
	t.Parallel()

	data := common.BigToHash(big.NewInt(6)).Bytes()
	decimals, err := abi.UnpackDecimals(data)
	require.NoError(t, err)
	require.Equal(t, uint8(6), decimals)

	_, err = abi.UnpackDecimals([]byte{0x01})
	require.Error(t, err)
}

func TestPackLogScan(t *testing.T) {
	t.Parallel()

	target := common.HexToAddress("0x01")
	reporter := common.HexToAddress("0x02")

	data, err := abi.PackLogScan(target, 85, true, reporter)
	require.NoError(t, err)
	require.Len(t, data, 4+4*32)
	require.Equal(t, abi.ScanLog.Methods["logScan"].ID, data[:4])
	require.Equal(t, target.Hash().Bytes(), data[4:36])
	require.Equal(t, common.BigToHash(big.NewInt(85)).Bytes(), data[36:68])
	require.Equal(t, common.BigToHash(big.NewInt(1)).Bytes(), data[68:100])
	require.Equal(t, reporter.Hash().Bytes(), data[100:132])
}
