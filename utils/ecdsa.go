package utils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RestoreSignerAddress recovers the address that produced an EIP-191 personal
// message signature over data. Wallets commonly return V as 27/28, normalize
// it to 0/1 before recovery.
func RestoreSignerAddress(data, sig []byte) (common.Address, error) {
	if len(sig) >= 65 && sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}
	pk, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("can't recover ecdsa signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pk), nil
}
