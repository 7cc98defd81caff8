package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/state"
	"github.com/vibeguard/sentinel/utils"
)

// MessagePrefix is the exact text a wallet must sign, followed by the nonce.
const MessagePrefix = "VibeGuard verification: "

const nonceBytes = 16

var (
	ErrNoSession         = errors.New("no pending verification for this user")
	ErrSessionExpired    = errors.New("verification session expired")
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrInvalidSignature  = errors.New("invalid signature encoding")
	ErrSignatureMismatch = errors.New("signature does not match the claimed address")
)

// Verifier runs the wallet-binding handshake: a short-lived random nonce is
// issued per user, the user signs it with the wallet key, and a matching
// recovered signer binds the wallet. Each nonce is single use.
type Verifier struct {
	logger logging.Logger
	state  *state.State
	ttl    time.Duration
}

func New(logger logging.Logger, st *state.State, ttl time.Duration) *Verifier {
	return &Verifier{
		logger: logger,
		state:  st,
		ttl:    ttl,
	}
}

// Begin issues a fresh nonce for the user, replacing any previous pending
// session. The returned message is what the wallet must sign.
func (v *Verifier) Begin(ctx context.Context, userID int64) (message string, err error) {
	buf := make([]byte, nonceBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", fmt.Errorf("can't generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	v.state.PutVerification(userID, nonce, time.Now())
	if err = v.state.Save(ctx); err != nil {
		v.logger.WithError(err).Warn("can't persist pending verification")
	}
	v.logger.WithField("user_id", userID).Info("verification session started")
	return MessagePrefix + nonce, nil
}

// Complete validates the signature against the pending nonce and binds the
// wallet. The pending session is cleared on success and on every definitive
// failure, only a malformed request leaves it in place for another try.
func (v *Verifier) Complete(ctx context.Context, userID int64, address, signature string) (label string, err error) {
	pending, ok := v.state.GetVerification(userID)
	if !ok {
		return "", ErrNoSession
	}
	issuedAt := time.Unix(0, int64(pending.IssuedAt*float64(time.Second)))
	if time.Since(issuedAt) > v.ttl {
		v.clearAndSave(ctx, userID)
		return "", ErrSessionExpired
	}

	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	claimed := common.HexToAddress(address)

	sig, err := decodeSignature(signature)
	if err != nil {
		return "", ErrInvalidSignature
	}

	signer, err := utils.RestoreSignerAddress([]byte(MessagePrefix+pending.Nonce), sig)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if signer != claimed {
		v.clearAndSave(ctx, userID)
		return "", ErrSignatureMismatch
	}

	label, err = v.state.BindWallet(userID, signer)
	if err != nil {
		v.clearAndSave(ctx, userID)
		return "", err
	}
	v.clearAndSave(ctx, userID)
	v.logger.WithField("user_id", userID).WithField("wallet", signer.Hex()).Info("wallet bound")
	return label, nil
}

func (v *Verifier) clearAndSave(ctx context.Context, userID int64) {
	v.state.ClearVerification(userID)
	if err := v.state.Save(ctx); err != nil {
		v.logger.WithError(err).Warn("can't persist verification state")
	}
}

func decodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	return sig, nil
}
