package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vibeguard/sentinel/entity"
	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/repository"
	"github.com/vibeguard/sentinel/utils"
)

var (
	ErrAlreadyBound       = errors.New("wallet is already bound to this user")
	ErrWalletLimitReached = errors.New("wallet limit reached for this user")
)

const saveAttempts = 3

// State owns the mutable application document: cursor, alert config, stats,
// bound wallets and pending verifications. A single mutex guards every read
// and write; the lock is never held across network I/O.
type State struct {
	logger            logging.Logger
	repo              repository.StateRepo
	minLimitUSD       float64
	maxWalletsPerUser int

	mu  sync.Mutex
	doc *entity.Document
}

// ConfigSnapshot is a point-in-time copy of the operator config, safe to use
// without holding the state lock.
type ConfigSnapshot struct {
	LimitUSD float64
	Watch    map[string]bool
	Ignore   map[string]bool
}

func New(logger logging.Logger, repo repository.StateRepo, minLimitUSD float64, maxWalletsPerUser int) *State {
	return &State{
		logger:            logger,
		repo:              repo,
		minLimitUSD:       minLimitUSD,
		maxWalletsPerUser: maxWalletsPerUser,
		doc:               entity.NewDocument(minLimitUSD * 100),
	}
}

// Load reads the persisted document, merging it over defaults so that a
// document written by an older revision still loads.
func (s *State) Load(ctx context.Context) error {
	blob, found, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("can't load state: %w", err)
	}
	if !found {
		s.logger.Info("no persisted state found, starting with a fresh document")
		return s.Save(ctx)
	}
	doc := entity.NewDocument(s.minLimitUSD * 100)
	if err = json.Unmarshal(blob, doc); err != nil {
		return fmt.Errorf("can't decode state document: %w", err)
	}
	if doc.Cfg.LimitUSD < s.minLimitUSD {
		doc.Cfg.LimitUSD = s.minLimitUSD
	}
	if doc.ConnectedWallets == nil {
		doc.ConnectedWallets = map[string][]entity.ConnectedWallet{}
	}
	if doc.PendingVerifications == nil {
		doc.PendingVerifications = map[string]entity.PendingVerification{}
	}
	if doc.Subscribers == nil {
		doc.Subscribers = map[string]entity.SubscriberConfig{}
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	s.logger.WithField("last_block", doc.LastBlock).Info("state document loaded")
	return nil
}

// Save persists the document with a bounded number of retries. A failed save
// is logged and reported but never fatal for the process.
func (s *State) Save(ctx context.Context) error {
	s.mu.Lock()
	blob, err := json.Marshal(s.doc)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("can't encode state document: %w", err)
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		err = s.repo.Save(ctx, blob)
		if err == nil {
			return nil
		}
		s.logger.WithError(err).WithField("attempt", attempt+1).Warn("state save failed")
		if attempt < saveAttempts-1 {
			if utils.ContextSleep(ctx, time.Second<<attempt) == nil {
				break
			}
		}
	}
	return fmt.Errorf("state save failed after %d attempts: %w", saveAttempts, err)
}

func (s *State) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.LastBlock
}

func (s *State) SetCursor(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.LastBlock = block
}

// AdvanceCursor moves the cursor forward and accounts the processed blocks.
// Backward moves are ignored, the cursor is monotonic.
func (s *State) AdvanceCursor(block, processed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block < s.doc.LastBlock {
		return
	}
	s.doc.LastBlock = block
	s.doc.Stats.Blocks += processed
}

func (s *State) ConfigSnapshot() ConfigSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := ConfigSnapshot{
		LimitUSD: s.doc.Cfg.LimitUSD,
		Watch:    make(map[string]bool, len(s.doc.Cfg.Watch)),
		Ignore:   make(map[string]bool, len(s.doc.Cfg.Ignore)),
	}
	for _, a := range s.doc.Cfg.Watch {
		snap.Watch[strings.ToLower(a)] = true
	}
	for _, a := range s.doc.Cfg.Ignore {
		snap.Ignore[strings.ToLower(a)] = true
	}
	return snap
}

func (s *State) SetLimitUSD(v float64) error {
	if v < s.minLimitUSD {
		return fmt.Errorf("limit %.2f is below the minimum %.2f", v, s.minLimitUSD)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Cfg.LimitUSD = v
	return nil
}

func (s *State) AddWatch(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Cfg.Watch, _ = addToList(s.doc.Cfg.Watch, addr)
	return true
}

func (s *State) RemoveWatch(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed bool
	s.doc.Cfg.Watch, removed = removeFromList(s.doc.Cfg.Watch, addr)
	return removed
}

func (s *State) AddIgnore(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Cfg.Ignore, _ = addToList(s.doc.Cfg.Ignore, addr)
	return true
}

func (s *State) RemoveIgnore(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed bool
	s.doc.Cfg.Ignore, removed = removeFromList(s.doc.Cfg.Ignore, addr)
	return removed
}

func addToList(list []string, addr common.Address) ([]string, bool) {
	key := strings.ToLower(addr.Hex())
	for _, a := range list {
		if strings.EqualFold(a, key) {
			return list, false
		}
	}
	return append(list, key), true
}

func removeFromList(list []string, addr common.Address) ([]string, bool) {
	key := strings.ToLower(addr.Hex())
	for i, a := range list {
		if strings.EqualFold(a, key) {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// WalletOwners returns the user ids of everyone who bound the given address.
func (s *State) WalletOwners(addr common.Address) []int64 {
	key := strings.ToLower(addr.Hex())
	s.mu.Lock()
	defer s.mu.Unlock()
	var owners []int64
	for uid, wallets := range s.doc.ConnectedWallets {
		for _, w := range wallets {
			if strings.ToLower(w.Address) == key {
				if id, err := strconv.ParseInt(uid, 10, 64); err == nil {
					owners = append(owners, id)
				}
				break
			}
		}
	}
	return owners
}

func (s *State) WalletsOf(userID int64) []entity.ConnectedWallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets := s.doc.ConnectedWallets[strconv.FormatInt(userID, 10)]
	out := make([]entity.ConnectedWallet, len(wallets))
	copy(out, wallets)
	return out
}

// BindWallet attaches an address to a user, enforcing the per-user cap and
// rejecting duplicates. Returns the generated wallet label.
func (s *State) BindWallet(userID int64, addr common.Address) (string, error) {
	uid := strconv.FormatInt(userID, 10)
	key := strings.ToLower(addr.Hex())
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets := s.doc.ConnectedWallets[uid]
	for _, w := range wallets {
		if strings.ToLower(w.Address) == key {
			return "", ErrAlreadyBound
		}
	}
	if len(wallets) >= s.maxWalletsPerUser {
		return "", ErrWalletLimitReached
	}
	label := fmt.Sprintf("Wallet %d", len(wallets)+1)
	s.doc.ConnectedWallets[uid] = append(wallets, entity.ConnectedWallet{
		Address: key,
		Label:   label,
	})
	return label, nil
}

// UnbindWallet removes a bound address. Returns false when it was not bound.
func (s *State) UnbindWallet(userID int64, addr common.Address) bool {
	uid := strconv.FormatInt(userID, 10)
	key := strings.ToLower(addr.Hex())
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets := s.doc.ConnectedWallets[uid]
	for i, w := range wallets {
		if strings.ToLower(w.Address) == key {
			wallets = append(wallets[:i], wallets[i+1:]...)
			if len(wallets) == 0 {
				delete(s.doc.ConnectedWallets, uid)
			} else {
				s.doc.ConnectedWallets[uid] = wallets
			}
			return true
		}
	}
	return false
}

// PutVerification stores the single pending nonce of a user, replacing any
// previous one.
func (s *State) PutVerification(userID int64, nonce string, issuedAt time.Time) {
	uid := strconv.FormatInt(userID, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.PendingVerifications[uid] = entity.PendingVerification{
		Nonce:    nonce,
		IssuedAt: float64(issuedAt.UnixNano()) / float64(time.Second),
	}
}

func (s *State) GetVerification(userID int64) (entity.PendingVerification, bool) {
	uid := strconv.FormatInt(userID, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.PendingVerifications[uid]
	return v, ok
}

func (s *State) ClearVerification(userID int64) {
	uid := strconv.FormatInt(userID, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.PendingVerifications, uid)
}

func (s *State) Subscribers() map[int64]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]float64, len(s.doc.Subscribers))
	for uid, sub := range s.doc.Subscribers {
		if id, err := strconv.ParseInt(uid, 10, 64); err == nil {
			out[id] = sub.LimitUSD
		}
	}
	return out
}

func (s *State) SetSubscriberLimit(userID int64, limitUSD float64) {
	uid := strconv.FormatInt(userID, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Subscribers[uid] = entity.SubscriberConfig{LimitUSD: limitUSD}
}

func (s *State) IncWhales() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Stats.Whales++
}

func (s *State) IncThreats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Stats.Threats++
}

func (s *State) StatsSnapshot() (entity.Stats, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Stats, s.doc.LastBlock
}
