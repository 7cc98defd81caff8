package alerting

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"

	"github.com/vibeguard/sentinel/entity"
	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/state"
)

const (
	scoreSafe   = 85
	scoreUnsafe = 25
)

// Notifier delivers a single rendered alert to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// AttestationScheduler accepts attestation requests without blocking.
type AttestationScheduler interface {
	Schedule(target common.Address, score int64, isSafe bool) bool
}

// Dispatcher fans alerts out to their recipients. Each delivery runs in its
// own goroutine bounded by a semaphore; a failed delivery is logged and
// forgotten, it never affects other recipients or the classification path.
type Dispatcher struct {
	logger    logging.Logger
	notifier  Notifier
	state     *state.State
	owners    []int64
	sem       *semaphore.Weighted
	scheduler AttestationScheduler
}

func NewDispatcher(
	logger logging.Logger,
	notifier Notifier,
	st *state.State,
	owners []int64,
	deliveryConcurrency int64,
	scheduler AttestationScheduler,
) *Dispatcher {
	return &Dispatcher{
		logger:    logger,
		notifier:  notifier,
		state:     st,
		owners:    owners,
		sem:       semaphore.NewWeighted(deliveryConcurrency),
		scheduler: scheduler,
	}
}

// DispatchPersonal notifies the owners of a bound wallet about a transfer
// touching it. Personal alerts bypass the whale threshold and carry no risk
// verdict.
func (d *Dispatcher) DispatchPersonal(ctx context.Context, res *entity.ClassificationResult) {
	text := PersonalMessage(res)
	d.deliver(ctx, res.WalletOwners, text)
}

// DispatchWhale notifies the operators and every subscriber whose personal
// threshold the transfer crossed, then schedules an on-chain attestation of
// the verdict.
func (d *Dispatcher) DispatchWhale(ctx context.Context, res *entity.ClassificationResult) {
	globalLimit := d.state.ConfigSnapshot().LimitUSD

	recipients := make([]int64, 0, len(d.owners))
	seen := make(map[int64]bool, len(d.owners))
	for _, id := range d.owners {
		recipients = append(recipients, id)
		seen[id] = true
	}
	for id, limit := range d.state.Subscribers() {
		if seen[id] {
			continue
		}
		if limit <= 0 {
			limit = globalLimit
		}
		if res.AmountUSD >= limit {
			recipients = append(recipients, id)
		}
	}

	d.deliver(ctx, recipients, WhaleMessage(res))
	d.scheduleAttestation(res)
}

func (d *Dispatcher) deliver(ctx context.Context, recipients []int64, text string) {
	for _, chatID := range recipients {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(chatID int64) {
			defer d.sem.Release(1)
			if err := d.notifier.Notify(ctx, chatID, text); err != nil {
				d.logger.WithError(err).WithField("chat_id", chatID).Warn("can't deliver alert")
			}
		}(chatID)
	}
}

func (d *Dispatcher) scheduleAttestation(res *entity.ClassificationResult) {
	if d.scheduler == nil {
		return
	}
	target := res.To
	if res.Token != nil {
		target = *res.Token
	}
	score, isSafe := int64(scoreSafe), true
	if len(res.RiskTags) > 0 {
		score, isSafe = scoreUnsafe, false
	}
	if !d.scheduler.Schedule(target, score, isSafe) {
		d.logger.WithField("target", target.Hex()).Warn("attestation queue is full, verdict not recorded")
	}
}
