package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/chain"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
	"github.com/linlinbupt123-crypto/energy_share_service/repository"
)

const (
	DefaultConfirmationDepth   = 3
	DefaultConfirmationTimeout = 10 * time.Minute

	// post-settlement cache refreshes
	settleRefreshTimeout = 30 * time.Second

	abandonedMessage = "Submission abandoned before reaching the ledger"
)

type WatcherOptions struct {
	Depth uint64
	// Timeout is measured from the intent's submission time.
	Timeout time.Duration
	Now     func() time.Time
	Logger  logrus.FieldLogger
	Metrics *Metrics
}

// ConfirmationWatcher follows submitted purchases until the ledger settles
// them or their time budget runs out. One goroutine per intent; a second
// Watch for the same intent is ignored.
type ConfirmationWatcher struct {
	gateway   chain.Gateway
	intents   repository.IntentRepository
	projects  *ProjectCache
	positions *PositionCache
	opts      WatcherOptions
	log       logrus.FieldLogger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup

	root   context.Context
	cancel context.CancelFunc
}

func NewConfirmationWatcher(
	gateway chain.Gateway,
	intents repository.IntentRepository,
	projects *ProjectCache,
	positions *PositionCache,
	opts WatcherOptions,
) *ConfirmationWatcher {
	if opts.Depth == 0 {
		opts.Depth = DefaultConfirmationDepth
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConfirmationTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	root, cancel := context.WithCancel(context.Background())
	return &ConfirmationWatcher{
		gateway:   gateway,
		intents:   intents,
		projects:  projects,
		positions: positions,
		opts:      opts,
		log:       opts.Logger.WithField("component", "watcher"),
		active:    make(map[string]context.CancelFunc),
		root:      root,
		cancel:    cancel,
	}
}

// Watch starts following a CONFIRMING intent. It reports false when the
// intent is already watched, carries no submission hash, or the watcher
// has been stopped.
func (w *ConfirmationWatcher) Watch(intent *entity.PurchaseIntent) bool {
	if intent.Status != entity.StatusConfirming {
		return false
	}
	return w.watch(intent, true)
}

// watchUnrecorded follows a broadcast intent whose CONFIRMING transition
// is not in the store yet. The stored record is PENDING with the hash
// attached; the watcher writes CONFIRMING before it settles.
func (w *ConfirmationWatcher) watchUnrecorded(intent *entity.PurchaseIntent) bool {
	c := *intent
	c.Status = entity.StatusConfirming
	return w.watch(&c, false)
}

func (w *ConfirmationWatcher) watch(intent *entity.PurchaseIntent, recorded bool) bool {
	if intent.SubmissionHash == "" {
		return false
	}

	start := w.opts.Now()
	if intent.SubmittedAt != nil {
		start = *intent.SubmittedAt
	}
	deadline := start.Add(w.opts.Timeout)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.root.Err() != nil {
		return false
	}
	if _, ok := w.active[intent.ID]; ok {
		return false
	}
	// the deadline is wall-clock based so a restart does not extend the budget
	ctx, cancel := context.WithTimeout(w.root, deadline.Sub(w.opts.Now()))
	w.active[intent.ID] = cancel
	w.wg.Add(1)
	w.opts.Metrics.watcherDelta(1)

	go func() {
		defer w.wg.Done()
		defer w.opts.Metrics.watcherDelta(-1)
		defer func() {
			w.mu.Lock()
			delete(w.active, intent.ID)
			w.mu.Unlock()
			cancel()
		}()
		w.run(ctx, intent, recorded)
	}()
	return true
}

func (w *ConfirmationWatcher) run(ctx context.Context, intent *entity.PurchaseIntent, recorded bool) {
	log := w.log.WithFields(logrus.Fields{"intent_id": intent.ID, "tx": intent.SubmissionHash})
	if !recorded {
		recorded = w.record(log, intent)
	}

	conf, err := w.gateway.WaitForConfirmation(ctx, intent.SubmissionHash, w.opts.Depth)
	if err != nil && w.root.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		// budget spent, possibly before the first poll; ask the ledger once more
		conf, err = w.lastCheck(log, intent)
	}
	if err != nil {
		switch {
		case w.root.Err() != nil:
			// shutdown: leave it CONFIRMING for Recover
			log.Info("watcher stopped before settlement")
			return
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("confirmation budget exhausted")
			w.settle(log, intent, recorded, entity.IntentUpdate{
				Status:       entity.StatusFailed,
				ErrorMessage: fmt.Sprintf("Confirmation failed: no %d-block confirmation within %s", w.opts.Depth, w.opts.Timeout),
			})
		default:
			log.WithError(err).Warn("confirmation failed")
			w.settle(log, intent, recorded, entity.IntentUpdate{
				Status:       entity.StatusFailed,
				ErrorMessage: "Confirmation failed: " + wrapErrors.Message(err),
			})
		}
		return
	}

	fee := entity.NewAmount(conf.Fee)
	if !conf.Success {
		reason := conf.RevertReason
		if reason == "" {
			reason = chain.RevertedMessage
		}
		log.WithField("reason", reason).Warn("purchase reverted")
		w.settle(log, intent, recorded, entity.IntentUpdate{
			Status:        entity.StatusFailed,
			BlockNumber:   conf.BlockNumber,
			Confirmations: conf.Confirmations,
			SettlementFee: &fee,
			ErrorMessage:  reason,
		})
		return
	}

	blockTime := conf.BlockTime
	if !w.settle(log, intent, recorded, entity.IntentUpdate{
		Status:        entity.StatusConfirmed,
		BlockNumber:   conf.BlockNumber,
		Confirmations: conf.Confirmations,
		SettlementFee: &fee,
		LedgerTime:    &blockTime,
	}) {
		return
	}
	w.afterConfirm(log, intent, blockTime)
}

// lastCheck polls the ledger once with a live context. Anything short of
// a definitive answer reports the deadline.
func (w *ConfirmationWatcher) lastCheck(log logrus.FieldLogger, intent *entity.PurchaseIntent) (*chain.Confirmation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), settleRefreshTimeout)
	defer cancel()

	conf, err := w.gateway.CheckConfirmation(ctx, intent.SubmissionHash, w.opts.Depth)
	if err != nil {
		log.WithError(err).Warn("final confirmation check failed")
		return nil, context.DeadlineExceeded
	}
	if conf == nil {
		return nil, context.DeadlineExceeded
	}
	return conf, nil
}

// record moves a PENDING intent with an attached hash to CONFIRMING.
// It reports whether the stored record is past PENDING.
func (w *ConfirmationWatcher) record(log logrus.FieldLogger, intent *entity.PurchaseIntent) bool {
	ctx, cancel := context.WithTimeout(context.Background(), settleRefreshTimeout)
	defer cancel()

	_, err := w.intents.Transition(ctx, intent.ID, entity.IntentUpdate{
		Status: entity.StatusConfirming,
		At:     w.opts.Now(),
	})
	switch {
	case err == nil:
		w.opts.Metrics.transition(string(entity.StatusConfirming))
		log.Info("submission recorded")
		return true
	case errors.Is(err, wrapErrors.ErrIllegalTransition):
		return true
	default:
		log.WithError(err).Warn("failed to record submission")
		return false
	}
}

// settle applies the terminal transition. A concurrent settlement of the
// same intent is not an error.
func (w *ConfirmationWatcher) settle(log logrus.FieldLogger, intent *entity.PurchaseIntent, recorded bool, u entity.IntentUpdate) bool {
	if !recorded && !w.record(log, intent) && u.Status == entity.StatusConfirmed {
		// PENDING with its hash attached; the next Recover resumes it
		log.Error("failed to record settlement, intent left PENDING")
		return false
	}

	u.At = w.opts.Now()
	// store writes outlive a shutdown that races with settlement
	ctx, cancel := context.WithTimeout(context.Background(), settleRefreshTimeout)
	defer cancel()

	if _, err := w.intents.Transition(ctx, intent.ID, u); err != nil {
		if errors.Is(err, wrapErrors.ErrIllegalTransition) {
			log.Info("intent already settled")
			return false
		}
		log.WithError(err).Error("failed to record settlement")
		return false
	}
	w.opts.Metrics.transition(string(u.Status))
	log.WithField("status", u.Status).Info("intent settled")
	return true
}

func (w *ConfirmationWatcher) afterConfirm(log logrus.FieldLogger, intent *entity.PurchaseIntent, blockTime time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), settleRefreshTimeout)
	defer cancel()

	if w.projects != nil {
		if _, err := w.projects.Get(ctx, intent.ProjectID, true); err != nil {
			log.WithError(err).Warn("project refresh after purchase failed")
		}
	}
	if w.positions != nil {
		if _, err := w.positions.Get(ctx, intent.WalletAddress, intent.ProjectID, true); err != nil {
			log.WithError(err).Warn("position refresh after purchase failed")
		}
		if !blockTime.IsZero() {
			if err := w.positions.MarkPurchased(ctx, intent.WalletAddress, intent.ProjectID, blockTime); err != nil {
				log.WithError(err).Warn("failed to record purchase time")
			}
		}
	}
}

// Recover re-attaches a watcher to every intent left in flight by a
// previous process. It must run before purchases are accepted.
//
// CONFIRMING intents are watched again; intents whose budget already ran
// out get one final ledger check. A PENDING intent with a hash may have
// been broadcast and is watched the same way. A PENDING intent without a
// hash never reached the ledger and is failed.
func (w *ConfirmationWatcher) Recover(ctx context.Context) (int, error) {
	confirming, err := w.intents.ListByStatus(ctx, entity.StatusConfirming)
	if err != nil {
		return 0, err
	}
	pending, err := w.intents.ListByStatus(ctx, entity.StatusPending)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, it := range confirming {
		if w.Watch(it) {
			n++
		}
	}
	for _, it := range pending {
		log := w.log.WithField("intent_id", it.ID)
		if it.SubmissionHash != "" {
			if w.watchUnrecorded(it) {
				n++
			}
			continue
		}
		w.settle(log, it, true, entity.IntentUpdate{
			Status:       entity.StatusFailed,
			ErrorMessage: abandonedMessage,
		})
	}
	w.log.WithField("count", n).Info("confirmation watchers recovered")
	return n, nil
}

func (w *ConfirmationWatcher) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// Wait blocks until every running watcher has returned.
func (w *ConfirmationWatcher) Wait() {
	w.wg.Wait()
}

// Stop cancels all watchers, leaving their intents CONFIRMING, and waits
// for them to return.
func (w *ConfirmationWatcher) Stop() {
	w.mu.Lock()
	w.cancel()
	w.mu.Unlock()
	w.wg.Wait()
}
