package service

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/chain"
	"github.com/linlinbupt123-crypto/energy_share_service/domain"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
	"github.com/linlinbupt123-crypto/energy_share_service/repository"
	"github.com/linlinbupt123-crypto/energy_share_service/utils"
)

const (
	DefaultPlatformFeeBps = 250
	DefaultGasLimit       = 300_000

	maxListLimit = 100
)

// DefaultFeeReserve is 0.001 unit, held back for ledger fees.
var DefaultFeeReserve = big.NewInt(1_000_000_000_000_000)

// unauthorized is the single error a caller sees for a missing wallet, a
// wrong password or an unreadable envelope.
var unauthorized = wrapErrors.New(wrapErrors.CodeUnauthorized, "PurchaseService.SubmitPurchase", "invalid wallet credentials")

type PurchaseOptions struct {
	PlatformFeeBps int64
	FeeReserve     *big.Int
	GasLimit       uint64

	Now     func() time.Time
	NewID   func() string
	Logger  logrus.FieldLogger
	Metrics *Metrics
}

// Estimate is the cost breakdown of a purchase. Amounts are in minor units.
type Estimate struct {
	ProjectID       int64
	ProjectName     string
	Shares          int64
	AvailableShares int64
	WalletAddress   string

	PricePerShare   *big.Int
	TotalCost       *big.Int
	PlatformFee     *big.Int
	FeeReserve      *big.Int
	RequiredBalance *big.Int
	UserBalance     *big.Int

	SufficientBalance bool
}

type SubmitRequest struct {
	UserID    string
	ProjectID int64
	Shares    int64
	Password  string
	IPAddress string
	UserAgent string
}

type SubmitResult struct {
	IntentID       string              `json:"intent_id"`
	SubmissionHash string              `json:"submission_hash"`
	Status         entity.IntentStatus `json:"status"`
}

// PurchaseService runs the purchase saga: estimate, authorize, record the
// intent, submit, and hand the intent to the confirmation watcher.
type PurchaseService struct {
	Gateway   chain.Gateway
	Vault     *domain.Vault
	Wallets   repository.WalletRepository
	Intents   repository.IntentRepository
	Projects  *ProjectCache
	Positions *PositionCache
	Watcher   *ConfirmationWatcher

	opts PurchaseOptions
	log  logrus.FieldLogger
}

func NewPurchaseService(
	gateway chain.Gateway,
	vault *domain.Vault,
	wallets repository.WalletRepository,
	intents repository.IntentRepository,
	projects *ProjectCache,
	positions *PositionCache,
	watcher *ConfirmationWatcher,
	opts PurchaseOptions,
) *PurchaseService {
	if opts.FeeReserve == nil {
		opts.FeeReserve = new(big.Int).Set(DefaultFeeReserve)
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = DefaultGasLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &PurchaseService{
		Gateway:   gateway,
		Vault:     vault,
		Wallets:   wallets,
		Intents:   intents,
		Projects:  projects,
		Positions: positions,
		Watcher:   watcher,
		opts:      opts,
		log:       opts.Logger.WithField("component", "purchase"),
	}
}

func validatePurchase(op, userID string, projectID, shares int64) error {
	if err := validateUser(op, userID); err != nil {
		return err
	}
	if projectID <= 0 {
		return wrapErrors.Newf(wrapErrors.CodeValidation, op, "invalid project id %d", projectID)
	}
	if shares <= 0 {
		return wrapErrors.New(wrapErrors.CodeValidation, op, "shares must be greater than 0")
	}
	return nil
}

// EstimatePurchase prices a purchase for the user's wallet. It fails with
// INSUFFICIENT_SHARES when the project cannot supply the shares; a short
// balance is reported through SufficientBalance.
func (s *PurchaseService) EstimatePurchase(ctx context.Context, userID string, projectID, shares int64) (*Estimate, error) {
	const op = "PurchaseService.EstimatePurchase"
	if err := validatePurchase(op, userID, projectID, shares); err != nil {
		return nil, err
	}
	w, err := s.Wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, wrapErrors.New(wrapErrors.CodeNotFound, op, "wallet not found")
	}
	return s.estimate(ctx, w.Address, projectID, shares)
}

func (s *PurchaseService) estimate(ctx context.Context, address string, projectID, shares int64) (*Estimate, error) {
	const op = "PurchaseService.estimate"

	p, err := s.Projects.Get(ctx, projectID, false)
	if err != nil {
		return nil, err
	}
	if p.Status != entity.ProjectActive {
		return nil, wrapErrors.Newf(wrapErrors.CodeValidation, op, "project %d is not active", projectID)
	}
	available := p.AvailableShares()
	if shares > available {
		return nil, wrapErrors.Newf(wrapErrors.CodeInsufficientShares, op, "requested %d shares, %d available", shares, available)
	}

	balance, err := s.Gateway.ReadBalance(ctx, address)
	if err != nil {
		return nil, err
	}

	price := p.PricePerShare.Big()
	total := new(big.Int).Mul(price, big.NewInt(shares))
	required := new(big.Int).Add(total, s.opts.FeeReserve)

	return &Estimate{
		ProjectID:         projectID,
		ProjectName:       p.Name,
		Shares:            shares,
		AvailableShares:   available,
		WalletAddress:     address,
		PricePerShare:     price,
		TotalCost:         total,
		PlatformFee:       utils.BasisPoints(total, s.opts.PlatformFeeBps),
		FeeReserve:        new(big.Int).Set(s.opts.FeeReserve),
		RequiredBalance:   required,
		UserBalance:       balance,
		SufficientBalance: balance.Cmp(required) >= 0,
	}, nil
}

// SubmitPurchase records a PENDING intent, signs the purchase, attaches
// the transaction hash to the intent before broadcast, and returns once
// the ledger has accepted it. Settlement is asynchronous;
// callers poll GetIntent.
func (s *PurchaseService) SubmitPurchase(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	const op = "PurchaseService.SubmitPurchase"
	if err := validatePurchase(op, req.UserID, req.ProjectID, req.Shares); err != nil {
		s.opts.Metrics.purchase("rejected")
		return nil, err
	}
	if req.Password == "" {
		s.opts.Metrics.purchase("rejected")
		return nil, wrapErrors.New(wrapErrors.CodeValidation, op, "password is required")
	}
	log := s.log.WithFields(logrus.Fields{"user_id": req.UserID, "project_id": req.ProjectID, "shares": req.Shares})

	w, err := s.Wallets.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		log.Warn("purchase without wallet")
		s.opts.Metrics.purchase("unauthorized")
		return nil, unauthorized
	}

	// 1. estimate
	est, err := s.estimate(ctx, w.Address, req.ProjectID, req.Shares)
	if err != nil {
		s.opts.Metrics.purchase("rejected")
		return nil, err
	}
	if !est.SufficientBalance {
		s.opts.Metrics.purchase("rejected")
		return nil, wrapErrors.Newf(wrapErrors.CodeInsufficientBalance, op, "need %s, have %s",
			utils.WeiToETH(est.RequiredBalance), utils.WeiToETH(est.UserBalance))
	}

	// 2. authorize
	ok, err := s.Vault.VerifyPassword(ctx, &w.Envelope, []byte(req.Password))
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("wrong wallet password")
		s.opts.Metrics.purchase("unauthorized")
		return nil, unauthorized
	}

	// 3. record intent before touching the ledger
	now := s.opts.Now()
	intent := &entity.PurchaseIntent{
		ID:            s.opts.NewID(),
		UserID:        req.UserID,
		WalletAddress: w.Address,
		Type:          entity.IntentPurchase,
		Status:        entity.StatusPending,
		ProjectID:     req.ProjectID,
		ProjectName:   est.ProjectName,
		Shares:        req.Shares,
		PricePerShare: entity.NewAmount(est.PricePerShare),
		Amount:        entity.NewAmount(est.TotalCost),
		PlatformFee:   entity.NewAmount(est.PlatformFee),
		FeeReserve:    entity.NewAmount(est.FeeReserve),
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Metadata: map[string]string{
			"user_balance":     est.UserBalance.String(),
			"required_balance": est.RequiredBalance.String(),
			"available_shares": big.NewInt(est.AvailableShares).String(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Intents.Create(ctx, intent); err != nil {
		return nil, err
	}
	s.opts.Metrics.transition(string(entity.StatusPending))
	log = log.WithField("intent_id", intent.ID)

	// 4. sign, attach the hash, broadcast
	signed, err := s.sign(ctx, w, req.Password, est)
	if err == nil {
		err = s.Intents.RecordSubmission(ctx, intent.ID, signed.Hash().Hex(), s.opts.Now())
	}
	if err == nil {
		_, err = s.Gateway.Submit(ctx, signed)
	}
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeLedgerSubmission, op, s.fail(ctx, log, intent, err))
	}
	hash := signed.Hash().Hex()
	log = log.WithField("tx", hash)

	// from here on the payment may move; the intent must not be lost
	submitted, recorded := s.markConfirming(ctx, log, intent, hash)
	s.opts.Metrics.purchase("submitted")
	log.Info("purchase submitted")

	// 5. confirm asynchronously
	if s.Watcher != nil {
		if recorded {
			s.Watcher.Watch(submitted)
		} else {
			s.Watcher.watchUnrecorded(submitted)
		}
	}
	return &SubmitResult{IntentID: intent.ID, SubmissionHash: hash, Status: entity.StatusConfirming}, nil
}

// fail moves the intent to FAILED with the submission error and returns err.
func (s *PurchaseService) fail(ctx context.Context, log logrus.FieldLogger, intent *entity.PurchaseIntent, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// record the abort with a live context
		ctx = context.WithoutCancel(ctx)
	}
	log.WithError(err).Warn("purchase submission failed")
	if _, terr := s.Intents.Transition(ctx, intent.ID, entity.IntentUpdate{
		Status:       entity.StatusFailed,
		ErrorMessage: err.Error(),
		At:           s.opts.Now(),
	}); terr != nil {
		log.WithError(terr).Error("failed to record submission failure")
	} else {
		s.opts.Metrics.transition(string(entity.StatusFailed))
	}
	s.opts.Metrics.purchase("submission_failed")
	return err
}

// markConfirming moves the broadcast intent to CONFIRMING, retrying once
// with a fresh context. When both writes fail it returns an in-memory
// copy and false; the stored record stays PENDING with the hash attached.
func (s *PurchaseService) markConfirming(ctx context.Context, log logrus.FieldLogger, intent *entity.PurchaseIntent, hash string) (*entity.PurchaseIntent, bool) {
	u := entity.IntentUpdate{Status: entity.StatusConfirming, At: s.opts.Now()}

	submitted, err := s.Intents.Transition(context.WithoutCancel(ctx), intent.ID, u)
	if err != nil {
		log.WithError(err).Warn("failed to record submission, retrying")
		retryCtx, cancel := context.WithTimeout(context.Background(), settleRefreshTimeout)
		submitted, err = s.Intents.Transition(retryCtx, intent.ID, u)
		cancel()
	}
	if err != nil {
		log.WithError(err).Error("failed to record submission")
		c := *intent
		c.Status = entity.StatusConfirming
		c.SubmissionHash = hash
		at := u.At
		c.SubmittedAt = &at
		return &c, false
	}
	s.opts.Metrics.transition(string(entity.StatusConfirming))
	return submitted, true
}

func (s *PurchaseService) sign(ctx context.Context, w *entity.Wallet, password string, est *Estimate) (*types.Transaction, error) {
	tx, signer, err := s.Gateway.PreparePurchase(ctx, chain.PurchaseRequest{
		From:      w.Address,
		ProjectID: est.ProjectID,
		Shares:    est.Shares,
		Value:     est.TotalCost,
		GasLimit:  s.opts.GasLimit,
	})
	if err != nil {
		return nil, err
	}
	return s.Vault.SignTx(ctx, &w.Envelope, []byte(password), tx, signer)
}

// GetIntent returns the caller's own intent. Another user's intent is
// reported as not found.
func (s *PurchaseService) GetIntent(ctx context.Context, userID, intentID string) (*entity.PurchaseIntent, error) {
	const op = "PurchaseService.GetIntent"
	if err := validateUser(op, userID); err != nil {
		return nil, err
	}
	it, err := s.Intents.GetForUser(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, op, "intent %s not found", intentID)
	}
	return it, nil
}

// ListIntents pages through the user's intents, newest first.
func (s *PurchaseService) ListIntents(ctx context.Context, userID string, limit, skip int64) ([]*entity.PurchaseIntent, int64, error) {
	if err := validateUser("PurchaseService.ListIntents", userID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if skip < 0 {
		skip = 0
	}
	return s.Intents.ListByUser(ctx, userID, limit, skip)
}

func (s *PurchaseService) GetProject(ctx context.Context, projectID int64, refresh bool) (*entity.Project, error) {
	return s.Projects.Get(ctx, projectID, refresh)
}

func (s *PurchaseService) ListProjects(ctx context.Context, f entity.ProjectFilter) ([]*entity.Project, error) {
	return s.Projects.List(ctx, f)
}

func (s *PurchaseService) GetPosition(ctx context.Context, address string, projectID int64, refresh bool) (*entity.Position, error) {
	return s.Positions.Get(ctx, address, projectID, refresh)
}
