package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/domain"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
	"github.com/linlinbupt123-crypto/energy_share_service/repository"
	"github.com/linlinbupt123-crypto/energy_share_service/utils"
)

type WalletService struct {
	Vault      *domain.Vault
	WalletRepo repository.WalletRepository

	now func() time.Time
	log logrus.FieldLogger
}

func NewWalletService(vault *domain.Vault, walletRepo repository.WalletRepository, log logrus.FieldLogger) *WalletService {
	if log == nil {
		log = logging.Discard()
	}
	return &WalletService{
		Vault:      vault,
		WalletRepo: walletRepo,
		now:        time.Now,
		log:        log.WithField("component", "wallet"),
	}
}

func validateUser(op, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return wrapErrors.New(wrapErrors.CodeValidation, op, "user id is required")
	}
	return nil
}

// CreateWallet 生成新钱包并加密保存，只返回地址
func (s *WalletService) CreateWallet(ctx context.Context, userID, password string) (string, error) {
	const op = "WalletService.CreateWallet"
	if err := validateUser(op, userID); err != nil {
		return "", err
	}
	if password == "" {
		return "", wrapErrors.New(wrapErrors.CodeValidation, op, "password is required")
	}

	existing, err := s.WalletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", wrapErrors.Newf(wrapErrors.CodeWalletExists, op, "user %s already has a wallet", userID)
	}

	address, env, err := s.Vault.CreateEnvelope(ctx, []byte(password))
	if err != nil {
		return "", err
	}

	// 存入数据库
	w := &entity.Wallet{
		UserID:         userID,
		Address:        address,
		DerivationPath: utils.WALLET_DERIVATION_PATH,
		Envelope:       *env,
		CreatedAt:      s.now(),
	}
	if err := s.WalletRepo.Create(ctx, w); err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "address": address}).Info("wallet created")
	return address, nil
}

// VerifyWalletPassword reports false both for a wrong password and for a
// user without a wallet.
func (s *WalletService) VerifyWalletPassword(ctx context.Context, userID, password string) (bool, error) {
	const op = "WalletService.VerifyWalletPassword"
	if err := validateUser(op, userID); err != nil {
		return false, err
	}
	w, err := s.WalletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	if w == nil {
		return false, nil
	}
	return s.Vault.VerifyPassword(ctx, &w.Envelope, []byte(password))
}

// GetWallet returns the user's wallet or nil when none exists.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*entity.Wallet, error) {
	if err := validateUser("WalletService.GetWallet", userID); err != nil {
		return nil, err
	}
	return s.WalletRepo.GetByUserID(ctx, userID)
}
