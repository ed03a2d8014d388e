package domain

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
	"github.com/linlinbupt123-crypto/energy_share_service/utils"
)

// NOTE:
// - The envelope stores salt, iv, auth tag and ciphertext separately along
//   with the KDF label and iteration count, so the work factor can be raised
//   for new wallets without breaking old ones.
// - PBKDF2-HMAC-SHA512 derives a 32-byte AES-256-GCM key; salt and nonce are
//   fresh per envelope.
// - A wrong password and a damaged envelope produce the same error.

const (
	KDFLabel = "pbkdf2-sha512"

	saltLen    = 32
	nonceLen   = 12
	tagLen     = 16
	keyLen     = 32
	entropyLen = 32 // 256 bits => 24 words
)

var errInvalidCredential = wrapErrors.New(wrapErrors.CodeInvalidCredential, "vault", "invalid password or corrupted envelope")

// ---------- Helpers ----------
func clearBytes(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}

// zeroKey overwrites the scalar of priv in place.
func zeroKey(priv *ecdsa.PrivateKey) {
	if priv == nil || priv.D == nil {
		return
	}
	words := priv.D.Bits()
	for i := range words {
		words[i] = 0
	}
	priv.D.SetInt64(0)
}

// Secret is plaintext key material. Destroy overwrites it; a destroyed
// Secret must not be used again.
type Secret struct {
	b []byte
}

func (s *Secret) Bytes() []byte { return s.b }

func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	clearBytes(s.b)
	s.b = nil
}

type VaultOptions struct {
	// Iterations is the PBKDF2 work factor for new envelopes.
	Iterations int
	// Workers bounds concurrent key derivations.
	Workers int
	Logger  logrus.FieldLogger
	// Rand defaults to crypto/rand.
	Rand io.Reader
	// ObserveKDF, when set, receives the duration of every key derivation.
	ObserveKDF func(time.Duration)
}

// Vault encrypts and uses wallet signing keys. It holds no key material.
type Vault struct {
	iterations int
	pool       *semaphore.Weighted
	log        logrus.FieldLogger
	rand       io.Reader
	observeKDF func(time.Duration)
}

func NewVault(opts VaultOptions) *Vault {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Vault{
		iterations: opts.Iterations,
		pool:       semaphore.NewWeighted(int64(opts.Workers)),
		log:        opts.Logger.WithField("component", "vault"),
		rand:       opts.Rand,
		observeKDF: opts.ObserveKDF,
	}
}

// deriveKey runs PBKDF2 on the bounded pool. The caller must clear the key.
func (v *Vault) deriveKey(ctx context.Context, password, salt []byte, iterations int) ([]byte, error) {
	if err := v.pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer v.pool.Release(1)

	start := time.Now()
	key := pbkdf2.Key(password, salt, iterations, keyLen, sha512.New)
	if v.observeKDF != nil {
		v.observeKDF(time.Since(start))
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

/*
CreateEnvelope generates a wallet key and seals it under password.

The key comes from fresh BIP-39 entropy derived along
utils.WALLET_DERIVATION_PATH; neither the mnemonic nor the seed is kept.
Only an entropy source failure yields a VAULT_ERROR.
*/
func (v *Vault) CreateEnvelope(ctx context.Context, password []byte) (string, *entity.CredentialEnvelope, error) {
	// 1) entropy -> mnemonic -> seed
	entropy := make([]byte, entropyLen)
	if _, err := io.ReadFull(v.rand, entropy); err != nil {
		return "", nil, wrapErrors.WrapWithCode(wrapErrors.CodeVault, "vault.entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	clearBytes(entropy)
	if err != nil {
		return "", nil, wrapErrors.WrapWithCode(wrapErrors.CodeVault, "vault.mnemonic", err)
	}
	seed := bip39.NewSeed(mnemonic, "")

	// 2) derive the signing key
	privBytes, address, err := deriveETHKey(seed, utils.WALLET_DERIVATION_PATH)
	clearBytes(seed)
	if err != nil {
		return "", nil, wrapErrors.WrapWithCode(wrapErrors.CodeVault, "vault.derive", err)
	}
	defer clearBytes(privBytes)

	// 3) salt + nonce
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(v.rand, salt); err != nil {
		return "", nil, wrapErrors.WrapWithCode(wrapErrors.CodeVault, "vault.salt", err)
	}
	iv := make([]byte, nonceLen)
	if _, err := io.ReadFull(v.rand, iv); err != nil {
		return "", nil, wrapErrors.WrapWithCode(wrapErrors.CodeVault, "vault.nonce", err)
	}

	// 4) derive AES key
	key, err := v.deriveKey(ctx, password, salt, v.iterations)
	if err != nil {
		return "", nil, err
	}
	defer clearBytes(key)

	// 5) seal
	gcm, err := newGCM(key)
	if err != nil {
		return "", nil, wrapErrors.WrapWithCode(wrapErrors.CodeVault, "vault.cipher", err)
	}
	sealed := gcm.Seal(nil, iv, privBytes, nil)
	split := len(sealed) - gcm.Overhead()

	env := &entity.CredentialEnvelope{
		KDF:        KDFLabel,
		Iterations: v.iterations,
		Salt:       salt,
		IV:         iv,
		Ciphertext: sealed[:split:split],
		AuthTag:    sealed[split:],
	}
	return address, env, nil
}

func checkEnvelope(env *entity.CredentialEnvelope) error {
	switch {
	case env == nil:
		return errors.New("envelope is nil")
	case env.KDF != KDFLabel:
		return fmt.Errorf("unsupported kdf %q", env.KDF)
	case env.Iterations <= 0:
		return errors.New("invalid kdf iterations")
	case len(env.Salt) == 0:
		return errors.New("missing salt")
	case len(env.IV) != nonceLen:
		return errors.New("invalid iv length")
	case len(env.AuthTag) != tagLen:
		return errors.New("invalid auth tag length")
	case len(env.Ciphertext) == 0:
		return errors.New("empty ciphertext")
	}
	return nil
}

// Decrypt opens env with password. The caller must Destroy the Secret.
// Any failure to authenticate is INVALID_CREDENTIAL; context errors are
// returned as is.
func (v *Vault) Decrypt(ctx context.Context, env *entity.CredentialEnvelope, password []byte) (*Secret, error) {
	if err := checkEnvelope(env); err != nil {
		v.log.WithError(err).Warn("malformed envelope")
		return nil, errInvalidCredential
	}

	key, err := v.deriveKey(ctx, password, env.Salt, env.Iterations)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		v.log.WithError(err).Error("cipher init failed")
		return nil, errInvalidCredential
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.AuthTag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plain, err := gcm.Open(nil, env.IV, sealed, nil)
	if err != nil {
		v.log.Debug("envelope authentication failed")
		return nil, errInvalidCredential
	}
	return &Secret{b: plain}, nil
}

// withKey decrypts env, hands the key to fn and wipes it afterwards,
// whatever fn returns.
func (v *Vault) withKey(ctx context.Context, env *entity.CredentialEnvelope, password []byte, fn func(*ecdsa.PrivateKey) error) error {
	secret, err := v.Decrypt(ctx, env, password)
	if err != nil {
		return err
	}
	defer secret.Destroy()

	priv, err := crypto.ToECDSA(secret.Bytes())
	if err != nil {
		v.log.WithError(err).Warn("envelope holds an invalid key")
		return errInvalidCredential
	}
	defer zeroKey(priv)

	return fn(priv)
}

// SignOnce signs keccak256(payload) and returns the 65-byte [R || S || V] signature.
func (v *Vault) SignOnce(ctx context.Context, env *entity.CredentialEnvelope, password, payload []byte) ([]byte, error) {
	var sig []byte
	err := v.withKey(ctx, env, password, func(priv *ecdsa.PrivateKey) error {
		var err error
		sig, err = crypto.Sign(crypto.Keccak256(payload), priv)
		return wrapErrors.WrapWithCode(wrapErrors.SignerErr, "Sign", err)
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// SignTx signs a ledger transaction under the same single-use discipline as SignOnce.
func (v *Vault) SignTx(ctx context.Context, env *entity.CredentialEnvelope, password []byte, tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	var signed *types.Transaction
	err := v.withKey(ctx, env, password, func(priv *ecdsa.PrivateKey) error {
		var err error
		signed, err = types.SignTx(tx, signer, priv)
		return wrapErrors.WrapWithCode(wrapErrors.SignerErr, "SignTx", err)
	})
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// VerifyPassword checks whether password opens env.
// Returns (true, nil) if correct; (false, nil) if not; (false, err) only
// when ctx ends first.
func (v *Vault) VerifyPassword(ctx context.Context, env *entity.CredentialEnvelope, password []byte) (bool, error) {
	secret, err := v.Decrypt(ctx, env, password)
	if err != nil {
		if errors.Is(err, wrapErrors.ErrInvalidCredential) {
			return false, nil
		}
		return false, err
	}
	secret.Destroy()
	return true, nil
}

// deriveETHKey walks path from seed and returns the raw private key and its
// address. The caller must clear the returned bytes.
func deriveETHKey(seed []byte, path string) ([]byte, string, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create master key: %w", err)
	}

	indices, err := parseDerivationPath(path)
	if err != nil {
		return nil, "", fmt.Errorf("invalid derivation path: %w", err)
	}

	key := master
	for _, idx := range indices {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get EC private key: %w", err)
	}
	privBytes := priv.Serialize()
	priv.Zero()

	ecdsaKey, err := crypto.ToECDSA(privBytes)
	if err != nil {
		clearBytes(privBytes)
		return nil, "", fmt.Errorf("failed to convert to ecdsa: %w", err)
	}
	addr := crypto.PubkeyToAddress(ecdsaKey.PublicKey)
	zeroKey(ecdsaKey)
	return privBytes, addr.Hex(), nil
}

// parseDerivationPath accepts "m/44'/60'/0'/0/0" or "44'/60'/0'/0/0"
func parseDerivationPath(path string) ([]uint32, error) {
	p := strings.TrimSpace(path)
	if strings.HasPrefix(p, "m/") || strings.HasPrefix(p, "M/") {
		p = p[2:]
	}
	if p == "" {
		return nil, errors.New("empty derivation path")
	}
	parts := strings.Split(p, "/")
	indices := make([]uint32, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, errors.New("invalid path segment")
		}
		hardened := strings.HasSuffix(part, "'")
		if hardened {
			part = strings.TrimSuffix(part, "'")
		}
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, errors.New("invalid derivation index")
		}
		idx := uint32(v)
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		indices = append(indices, idx)
	}
	return indices, nil
}
