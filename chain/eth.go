package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/config"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
)

// Backend is the subset of ethclient.Client the gateway needs.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

const (
	feeQuoteKey = "fee-quote"
	feeQuoteTTL = 15 * time.Second
)

type feeQuote struct {
	tip    *big.Int
	feeCap *big.Int
}

// ETHChain talks to the EnergyToken contract over JSON-RPC.
type ETHChain struct {
	backend  Backend
	contract common.Address
	chainID  *big.Int
	signer   types.Signer
	poll     time.Duration
	fees     *cache.Cache
	log      logrus.FieldLogger
}

// NewETHChain dials cfg.RPC and checks the remote chain id against the
// configured one, when set.
func NewETHChain(ctx context.Context, cfg config.EthConfig, poll time.Duration, log logrus.FieldLogger) (*ETHChain, error) {
	link := fmt.Sprintf("%s%s", cfg.RPC, cfg.TestToken)
	client, err := ethclient.DialContext(ctx, link)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.DailChain, "eth dial", err)
	}
	e, err := NewETHChainWithBackend(ctx, client, common.HexToAddress(cfg.ContractAddress), poll, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	if cfg.ChainID != 0 && e.chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		client.Close()
		return nil, wrapErrors.Newf(wrapErrors.GetchainIDErr, "get chainID", "remote chain id %s, configured %d", e.chainID, cfg.ChainID)
	}
	return e, nil
}

func NewETHChainWithBackend(ctx context.Context, backend Backend, contract common.Address, poll time.Duration, log logrus.FieldLogger) (*ETHChain, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.GetchainIDErr, "get chainID", err)
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &ETHChain{
		backend:  backend,
		contract: contract,
		chainID:  chainID,
		signer:   types.NewLondonSigner(chainID),
		poll:     poll,
		fees:     cache.New(feeQuoteTTL, time.Minute),
		log:      log.WithField("component", "eth-gateway"),
	}, nil
}

func (e *ETHChain) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := EnergyTokenABI.Pack(method, args...)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, method, err)
	}
	out, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &e.contract, Data: data}, nil)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, method, err)
	}
	res, err := EnergyTokenABI.Unpack(method, out)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, method, err)
	}
	return res, nil
}

func (e *ETHChain) ReadProject(ctx context.Context, projectID int64) (*entity.ProjectLedger, error) {
	id := big.NewInt(projectID)
	core, err := e.call(ctx, methodProjects, id)
	if err != nil {
		return nil, err
	}
	meta, err := e.call(ctx, methodProjectMetadata, id)
	if err != nil {
		return nil, err
	}
	stats, err := e.call(ctx, methodProjectStats, id)
	if err != nil {
		return nil, err
	}
	p, err := decodeProject(projectID, core, meta, stats)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "decode project", err)
	}
	// the contract returns a zero struct for unknown ids
	if p.TotalShares == 0 && p.Name == "" {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, "ReadProject", "project %d not found", projectID)
	}
	return p, nil
}

func (e *ETHChain) ReadPosition(ctx context.Context, address string, projectID int64) (*entity.PositionLedger, error) {
	if !common.IsHexAddress(address) {
		return nil, wrapErrors.Newf(wrapErrors.CodeValidation, "ReadPosition", "invalid address %q", address)
	}
	out, err := e.call(ctx, methodInvestorPosition, big.NewInt(projectID), common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	pos, err := decodePosition(address, projectID, out)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "decode position", err)
	}
	return pos, nil
}

// ListProjectIDs returns 1..nextProjectId-1; ids start at 1 on the contract.
func (e *ETHChain) ListProjectIDs(ctx context.Context) ([]int64, error) {
	out, err := e.call(ctx, methodNextProjectID)
	if err != nil {
		return nil, err
	}
	next, err := int64At(out, 0)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, methodNextProjectID, err)
	}
	ids := make([]int64, 0, next)
	for i := int64(1); i < next; i++ {
		ids = append(ids, i)
	}
	return ids, nil
}

func (e *ETHChain) ReadBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, wrapErrors.Newf(wrapErrors.CodeValidation, "ReadBalance", "invalid address %q", address)
	}
	bal, err := e.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "BalanceAt", err)
	}
	return bal, nil
}

// quoteFees returns tip and fee cap, reusing a recent quote.
// feeCap = 2*baseFee + tip leaves room for base fee growth.
func (e *ETHChain) quoteFees(ctx context.Context) (*feeQuote, error) {
	if v, ok := e.fees.Get(feeQuoteKey); ok {
		return v.(*feeQuote), nil
	}
	tip, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeGasEstimate, "SuggestGasTipCap", err)
	}
	header, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.CodeChainRPC, "HeaderByNumber", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	q := &feeQuote{
		tip:    tip,
		feeCap: new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip),
	}
	e.fees.SetDefault(feeQuoteKey, q)
	return q, nil
}

func (e *ETHChain) PreparePurchase(ctx context.Context, req PurchaseRequest) (*types.Transaction, types.Signer, error) {
	if !common.IsHexAddress(req.From) {
		return nil, nil, wrapErrors.Newf(wrapErrors.CodeValidation, "PreparePurchase", "invalid address %q", req.From)
	}
	data, err := PackPurchase(req.ProjectID, req.Shares)
	if err != nil {
		return nil, nil, wrapErrors.WrapWithCode(wrapErrors.CodeValidation, "PreparePurchase", err)
	}
	nonce, err := e.backend.PendingNonceAt(ctx, common.HexToAddress(req.From))
	if err != nil {
		return nil, nil, wrapErrors.WrapWithCode(wrapErrors.PendingNonceAt, "PendingNonceAt", err)
	}
	q, err := e.quoteFees(ctx)
	if err != nil {
		return nil, nil, err
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	to := e.contract
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: q.tip,
		GasFeeCap: q.feeCap,
		Gas:       req.GasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	return tx, e.signer, nil
}

func (e *ETHChain) Submit(ctx context.Context, signed *types.Transaction) (string, error) {
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.SendTxErr, "SendTransaction", err)
	}
	return signed.Hash().Hex(), nil
}

// WaitForConfirmation polls for the receipt and the chain head. RPC errors
// while polling are logged and retried until ctx ends.
func (e *ETHChain) WaitForConfirmation(ctx context.Context, hash string, depth uint64) (*Confirmation, error) {
	h := common.HexToHash(hash)
	log := e.log.WithField("tx", hash)
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		conf, err := e.checkConfirmation(ctx, h, depth)
		switch {
		case err != nil && ctx.Err() == nil:
			log.WithError(err).Warn("confirmation poll failed")
		case conf != nil:
			return conf, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *ETHChain) CheckConfirmation(ctx context.Context, hash string, depth uint64) (*Confirmation, error) {
	return e.checkConfirmation(ctx, common.HexToHash(hash), depth)
}

// checkConfirmation returns nil, nil while the tx is unknown or not deep enough.
func (e *ETHChain) checkConfirmation(ctx context.Context, h common.Hash, depth uint64) (*Confirmation, error) {
	receipt, err := e.backend.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	head, err := e.backend.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	mined := receipt.BlockNumber.Uint64()
	if head < mined || head-mined+1 < depth {
		return nil, nil
	}

	price := receipt.EffectiveGasPrice
	if price == nil {
		price = new(big.Int)
	}
	conf := &Confirmation{
		Success:       receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber:   mined,
		Confirmations: head - mined + 1,
		Fee:           new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price),
	}
	if !conf.Success {
		conf.RevertReason = RevertedMessage
	}
	header, err := e.backend.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, err
	}
	conf.BlockTime = time.Unix(int64(header.Time), 0).UTC()
	return conf, nil
}
