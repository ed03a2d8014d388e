package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
)

// MemoryContract is the address the in-memory ledger answers purchases on.
var MemoryContract = common.HexToAddress("0x00000000000000000000000000000000000E7E01")

const (
	memoryChainID  = 1337
	memoryGasUsed  = 120_000
	memoryPollTick = 50 * time.Millisecond
)

var (
	memoryBaseFee = big.NewInt(1_000_000_000)
	memoryTip     = big.NewInt(1_000_000_000)
)

type memTx struct {
	tx      *types.Transaction
	from    common.Address
	mined   bool
	block   uint64
	success bool
	reason  string
	fee     *big.Int
}

// MemoryLedger is an in-process ledger with the EnergyToken purchase rules.
// Transactions are executed when a block is mined: explicitly through Mine,
// or one block per poll while a confirmation is awaited when auto-mining.
type MemoryLedger struct {
	mu sync.Mutex

	chainID  *big.Int
	signer   types.Signer
	poll     time.Duration
	autoMine bool
	now      func() time.Time

	nextID    int64
	projects  map[int64]*entity.ProjectLedger
	positions map[string]*entity.PositionLedger
	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	pending   []*memTx
	txs       map[common.Hash]*memTx
	height    uint64
	blockTime map[uint64]time.Time

	submitHook func(*types.Transaction) error
}

type MemoryOption func(*MemoryLedger)

func WithAutoMine(on bool) MemoryOption {
	return func(l *MemoryLedger) { l.autoMine = on }
}

func WithPollInterval(d time.Duration) MemoryOption {
	return func(l *MemoryLedger) {
		if d > 0 {
			l.poll = d
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLedger) { l.now = now }
}

func NewMemoryLedger(opts ...MemoryOption) *MemoryLedger {
	chainID := big.NewInt(memoryChainID)
	l := &MemoryLedger{
		chainID:   chainID,
		signer:    types.NewLondonSigner(chainID),
		poll:      memoryPollTick,
		autoMine:  true,
		now:       time.Now,
		nextID:    1,
		projects:  make(map[int64]*entity.ProjectLedger),
		positions: make(map[string]*entity.PositionLedger),
		balances:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]uint64),
		txs:       make(map[common.Hash]*memTx),
		blockTime: make(map[uint64]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.blockTime[0] = l.now().UTC()
	return l
}

// AddProject registers p under the next project id and returns that id.
func (l *MemoryLedger) AddProject(p entity.ProjectLedger) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.ProjectID = l.nextID
	l.nextID++
	l.projects[p.ProjectID] = &p
	return p.ProjectID
}

// SetProject overwrites an existing project, e.g. to simulate production records.
func (l *MemoryLedger) SetProject(p entity.ProjectLedger) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.projects[p.ProjectID]; !ok {
		return fmt.Errorf("project %d does not exist", p.ProjectID)
	}
	l.projects[p.ProjectID] = &p
	return nil
}

func (l *MemoryLedger) Fund(address string, wei *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(common.HexToAddress(address), wei)
}

// SetSubmitHook installs fn to run before every Submit; a non-nil error
// rejects the transaction.
func (l *MemoryLedger) SetSubmitHook(fn func(*types.Transaction) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitHook = fn
}

func (l *MemoryLedger) SetAutoMine(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoMine = on
}

func (l *MemoryLedger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// Mine appends n blocks; pending transactions go into the first one.
func (l *MemoryLedger) Mine(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mine(n)
}

func (l *MemoryLedger) mine(n int) {
	for i := 0; i < n; i++ {
		l.height++
		l.blockTime[l.height] = l.now().UTC()
		if i > 0 {
			continue
		}
		for _, m := range l.pending {
			l.execute(m)
		}
		l.pending = nil
	}
}

func (l *MemoryLedger) balance(a common.Address) *big.Int {
	if b, ok := l.balances[a]; ok {
		return b
	}
	b := new(big.Int)
	l.balances[a] = b
	return b
}

func (l *MemoryLedger) credit(a common.Address, v *big.Int) {
	b := l.balance(a)
	b.Add(b, v)
}

// debit takes up to v from a and returns what was taken.
func (l *MemoryLedger) debit(a common.Address, v *big.Int) *big.Int {
	b := l.balance(a)
	taken := new(big.Int).Set(v)
	if b.Cmp(taken) < 0 {
		taken.Set(b)
	}
	b.Sub(b, taken)
	return taken
}

func effectivePrice(tx *types.Transaction) *big.Int {
	p := new(big.Int).Add(memoryBaseFee, tx.GasTipCap())
	if p.Cmp(tx.GasFeeCap()) > 0 {
		p.Set(tx.GasFeeCap())
	}
	return p
}

func (l *MemoryLedger) execute(m *memTx) {
	m.mined = true
	m.block = l.height

	gas := uint64(memoryGasUsed)
	reason := ""
	if m.tx.Gas() < gas {
		gas = m.tx.Gas()
		reason = "out of gas"
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gas), effectivePrice(m.tx))
	m.fee = l.debit(m.from, fee)

	if reason == "" {
		reason = l.apply(m)
	}
	m.success = reason == ""
	m.reason = reason
}

// apply runs the call in m and returns a revert reason, or "" on success.
func (l *MemoryLedger) apply(m *memTx) string {
	value := m.tx.Value()
	if l.balance(m.from).Cmp(value) < 0 {
		return "insufficient funds"
	}
	to := m.tx.To()
	if to == nil {
		return "contract creation not supported"
	}
	if *to != MemoryContract {
		l.debit(m.from, value)
		l.credit(*to, value)
		return ""
	}

	projectID, shares, err := UnpackPurchase(m.tx.Data())
	if err != nil {
		return "unknown method"
	}
	p, ok := l.projects[projectID]
	if !ok {
		return "Project does not exist"
	}
	if p.Status != entity.ProjectActive {
		return "Project not active"
	}
	if shares <= 0 {
		return "Shares must be > 0"
	}
	if shares > p.AvailableShares() {
		return "Exceeds available shares"
	}
	cost := new(big.Int).Mul(p.PricePerShare.Big(), big.NewInt(shares))
	if cost.Cmp(value) != 0 {
		return "Incorrect payment amount"
	}

	l.debit(m.from, value)
	l.credit(common.HexToAddress(p.ProjectWallet), value)
	p.SharesSold += shares

	key := entity.PositionKey(m.from.Hex(), projectID)
	pos, ok := l.positions[key]
	if !ok {
		pos = &entity.PositionLedger{WalletAddress: m.from.Hex(), ProjectID: projectID}
		l.positions[key] = pos
	}
	pos.Shares += shares
	pos.TotalInvested = entity.NewAmount(new(big.Int).Add(pos.TotalInvested.Big(), value))
	if p.TotalShares > 0 {
		pos.EstimatedAnnualKwh = p.EstimatedAnnualKwh * pos.Shares / p.TotalShares
	}
	return ""
}

func (l *MemoryLedger) ReadProject(_ context.Context, projectID int64) (*entity.ProjectLedger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.projects[projectID]
	if !ok {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, "ReadProject", "project %d not found", projectID)
	}
	out := *p
	return &out, nil
}

// ReadPosition reports a zero position for investors without shares, as the contract does.
func (l *MemoryLedger) ReadPosition(_ context.Context, address string, projectID int64) (*entity.PositionLedger, error) {
	if !common.IsHexAddress(address) {
		return nil, wrapErrors.Newf(wrapErrors.CodeValidation, "ReadPosition", "invalid address %q", address)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[entity.PositionKey(address, projectID)]; ok {
		out := *pos
		out.WalletAddress = address
		return &out, nil
	}
	return &entity.PositionLedger{WalletAddress: address, ProjectID: projectID}, nil
}

func (l *MemoryLedger) ListProjectIDs(context.Context) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0, l.nextID-1)
	for i := int64(1); i < l.nextID; i++ {
		ids = append(ids, i)
	}
	return ids, nil
}

func (l *MemoryLedger) ReadBalance(_ context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, wrapErrors.Newf(wrapErrors.CodeValidation, "ReadBalance", "invalid address %q", address)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(common.HexToAddress(address))), nil
}

func (l *MemoryLedger) PreparePurchase(_ context.Context, req PurchaseRequest) (*types.Transaction, types.Signer, error) {
	if !common.IsHexAddress(req.From) {
		return nil, nil, wrapErrors.Newf(wrapErrors.CodeValidation, "PreparePurchase", "invalid address %q", req.From)
	}
	data, err := PackPurchase(req.ProjectID, req.Shares)
	if err != nil {
		return nil, nil, wrapErrors.WrapWithCode(wrapErrors.CodeValidation, "PreparePurchase", err)
	}
	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}

	l.mu.Lock()
	nonce := l.nonces[common.HexToAddress(req.From)]
	l.mu.Unlock()

	to := MemoryContract
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     nonce,
		GasTipCap: new(big.Int).Set(memoryTip),
		GasFeeCap: new(big.Int).Add(new(big.Int).Mul(memoryBaseFee, big.NewInt(2)), memoryTip),
		Gas:       req.GasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	return tx, l.signer, nil
}

// Submit applies the node-side admission checks: signature, nonce and
// up-front cost. Execution happens at mining.
func (l *MemoryLedger) Submit(_ context.Context, signed *types.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitHook != nil {
		if err := l.submitHook(signed); err != nil {
			return "", wrapErrors.WrapWithCode(wrapErrors.SendTxErr, "SendTransaction", err)
		}
	}
	from, err := types.Sender(l.signer, signed)
	if err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.SendTxErr, "SendTransaction", err)
	}
	if _, ok := l.txs[signed.Hash()]; ok {
		return "", wrapErrors.New(wrapErrors.SendTxErr, "SendTransaction", "already known")
	}
	switch want := l.nonces[from]; {
	case signed.Nonce() < want:
		return "", wrapErrors.New(wrapErrors.SendTxErr, "SendTransaction", "nonce too low")
	case signed.Nonce() > want:
		return "", wrapErrors.New(wrapErrors.SendTxErr, "SendTransaction", "nonce too high")
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(signed.Gas()), signed.GasFeeCap())
	cost.Add(cost, signed.Value())
	if l.balance(from).Cmp(cost) < 0 {
		return "", wrapErrors.New(wrapErrors.SendTxErr, "SendTransaction", "insufficient funds for gas * price + value")
	}

	l.nonces[from]++
	m := &memTx{tx: signed, from: from}
	l.txs[signed.Hash()] = m
	l.pending = append(l.pending, m)
	return signed.Hash().Hex(), nil
}

func (l *MemoryLedger) WaitForConfirmation(ctx context.Context, hash string, depth uint64) (*Confirmation, error) {
	h := common.HexToHash(hash)
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		if conf := l.confirmation(h, depth); conf != nil {
			return conf, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *MemoryLedger) CheckConfirmation(_ context.Context, hash string, depth uint64) (*Confirmation, error) {
	return l.confirmation(common.HexToHash(hash), depth), nil
}

func (l *MemoryLedger) confirmation(h common.Hash, depth uint64) *Confirmation {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.txs[h]
	if !ok {
		return nil
	}
	if !m.mined || l.height-m.block+1 < depth {
		if l.autoMine {
			l.mine(1)
		}
		return nil
	}
	conf := &Confirmation{
		Success:       m.success,
		BlockNumber:   m.block,
		Confirmations: l.height - m.block + 1,
		Fee:           new(big.Int).Set(m.fee),
		BlockTime:     l.blockTime[m.block],
	}
	if !m.success {
		conf.RevertReason = m.reason
		if conf.RevertReason == "" {
			conf.RevertReason = RevertedMessage
		}
	}
	return conf
}
