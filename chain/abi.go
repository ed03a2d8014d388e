package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
)

// energyTokenABI covers the part of the EnergyToken contract this service calls.
const energyTokenABI = `[
 {"type":"function","name":"projects","stateMutability":"view",
  "inputs":[{"name":"projectId","type":"uint256"}],
  "outputs":[
   {"name":"name","type":"string"},
   {"name":"location","type":"string"},
   {"name":"installationSizeKw","type":"uint256"},
   {"name":"estimatedAnnualKwh","type":"uint256"},
   {"name":"totalShares","type":"uint256"},
   {"name":"sharesSold","type":"uint256"},
   {"name":"pricePerShare","type":"uint256"},
   {"name":"projectStartDate","type":"uint256"},
   {"name":"status","type":"uint8"},
   {"name":"projectWallet","type":"address"},
   {"name":"transfersEnabled","type":"bool"}]},
 {"type":"function","name":"projectMetadata","stateMutability":"view",
  "inputs":[{"name":"projectId","type":"uint256"}],
  "outputs":[
   {"name":"projectType","type":"string"},
   {"name":"projectSubtype","type":"string"},
   {"name":"documentIPFS","type":"string"},
   {"name":"projectDuration","type":"uint256"}]},
 {"type":"function","name":"getProjectStats","stateMutability":"view",
  "inputs":[{"name":"projectId","type":"uint256"}],
  "outputs":[
   {"name":"totalProduction","type":"uint256"},
   {"name":"recordCount","type":"uint256"},
   {"name":"averageDaily","type":"uint256"},
   {"name":"lastRecordedTimestamp","type":"uint256"}]},
 {"type":"function","name":"nextProjectId","stateMutability":"view",
  "inputs":[],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getInvestorPosition","stateMutability":"view",
  "inputs":[{"name":"projectId","type":"uint256"},{"name":"investor","type":"address"}],
  "outputs":[
   {"name":"shares","type":"uint256"},
   {"name":"totalInvested","type":"uint256"},
   {"name":"lifetimeKwh","type":"uint256"},
   {"name":"claimableKwh","type":"uint256"},
   {"name":"estimatedAnnualKwh","type":"uint256"}]},
 {"type":"function","name":"purchaseShares","stateMutability":"payable",
  "inputs":[{"name":"projectId","type":"uint256"},{"name":"shares","type":"uint256"}],
  "outputs":[]},
 {"type":"event","name":"SharesPurchased","anonymous":false,
  "inputs":[
   {"name":"projectId","type":"uint256","indexed":true},
   {"name":"investor","type":"address","indexed":true},
   {"name":"shares","type":"uint256","indexed":false},
   {"name":"totalCost","type":"uint256","indexed":false}]}
]`

const (
	methodProjects         = "projects"
	methodProjectMetadata  = "projectMetadata"
	methodProjectStats     = "getProjectStats"
	methodNextProjectID    = "nextProjectId"
	methodInvestorPosition = "getInvestorPosition"
	methodPurchaseShares   = "purchaseShares"
)

var EnergyTokenABI = mustParseABI(energyTokenABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: bad contract abi: %v", err))
	}
	return parsed
}

// PackPurchase encodes the calldata of purchaseShares(projectId, shares).
func PackPurchase(projectID, shares int64) ([]byte, error) {
	return EnergyTokenABI.Pack(methodPurchaseShares, big.NewInt(projectID), big.NewInt(shares))
}

// UnpackPurchase is the inverse of PackPurchase.
func UnpackPurchase(data []byte) (projectID, shares int64, err error) {
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("calldata too short")
	}
	method, err := EnergyTokenABI.MethodById(data[:4])
	if err != nil {
		return 0, 0, err
	}
	if method.Name != methodPurchaseShares {
		return 0, 0, fmt.Errorf("unexpected method %s", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return 0, 0, err
	}
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("unexpected argument count %d", len(args))
	}
	p, ok1 := args[0].(*big.Int)
	s, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 || !p.IsInt64() || !s.IsInt64() {
		return 0, 0, fmt.Errorf("purchase arguments out of range")
	}
	return p.Int64(), s.Int64(), nil
}

func bigAt(out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d is %T, want uint256", i, out[i])
	}
	return v, nil
}

func int64At(out []interface{}, i int) (int64, error) {
	v, err := bigAt(out, i)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("output %d overflows int64", i)
	}
	return v.Int64(), nil
}

func stringAt(out []interface{}, i int) (string, error) {
	if i >= len(out) {
		return "", fmt.Errorf("output %d missing", i)
	}
	v, ok := out[i].(string)
	if !ok {
		return "", fmt.Errorf("output %d is %T, want string", i, out[i])
	}
	return v, nil
}

// decodeProject fills the ledger fields from the outputs of projects,
// projectMetadata and getProjectStats.
func decodeProject(id int64, core, meta, stats []interface{}) (*entity.ProjectLedger, error) {
	p := &entity.ProjectLedger{ProjectID: id}
	var err error

	if p.Name, err = stringAt(core, 0); err != nil {
		return nil, err
	}
	if p.Location, err = stringAt(core, 1); err != nil {
		return nil, err
	}
	ints := []*int64{&p.InstallationSizeKw, &p.EstimatedAnnualKwh, &p.TotalShares, &p.SharesSold}
	for i, dst := range ints {
		if *dst, err = int64At(core, 2+i); err != nil {
			return nil, err
		}
	}
	price, err := bigAt(core, 6)
	if err != nil {
		return nil, err
	}
	p.PricePerShare = entity.NewAmount(price)
	if p.ProjectStartDate, err = int64At(core, 7); err != nil {
		return nil, err
	}
	if len(core) < 11 {
		return nil, fmt.Errorf("projects: want 11 outputs, got %d", len(core))
	}
	status, ok := core[8].(uint8)
	if !ok {
		return nil, fmt.Errorf("projects: status is %T", core[8])
	}
	p.Status = int(status)
	wallet, ok := core[9].(common.Address)
	if !ok {
		return nil, fmt.Errorf("projects: wallet is %T", core[9])
	}
	p.ProjectWallet = wallet.Hex()
	if p.TransfersEnabled, ok = core[10].(bool); !ok {
		return nil, fmt.Errorf("projects: transfersEnabled is %T", core[10])
	}

	if p.ProjectType, err = stringAt(meta, 0); err != nil {
		return nil, err
	}
	if p.ProjectSubtype, err = stringAt(meta, 1); err != nil {
		return nil, err
	}
	if p.DocumentIPFS, err = stringAt(meta, 2); err != nil {
		return nil, err
	}
	if p.ProjectDuration, err = int64At(meta, 3); err != nil {
		return nil, err
	}

	if p.TotalProduction, err = int64At(stats, 0); err != nil {
		return nil, err
	}
	if p.ProductionRecordCount, err = int64At(stats, 1); err != nil {
		return nil, err
	}
	return p, nil
}

func decodePosition(address string, projectID int64, out []interface{}) (*entity.PositionLedger, error) {
	pos := &entity.PositionLedger{WalletAddress: address, ProjectID: projectID}
	var err error
	if pos.Shares, err = int64At(out, 0); err != nil {
		return nil, err
	}
	invested, err := bigAt(out, 1)
	if err != nil {
		return nil, err
	}
	pos.TotalInvested = entity.NewAmount(invested)
	if pos.LifetimeKwh, err = int64At(out, 2); err != nil {
		return nil, err
	}
	if pos.ClaimableKwh, err = int64At(out, 3); err != nil {
		return nil, err
	}
	if pos.EstimatedAnnualKwh, err = int64At(out, 4); err != nil {
		return nil, err
	}
	return pos, nil
}
