package vesting

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VestingPeriodSeconds is the length of a single vesting cycle. Rewards
// credited into an open cycle share its deadline; a fresh cycle always runs
// the full period from the moment it opens.
const VestingPeriodSeconds int64 = 91 * 24 * 60 * 60

// Account tracks the vesting position for a single user. A zero-valued
// Account is the canonical "no open cycle" state: IsVested false implies
// VestedAmount zero and VestEnd zero.
type Account struct {
	VestedAmount *big.Int
	VestEnd      int64
	IsVested     bool
}

// Clone returns a deep copy so callers cannot mutate shared pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.VestedAmount != nil {
		clone.VestedAmount = new(big.Int).Set(a.VestedAmount)
	}
	return &clone
}

func newAccount() *Account {
	return &Account{VestedAmount: big.NewInt(0)}
}

func (a *Account) reset() {
	a.VestedAmount = big.NewInt(0)
	a.VestEnd = 0
	a.IsVested = false
}

// Global carries the module-wide mutable flags persisted alongside the
// per-user records.
type Global struct {
	Paused  bool
	LockBox common.Address
}

// Clone returns a copy of the global flags.
func (g *Global) Clone() *Global {
	if g == nil {
		return nil
	}
	clone := *g
	return &clone
}

// Config captures the immutable deployment parameters of the vesting module.
type Config struct {
	// RewardToken is the vested asset. It can never be swept by admin
	// recovery and is the asset paid out on claim.
	RewardToken common.Address
	// PairedToken is pulled from users during an early exit to mint
	// liquidity together with the reward asset.
	PairedToken common.Address
	// LiquidityToken is the pool token minted by the vault on join.
	LiquidityToken common.Address
	// VaultAddress is the external pool vault, used as approval spender
	// and join counterparty.
	VaultAddress common.Address
	// Issuer is the sole address allowed to credit vesting positions.
	Issuer common.Address
	// Owner holds the administrative role.
	Owner common.Address
	// Module is the address the ledger itself transacts as; token custody
	// and approvals are anchored here.
	Module common.Address
	// PoolID identifies the two-asset pool inside the vault.
	PoolID [32]byte
}

type engineState interface {
	VestingAccountGet(addr common.Address) (*Account, bool, error)
	VestingAccountPut(addr common.Address, account *Account) error
	VestingGlobalGet() (*Global, bool, error)
	VestingGlobalPut(global *Global) error
}

// TokenAdapter is the defensive token-call surface the engine moves funds
// through. The production implementation lives in native/token.
type TokenAdapter interface {
	Transfer(token, to common.Address, amount *big.Int) error
	TransferFrom(token, from, to common.Address, amount *big.Int) error
	Approve(token, spender common.Address, amount *big.Int) error
	BalanceOf(token, holder common.Address) (*big.Int, error)
}

// ExitReceipt reports what an EarlyExit call actually did. Forced is set
// when the cycle had already expired and the call degraded to a full claim.
type ExitReceipt struct {
	Forced          bool
	RewardUsed      *big.Int
	PairedUsed      *big.Int
	LiquidityMinted *big.Int
}
