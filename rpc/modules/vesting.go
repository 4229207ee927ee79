package modules

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"fvest/native/vesting"
	"fvest/observability/metrics"
	"fvest/storage"
)

// VestingModule exposes the vesting engine over RPC. Mutating calls run
// against a state overlay committed only on success, so a rejected
// operation leaves no partial writes behind.
type VestingModule struct {
	mu      sync.Mutex
	engine  *vesting.Engine
	state   *storage.State
	metrics *metrics.VestingMetrics
}

// NewVestingModule wires the module around a fully configured engine and
// its backing state.
func NewVestingModule(engine *vesting.Engine, state *storage.State) *VestingModule {
	engine.SetState(state)
	return &VestingModule{
		engine:  engine,
		state:   state,
		metrics: metrics.Vesting(),
	}
}

func (m *VestingModule) update(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.state.Update(func(overlay *storage.State) error {
		m.engine.SetState(overlay)
		return fn()
	})
	m.engine.SetState(m.state)
	return err
}

// Credit applies an issuer credit to user's position.
func (m *VestingModule) Credit(caller, user common.Address, amount *big.Int) *ModuleError {
	err := m.update(func() error {
		return m.engine.Credit(caller, user, amount)
	})
	if err != nil {
		m.metrics.RecordFailure("credit")
		return wrapError(err)
	}
	m.metrics.RecordCredit()
	return nil
}

// Claim pays out the caller's matured position and returns the amount.
func (m *VestingModule) Claim(caller common.Address) (*big.Int, *ModuleError) {
	var paid *big.Int
	err := m.update(func() error {
		var inner error
		paid, inner = m.engine.Claim(caller)
		return inner
	})
	if err != nil {
		m.metrics.RecordFailure("claim")
		return nil, wrapError(err)
	}
	m.metrics.RecordClaim(false)
	return paid, nil
}

// EarlyExit converts part of the caller's position into a liquidity vest.
func (m *VestingModule) EarlyExit(caller common.Address, pairedAmount, minLiquidityOut *big.Int) (*vesting.ExitReceipt, *ModuleError) {
	var receipt *vesting.ExitReceipt
	err := m.update(func() error {
		var inner error
		receipt, inner = m.engine.EarlyExit(caller, pairedAmount, minLiquidityOut)
		return inner
	})
	if err != nil {
		m.metrics.RecordFailure("earlyExit")
		return nil, wrapError(err)
	}
	if receipt.Forced {
		m.metrics.RecordClaim(true)
	} else {
		m.metrics.RecordEarlyExit()
	}
	return receipt, nil
}

// TimeRemaining reports the seconds left on user's open cycle.
func (m *VestingModule) TimeRemaining(user common.Address) (int64, *ModuleError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining, err := m.engine.TimeRemaining(user)
	if err != nil {
		return 0, wrapError(err)
	}
	return remaining, nil
}

// TotalVested returns the reward-token balance held by the module and
// refreshes the exported gauge.
func (m *VestingModule) TotalVested() (*big.Int, *ModuleError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.engine.TotalVestedBalance()
	if err != nil {
		return nil, wrapError(err)
	}
	asFloat, _ := new(big.Float).SetInt(balance).Float64()
	m.metrics.SetVestedBalance(asFloat)
	return balance, nil
}

// Paused reports the early-exit pause flag.
func (m *VestingModule) Paused() (bool, *ModuleError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paused, err := m.engine.Paused()
	if err != nil {
		return false, wrapError(err)
	}
	return paused, nil
}

// SetPaused flips the early-exit pause flag.
func (m *VestingModule) SetPaused(caller common.Address, paused bool) *ModuleError {
	err := m.update(func() error {
		return m.engine.SetPaused(caller, paused)
	})
	if err != nil {
		m.metrics.RecordFailure("setPaused")
		return wrapError(err)
	}
	return nil
}

// BindLockBox performs the one-time lockbox binding.
func (m *VestingModule) BindLockBox(caller, lockBox common.Address) *ModuleError {
	err := m.update(func() error {
		return m.engine.BindLockBox(caller, lockBox)
	})
	if err != nil {
		m.metrics.RecordFailure("bindLockBox")
		return wrapError(err)
	}
	return nil
}

// RefreshApprovals re-issues the module's approvals.
func (m *VestingModule) RefreshApprovals(caller common.Address) *ModuleError {
	err := m.update(func() error {
		return m.engine.RefreshApprovals(caller)
	})
	if err != nil {
		m.metrics.RecordFailure("refreshApprovals")
		return wrapError(err)
	}
	return nil
}

// RecoverStrayTokens sweeps a non-reward token from the module.
func (m *VestingModule) RecoverStrayTokens(caller, token, to common.Address, amount *big.Int) *ModuleError {
	err := m.update(func() error {
		return m.engine.RecoverStrayTokens(caller, token, to, amount)
	})
	if err != nil {
		m.metrics.RecordFailure("recoverStrayTokens")
		return wrapError(err)
	}
	return nil
}
