package vesting

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"fvest/core/events"
)

// Engine is the reward-vesting ledger. The issuer credits positions that
// unlock after a fixed cycle; users either claim in full after the deadline
// or convert part of an open position into a liquidity-token vest through
// the external pool vault.
//
// Every mutating operation runs under a single mutex. External collaborators
// (tokens, vault, lockbox) are invoked inside the critical section, so a
// callback from any of them cannot re-enter the ledger mid-operation.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	state     engineState
	tokens    TokenAdapter
	vault     PoolVault
	oracle    *PoolOracle
	lockBoxFn func(common.Address) LockBox
	emitter   events.Emitter
	nowFn     func() int64
}

// NewEngine constructs a vesting engine from its immutable deployment
// configuration. State, tokens and the vault must be wired before use.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the defensive token-call adapter.
func (e *Engine) SetTokens(tokens TokenAdapter) { e.tokens = tokens }

// SetVault wires the external pool vault and rebuilds the reserve oracle
// against the configured pool.
func (e *Engine) SetVault(vault PoolVault) {
	e.vault = vault
	e.oracle = NewPoolOracle(vault, e.cfg.PoolID)
}

// SetLockBoxDialer configures how the engine reaches the bound lockbox
// contract. The dialer receives the currently bound address.
func (e *Engine) SetLockBoxDialer(dial func(common.Address) LockBox) { e.lockBoxFn = dial }

// SetEmitter configures the event emitter. Nil restores the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source for deterministic testing. Nil
// restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.tokens == nil {
		return ErrNilTokens
	}
	return nil
}

func (e *Engine) loadAccount(addr common.Address) (*Account, error) {
	account, ok, err := e.state.VestingAccountGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || account == nil {
		return newAccount(), nil
	}
	if account.VestedAmount == nil {
		account.VestedAmount = big.NewInt(0)
	}
	return account, nil
}

func (e *Engine) loadGlobal() (*Global, error) {
	global, ok, err := e.state.VestingGlobalGet()
	if err != nil {
		return nil, err
	}
	if !ok || global == nil {
		return &Global{}, nil
	}
	return global, nil
}

// forcedClaim pays out the full stale position and resets the record. The
// debit is persisted before the outbound transfer.
func (e *Engine) forcedClaim(user common.Address, account *Account) (*big.Int, error) {
	amount := account.VestedAmount
	account.reset()
	if err := e.state.VestingAccountPut(user, account); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(e.cfg.RewardToken, user, amount); err != nil {
		return nil, err
	}
	e.emitter.Emit(newClaimedEvent(user, amount, true))
	return amount, nil
}

// Credit vests amount for user. Only the configured issuer may call. A stale
// open cycle is flushed to the user first, so expired value is always paid
// out rather than rolled past its vest horizon; afterwards the credit either
// opens a fresh cycle or accumulates into the live one without moving its
// deadline.
func (e *Engine) Credit(caller, user common.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Issuer {
		return ErrNotIssuer
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	account, err := e.loadAccount(user)
	if err != nil {
		return err
	}
	now := e.now()
	if account.IsVested && now >= account.VestEnd {
		if _, err := e.forcedClaim(user, account); err != nil {
			return err
		}
	}
	if !account.IsVested {
		account.IsVested = true
		account.VestEnd = now + VestingPeriodSeconds
		account.VestedAmount = new(big.Int).Set(amount)
	} else {
		account.VestedAmount = new(big.Int).Add(account.VestedAmount, amount)
	}
	if err := e.state.VestingAccountPut(user, account); err != nil {
		return err
	}
	e.emitter.Emit(newCreditedEvent(user, amount, account.VestEnd))
	return nil
}

// Claim pays out the caller's full matured position and resets the record.
func (e *Engine) Claim(caller common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	if !account.IsVested {
		return nil, ErrNothingVested
	}
	if e.now() < account.VestEnd {
		return nil, ErrVestingNotElapsed
	}
	amount := account.VestedAmount
	account.reset()
	if err := e.state.VestingAccountPut(caller, account); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(e.cfg.RewardToken, caller, amount); err != nil {
		return nil, err
	}
	e.emitter.Emit(newClaimedEvent(caller, amount, false))
	return amount, nil
}

// EarlyExit converts part of the caller's open position into a liquidity
// vest: the pool prices a reward-asset amount against pairedAmount, that
// amount is debited from the position, both legs are deposited into the
// pool, and the minted liquidity is forwarded to the lockbox tagged to the
// caller. Past the deadline the call degrades to a full claim and ignores
// the conversion parameters entirely.
func (e *Engine) EarlyExit(caller common.Address, pairedAmount, minLiquidityOut *big.Int) (*ExitReceipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.vault == nil || e.oracle == nil {
		return nil, ErrNilVault
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	if !account.IsVested {
		return nil, ErrNothingVested
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	if global.Paused {
		return nil, ErrPaused
	}
	if pairedAmount == nil || pairedAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	if e.now() >= account.VestEnd {
		paid, err := e.forcedClaim(caller, account)
		if err != nil {
			return nil, err
		}
		return &ExitReceipt{
			Forced:          true,
			RewardUsed:      paid,
			PairedUsed:      big.NewInt(0),
			LiquidityMinted: big.NewInt(0),
		}, nil
	}

	if global.LockBox == (common.Address{}) || e.lockBoxFn == nil {
		return nil, ErrLockBoxNotBound
	}

	required, err := e.oracle.RequiredRewardFor(pairedAmount)
	if err != nil {
		return nil, err
	}
	if account.VestedAmount.Sign() == 0 || required.Cmp(account.VestedAmount) > 0 {
		return nil, ErrExceedsAvailable
	}

	// Debit before any external interaction. A partial exit leaves the
	// cycle deadline untouched.
	account.VestedAmount = new(big.Int).Sub(account.VestedAmount, required)
	if err := e.state.VestingAccountPut(caller, account); err != nil {
		return nil, err
	}

	if err := e.tokens.TransferFrom(e.cfg.PairedToken, caller, e.cfg.Module, pairedAmount); err != nil {
		return nil, err
	}

	before, err := e.tokens.BalanceOf(e.cfg.LiquidityToken, e.cfg.Module)
	if err != nil {
		return nil, err
	}
	userData, err := EncodeExactTokensInJoin([]*big.Int{required, pairedAmount}, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	request := JoinPoolRequest{
		Assets:       []common.Address{e.cfg.RewardToken, e.cfg.PairedToken},
		MaxAmountsIn: []*big.Int{required, pairedAmount},
		UserData:     userData,
	}
	if err := e.vault.JoinPool(e.cfg.PoolID, e.cfg.Module, e.cfg.Module, request); err != nil {
		return nil, err
	}
	after, err := e.tokens.BalanceOf(e.cfg.LiquidityToken, e.cfg.Module)
	if err != nil {
		return nil, err
	}
	// A join that minted nothing is a failed conversion regardless of the
	// caller's slippage bound; never vest a zero amount into the lockbox.
	minted := new(big.Int).Sub(after, before)
	if minted.Sign() <= 0 || (minLiquidityOut != nil && minted.Cmp(minLiquidityOut) < 0) {
		return nil, ErrExceedsAvailable
	}

	if err := e.lockBoxFn(global.LockBox).CreateVest(caller, minted); err != nil {
		return nil, err
	}

	e.emitter.Emit(newEarlyExitedEvent(caller, required, pairedAmount, minted))
	return &ExitReceipt{
		RewardUsed:      required,
		PairedUsed:      pairedAmount,
		LiquidityMinted: minted,
	}, nil
}

// TimeRemaining reports the seconds left on the user's open cycle, zero when
// nothing is vested or the deadline already passed.
func (e *Engine) TimeRemaining(user common.Address) (int64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.loadAccount(user)
	if err != nil {
		return 0, err
	}
	if account.VestedAmount.Sign() == 0 {
		return 0, nil
	}
	now := e.now()
	if now >= account.VestEnd {
		return 0, nil
	}
	return account.VestEnd - now, nil
}

// TotalVestedBalance returns the reward-token balance held by the module, a
// proxy for aggregate unclaimed vesting rather than a sum of records.
func (e *Engine) TotalVestedBalance() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.tokens.BalanceOf(e.cfg.RewardToken, e.cfg.Module)
}

// Account returns a copy of the user's vesting record, a zero record when
// none exists.
func (e *Engine) Account(user common.Address) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.loadAccount(user)
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// Paused reports whether the early-exit path is suspended. Credit and claim
// stay available regardless; the issuer may read this to suppress crediting.
func (e *Engine) Paused() (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	global, err := e.loadGlobal()
	if err != nil {
		return false, err
	}
	return global.Paused, nil
}

// SetPaused flips the early-exit pause flag. Setting the current value is
// rejected so redundant admin toggles surface as errors.
func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return ErrNotOwner
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if global.Paused == paused {
		return ErrNoOp
	}
	global.Paused = paused
	if err := e.state.VestingGlobalPut(global); err != nil {
		return err
	}
	e.emitter.Emit(newPauseChangedEvent(paused))
	return nil
}

// BindLockBox assigns the secondary vesting contract exactly once and grants
// it unlimited approval over the liquidity token.
func (e *Engine) BindLockBox(caller, lockBox common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return ErrNotOwner
	}
	if lockBox == (common.Address{}) {
		return ErrZeroAddress
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if global.LockBox != (common.Address{}) {
		return ErrAlreadyBound
	}
	global.LockBox = lockBox
	if err := e.state.VestingGlobalPut(global); err != nil {
		return err
	}
	if err := e.tokens.Approve(e.cfg.LiquidityToken, lockBox, math.MaxBig256); err != nil {
		return err
	}
	e.emitter.Emit(newLockBoxBoundEvent(lockBox))
	return nil
}

// resetApproval accommodates tokens that reject approval changes from a
// nonzero value by zeroing before granting the unlimited allowance.
func (e *Engine) resetApproval(token, spender common.Address) error {
	if err := e.tokens.Approve(token, spender, big.NewInt(0)); err != nil {
		return err
	}
	return e.tokens.Approve(token, spender, math.MaxBig256)
}

// RefreshApprovals re-issues the module's unlimited approvals: both reward
// assets to the pool vault, and the liquidity token to the lockbox when one
// is bound.
func (e *Engine) RefreshApprovals(caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return ErrNotOwner
	}
	if err := e.resetApproval(e.cfg.RewardToken, e.cfg.VaultAddress); err != nil {
		return err
	}
	if err := e.resetApproval(e.cfg.PairedToken, e.cfg.VaultAddress); err != nil {
		return err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	bound := global.LockBox != (common.Address{})
	if bound {
		if err := e.resetApproval(e.cfg.LiquidityToken, global.LockBox); err != nil {
			return err
		}
	}
	e.emitter.Emit(newApprovalsRefreshedEvent(bound))
	return nil
}

// RecoverStrayTokens sweeps tokens sent to the module by mistake. The reward
// asset is off limits, user vested funds can never be drained this way.
func (e *Engine) RecoverStrayTokens(caller, token, to common.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return ErrNotOwner
	}
	if token == e.cfg.RewardToken {
		return ErrNotAllowed
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := e.tokens.Transfer(token, to, amount); err != nil {
		return err
	}
	e.emitter.Emit(newTokensRecoveredEvent(token, to, amount))
	return nil
}
