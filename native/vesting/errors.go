package vesting

import "errors"

var (
	ErrNilState          = errors.New("vesting engine: state not configured")
	ErrNilTokens         = errors.New("vesting engine: token adapter not configured")
	ErrNilVault          = errors.New("vesting engine: pool vault not configured")
	ErrNotIssuer         = errors.New("vesting: caller is not the reward issuer")
	ErrNotOwner          = errors.New("vesting: caller is not the owner")
	ErrPaused            = errors.New("vesting: early exit is paused")
	ErrNothingVested     = errors.New("vesting: no open vesting cycle")
	ErrVestingNotElapsed = errors.New("vesting: vesting period not elapsed")
	ErrZeroAmount        = errors.New("vesting: amount must be positive")
	ErrZeroAddress       = errors.New("vesting: zero address")
	ErrExceedsAvailable  = errors.New("vesting: exceeds available balance")
	ErrAlreadyBound      = errors.New("vesting: lockbox already bound")
	ErrLockBoxNotBound   = errors.New("vesting: lockbox not bound")
	ErrNoOp              = errors.New("vesting: no state change")
	ErrNotAllowed        = errors.New("vesting: reward token recovery not allowed")
	ErrNoLiquidity       = errors.New("vesting: pool reports no paired-asset liquidity")
)
