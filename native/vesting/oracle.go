package vesting

import (
	"math/big"
)

// PoolOracle derives the reward/paired exchange rate from the vault's
// current reserves. The read is a spot price within the enclosing operation;
// callers bound acceptable output through their own slippage parameters,
// reserves can move between decision and execution.
type PoolOracle struct {
	vault  PoolVault
	poolID [32]byte
}

// NewPoolOracle constructs an oracle bound to a specific pool.
func NewPoolOracle(vault PoolVault, poolID [32]byte) *PoolOracle {
	return &PoolOracle{vault: vault, poolID: poolID}
}

// RequiredRewardFor returns the reward-asset amount the pool currently prices
// against pairedAmount: pairedAmount * rewardReserve / pairedReserve with
// truncating division. Reserve index 0 is the reward asset and index 1 the
// paired asset, fixed by pool construction order.
func (o *PoolOracle) RequiredRewardFor(pairedAmount *big.Int) (*big.Int, error) {
	if o == nil || o.vault == nil {
		return nil, ErrNilVault
	}
	if pairedAmount == nil || pairedAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	_, balances, _, err := o.vault.GetPoolTokens(o.poolID)
	if err != nil {
		return nil, err
	}
	if len(balances) < 2 || balances[0] == nil || balances[1] == nil || balances[1].Sign() == 0 {
		return nil, ErrNoLiquidity
	}
	required := new(big.Int).Mul(pairedAmount, balances[0])
	return required.Quo(required, balances[1]), nil
}
