package vesting

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// joinKindExactTokensIn selects the vault's EXACT_TOKENS_IN_FOR_BPT_OUT join
// path: the deposited amounts are fixed and the pool-token output floats.
const joinKindExactTokensIn = 1

// JoinPoolRequest mirrors the vault's join payload. Assets must be ordered
// exactly as the pool registered them.
type JoinPoolRequest struct {
	Assets              []common.Address
	MaxAmountsIn        []*big.Int
	UserData            []byte
	FromInternalBalance bool
}

// PoolVault is the subset of the external liquidity-pool vault the module
// consumes. Pool math stays inside the vault; the module only deposits and
// reads reserves.
type PoolVault interface {
	GetPoolTokens(poolID [32]byte) (assets []common.Address, balances []*big.Int, lastChangeBlock uint64, err error)
	JoinPool(poolID [32]byte, sender, recipient common.Address, request JoinPoolRequest) error
}

// LockBox is the secondary vesting contract receiving minted liquidity on
// behalf of exiting users. Its internal mechanics are out of scope.
type LockBox interface {
	CreateVest(user common.Address, amount *big.Int) error
}

var (
	uint256Type, _      = abi.NewType("uint256", "", nil)
	uint256SliceType, _ = abi.NewType("uint256[]", "", nil)

	joinUserDataArgs = abi.Arguments{
		{Type: uint256Type},
		{Type: uint256SliceType},
		{Type: uint256Type},
	}
)

// EncodeExactTokensInJoin builds the ABI-encoded userData for an
// exact-tokens-in join. minPoolTokensOut is enforced by the vault itself; the
// engine passes zero there and applies its own slippage guard on the minted
// balance instead.
func EncodeExactTokensInJoin(amountsIn []*big.Int, minPoolTokensOut *big.Int) ([]byte, error) {
	if minPoolTokensOut == nil {
		minPoolTokensOut = big.NewInt(0)
	}
	data, err := joinUserDataArgs.Pack(big.NewInt(joinKindExactTokensIn), amountsIn, minPoolTokensOut)
	if err != nil {
		return nil, fmt.Errorf("vesting: encode join user data: %w", err)
	}
	return data, nil
}
