package vesting

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"fvest/native/token"
)

var (
	bytes32Type, _      = abi.NewType("bytes32", "", nil)
	addressType, _      = abi.NewType("address", "", nil)
	addressSliceType, _ = abi.NewType("address[]", "", nil)

	joinRequestType, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "assets", Type: "address[]"},
		{Name: "maxAmountsIn", Type: "uint256[]"},
		{Name: "userData", Type: "bytes"},
		{Name: "fromInternalBalance", Type: "bool"},
	})

	getPoolTokensArgs = abi.Arguments{{Type: bytes32Type}}
	getPoolTokensRets = abi.Arguments{
		{Type: addressSliceType},
		{Type: uint256SliceType},
		{Type: uint256Type},
	}
	joinPoolArgs = abi.Arguments{
		{Type: bytes32Type},
		{Type: addressType},
		{Type: addressType},
		{Type: joinRequestType},
	}
	createVestArgs = abi.Arguments{{Type: addressType}, {Type: uint256Type}}

	getPoolTokensSelector = methodSelector("getPoolTokens(bytes32)")
	joinPoolSelector      = methodSelector("joinPool(bytes32,address,address,(address[],uint256[],bytes,bool))")
	createVestSelector    = methodSelector("createVest(address,uint256)")
)

func methodSelector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func packCall(sel []byte, args abi.Arguments, values ...interface{}) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, sel...), packed...), nil
}

// VaultClient implements PoolVault against an on-chain vault contract. Pool
// reserves are read through the backend's call surface; joins settle through
// its transacting surface.
type VaultClient struct {
	backend token.ContractBackend
	address common.Address
}

// NewVaultClient binds the client to the vault at address.
func NewVaultClient(backend token.ContractBackend, address common.Address) *VaultClient {
	return &VaultClient{backend: backend, address: address}
}

// GetPoolTokens implements PoolVault.
func (c *VaultClient) GetPoolTokens(poolID [32]byte) ([]common.Address, []*big.Int, uint64, error) {
	input, err := packCall(getPoolTokensSelector, getPoolTokensArgs, poolID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("vesting: encode getPoolTokens: %w", err)
	}
	ret, err := c.backend.Call(c.address, input)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("vesting: getPoolTokens: %w", err)
	}
	decoded, err := getPoolTokensRets.Unpack(ret)
	if err != nil || len(decoded) != 3 {
		return nil, nil, 0, fmt.Errorf("vesting: decode getPoolTokens: %w", err)
	}
	assets, ok := decoded[0].([]common.Address)
	if !ok {
		return nil, nil, 0, fmt.Errorf("vesting: decode getPoolTokens: unexpected assets type")
	}
	balances, ok := decoded[1].([]*big.Int)
	if !ok {
		return nil, nil, 0, fmt.Errorf("vesting: decode getPoolTokens: unexpected balances type")
	}
	lastChange, ok := decoded[2].(*big.Int)
	if !ok {
		return nil, nil, 0, fmt.Errorf("vesting: decode getPoolTokens: unexpected block type")
	}
	return assets, balances, lastChange.Uint64(), nil
}

// JoinPool implements PoolVault.
func (c *VaultClient) JoinPool(poolID [32]byte, sender, recipient common.Address, request JoinPoolRequest) error {
	input, err := packCall(joinPoolSelector, joinPoolArgs, poolID, sender, recipient, request)
	if err != nil {
		return fmt.Errorf("vesting: encode joinPool: %w", err)
	}
	if _, err := c.backend.Transact(c.address, input); err != nil {
		return fmt.Errorf("vesting: joinPool: %w", err)
	}
	return nil
}

// LockBoxClient implements LockBox against an on-chain lockbox contract.
// Creating a vest moves custody, so it settles through the transacting
// surface.
type LockBoxClient struct {
	transactor token.ContractTransactor
	address    common.Address
}

// NewLockBoxClient binds the client to the lockbox at address.
func NewLockBoxClient(transactor token.ContractTransactor, address common.Address) *LockBoxClient {
	return &LockBoxClient{transactor: transactor, address: address}
}

// CreateVest implements LockBox.
func (c *LockBoxClient) CreateVest(user common.Address, amount *big.Int) error {
	input, err := packCall(createVestSelector, createVestArgs, user, amount)
	if err != nil {
		return fmt.Errorf("vesting: encode createVest: %w", err)
	}
	if _, err := c.transactor.Transact(c.address, input); err != nil {
		return fmt.Errorf("vesting: createVest: %w", err)
	}
	return nil
}
