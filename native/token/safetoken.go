// Package token wraps external token-style contracts behind defensive call
// helpers. Target tokens are untrusted and heterogeneous: some return a
// boolean, some return nothing, some do not exist at all. Every helper
// distinguishes "the call did not execute" from "the call executed but
// reported failure" and surfaces both as typed errors.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrTransferFailed = errors.New("token: transfer failed")
	ErrApproveFailed  = errors.New("token: approve failed")
	ErrReadFailed     = errors.New("token: balance read failed")
)

// ContractCaller executes a read-only contract invocation from the module's
// own address and returns the raw return payload.
type ContractCaller interface {
	Call(target common.Address, input []byte) ([]byte, error)
}

// ContractTransactor executes a state-changing contract invocation and does
// not return until the change settled (or failed). The returned payload is
// the call's execution result so boolean return conventions stay checkable.
type ContractTransactor interface {
	Transact(target common.Address, input []byte) ([]byte, error)
}

// ContractBackend joins the read and write surfaces. Keeping them as separate
// interfaces stops a read-only bridge from being wired where settlement is
// required.
type ContractBackend interface {
	ContractCaller
	ContractTransactor
}

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	boolType, _    = abi.NewType("bool", "", nil)

	transferArgs     = abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	transferFromArgs = abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: uint256Type}}
	balanceOfArgs    = abi.Arguments{{Type: addressType}}
	boolResult       = abi.Arguments{{Type: boolType}}
	uint256Result    = abi.Arguments{{Type: uint256Type}}

	transferSelector     = selector("transfer(address,uint256)")
	transferFromSelector = selector("transferFrom(address,address,uint256)")
	approveSelector      = selector("approve(address,uint256)")
	balanceOfSelector    = selector("balanceOf(address)")
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func calldata(sel []byte, args abi.Arguments, values ...interface{}) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, sel...), packed...), nil
}

// SafeToken issues token calls through a ContractBackend and normalises the
// heterogeneous return conventions. Balance reads ride the read surface;
// every fund movement rides the transacting surface.
type SafeToken struct {
	backend ContractBackend
}

// NewSafeToken constructs the adapter around the supplied backend.
func NewSafeToken(backend ContractBackend) *SafeToken {
	return &SafeToken{backend: backend}
}

// transact settles the invocation and applies the common success rule: the
// call must succeed and the payload must be empty or decode to true.
func (s *SafeToken) transact(kind error, target common.Address, input []byte) error {
	ret, err := s.backend.Transact(target, input)
	if err != nil {
		return fmt.Errorf("%w: %v", kind, err)
	}
	if len(ret) == 0 {
		return nil
	}
	decoded, err := boolResult.Unpack(ret)
	if err != nil || len(decoded) != 1 {
		return kind
	}
	ok, valid := decoded[0].(bool)
	if !valid || !ok {
		return kind
	}
	return nil
}

// Transfer moves amount from the module to recipient. Fails with
// ErrTransferFailed unless the token accepted the transfer.
func (s *SafeToken) Transfer(token, to common.Address, amount *big.Int) error {
	input, err := calldata(transferSelector, transferArgs, to, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return s.transact(ErrTransferFailed, token, input)
}

// TransferFrom pulls amount from an address that granted the module an
// allowance.
func (s *SafeToken) TransferFrom(token, from, to common.Address, amount *big.Int) error {
	input, err := calldata(transferFromSelector, transferFromArgs, from, to, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return s.transact(ErrTransferFailed, token, input)
}

// Approve sets the module's allowance for spender.
func (s *SafeToken) Approve(token, spender common.Address, amount *big.Int) error {
	input, err := calldata(approveSelector, transferArgs, spender, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApproveFailed, err)
	}
	return s.transact(ErrApproveFailed, token, input)
}

// BalanceOf reads holder's balance. Fails with ErrReadFailed unless the call
// succeeds and returns at least one word.
func (s *SafeToken) BalanceOf(token, holder common.Address) (*big.Int, error) {
	input, err := calldata(balanceOfSelector, balanceOfArgs, holder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	ret, err := s.backend.Call(token, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if len(ret) < 32 {
		return nil, ErrReadFailed
	}
	decoded, err := uint256Result.Unpack(ret)
	if err != nil || len(decoded) != 1 {
		return nil, ErrReadFailed
	}
	balance, valid := decoded[0].(*big.Int)
	if !valid {
		return nil, ErrReadFailed
	}
	return balance, nil
}
