package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrNoSigner   = errors.New("token: no signing key configured")
	ErrTxReverted = errors.New("token: transaction reverted")
)

const (
	callTimeout = 10 * time.Second
	mineTimeout = 2 * time.Minute
)

// NodeBackend bridges ContractBackend to an EVM node over RPC. Reads execute
// as eth_call from the module address against the latest block. Writes are
// simulated first, then signed, submitted and awaited until a successful
// receipt: a nil error from Transact means the state change settled on chain.
type NodeBackend struct {
	client *ethclient.Client
	from   common.Address

	key     *ecdsa.PrivateKey
	chainID *big.Int

	mu sync.Mutex // serializes nonce assignment
}

// NewNodeBackend wraps an ethclient connection. from is the address the
// module transacts as. The backend is read-only until EnableTransactions
// arms the write path.
func NewNodeBackend(client *ethclient.Client, from common.Address) *NodeBackend {
	return &NodeBackend{client: client, from: from}
}

// EnableTransactions arms the write path with the module's signing key. The
// key must control the from address.
func (b *NodeBackend) EnableTransactions(key *ecdsa.PrivateKey, chainID *big.Int) error {
	if key == nil || chainID == nil {
		return ErrNoSigner
	}
	if crypto.PubkeyToAddress(key.PublicKey) != b.from {
		return fmt.Errorf("token: signing key does not control %s", b.from.Hex())
	}
	b.key = key
	b.chainID = chainID
	return nil
}

// Call implements ContractCaller.
func (b *NodeBackend) Call(target common.Address, input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return b.client.CallContract(ctx, b.msg(target, input), nil)
}

// Transact implements ContractTransactor. The invocation is simulated first
// so reverts and falsy returns surface before gas is spent; the simulated
// payload is returned once the submitted transaction mines successfully.
func (b *NodeBackend) Transact(target common.Address, input []byte) ([]byte, error) {
	if b.key == nil {
		return nil, ErrNoSigner
	}
	ctx, cancel := context.WithTimeout(context.Background(), mineTimeout)
	defer cancel()

	msg := b.msg(target, input)
	ret, err := b.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasLimit, err := b.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &target,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return nil, err
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	receipt, err := bind.WaitMined(ctx, b.client, signed)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ErrTxReverted
	}
	return ret, nil
}

func (b *NodeBackend) msg(target common.Address, input []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: b.from, To: &target, Data: input}
}
