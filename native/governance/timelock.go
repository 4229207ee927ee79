// Package governance carries the protocol's time-locked admin controller. It
// is thin glue: operations queue behind a minimum delay, role sets gate who
// may queue and execute, and a single reserve-sweeping call lets the admin
// move protocol reserves through the defensive token adapter.
package governance

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"fvest/core/events"
	"fvest/native/token"
)

var (
	ErrNotProposer    = errors.New("governance: caller lacks the proposer role")
	ErrNotExecutor    = errors.New("governance: caller lacks the executor role")
	ErrNotAdmin       = errors.New("governance: caller lacks the admin role")
	ErrNotQueued      = errors.New("governance: operation not queued")
	ErrAlreadyQueued  = errors.New("governance: operation already queued")
	ErrTimelockActive = errors.New("governance: timelock delay not elapsed")
	ErrNilBackend     = errors.New("governance: contract backend not configured")
	ErrInvalidAmount  = errors.New("governance: amount must be positive")
)

const (
	// EventTypeOperationQueued marks an operation entering the timelock.
	EventTypeOperationQueued = "governance.queued"
	// EventTypeOperationExecuted marks a matured operation being applied.
	EventTypeOperationExecuted = "governance.executed"
	// EventTypeReservesSwept marks an admin reserve sweep.
	EventTypeReservesSwept = "governance.reservesSwept"
)

// Operation is a deferred contract invocation.
type Operation struct {
	Target common.Address
	Data   []byte
	Salt   [32]byte
}

// Hash derives the queue key for the operation.
func (op Operation) Hash() common.Hash {
	buf := make([]byte, 0, len(op.Target)+len(op.Data)+len(op.Salt)+8)
	buf = append(buf, op.Target.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(op.Data)))
	buf = append(buf, op.Data...)
	buf = append(buf, op.Salt[:]...)
	return common.BytesToHash(crypto.Keccak256(buf))
}

// TimelockController queues privileged operations behind a minimum delay.
type TimelockController struct {
	mu sync.Mutex

	minDelay  time.Duration
	proposers map[common.Address]struct{}
	executors map[common.Address]struct{}
	admin     common.Address

	backend token.ContractBackend
	tokens  *token.SafeToken
	emitter events.Emitter
	nowFn   func() int64

	queued map[common.Hash]int64
}

// NewTimelockController builds a controller with the given delay, role
// members and admin.
func NewTimelockController(minDelay time.Duration, proposers, executors []common.Address, admin common.Address) *TimelockController {
	tc := &TimelockController{
		minDelay:  minDelay,
		proposers: make(map[common.Address]struct{}, len(proposers)),
		executors: make(map[common.Address]struct{}, len(executors)),
		admin:     admin,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		queued:    make(map[common.Hash]int64),
	}
	for _, p := range proposers {
		tc.proposers[p] = struct{}{}
	}
	for _, x := range executors {
		tc.executors[x] = struct{}{}
	}
	return tc
}

// SetBackend wires the contract backend whose transacting surface executes
// matured operations and settles reserve sweeps.
func (tc *TimelockController) SetBackend(backend token.ContractBackend) {
	tc.backend = backend
	tc.tokens = token.NewSafeToken(backend)
}

// SetEmitter configures event emission. Nil restores the no-op emitter.
func (tc *TimelockController) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		tc.emitter = events.NoopEmitter{}
		return
	}
	tc.emitter = emitter
}

// SetNowFunc overrides the clock for deterministic testing.
func (tc *TimelockController) SetNowFunc(now func() int64) {
	if now == nil {
		tc.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	tc.nowFn = now
}

// Queue schedules an operation. Only proposers may queue; re-queueing a
// pending operation is rejected.
func (tc *TimelockController) Queue(caller common.Address, op Operation) (common.Hash, int64, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, ok := tc.proposers[caller]; !ok {
		return common.Hash{}, 0, ErrNotProposer
	}
	id := op.Hash()
	if _, ok := tc.queued[id]; ok {
		return common.Hash{}, 0, ErrAlreadyQueued
	}
	eta := tc.nowFn() + int64(tc.minDelay/time.Second)
	tc.queued[id] = eta
	tc.emitter.Emit(events.Event{
		Type: EventTypeOperationQueued,
		Attributes: map[string]string{
			"id":     id.Hex(),
			"target": op.Target.Hex(),
			"eta":    strconv.FormatInt(eta, 10),
		},
	})
	return id, eta, nil
}

// Execute applies a queued operation once its delay elapsed. Only executors
// may call.
func (tc *TimelockController) Execute(caller common.Address, op Operation) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, ok := tc.executors[caller]; !ok {
		return ErrNotExecutor
	}
	if tc.backend == nil {
		return ErrNilBackend
	}
	id := op.Hash()
	eta, ok := tc.queued[id]
	if !ok {
		return ErrNotQueued
	}
	if tc.nowFn() < eta {
		return ErrTimelockActive
	}
	if _, err := tc.backend.Transact(op.Target, op.Data); err != nil {
		return err
	}
	delete(tc.queued, id)
	tc.emitter.Emit(events.Event{
		Type: EventTypeOperationExecuted,
		Attributes: map[string]string{
			"id":     id.Hex(),
			"target": op.Target.Hex(),
		},
	})
	return nil
}

// SweepReserves transfers accumulated protocol reserves. Admin only; the
// transfer rides the defensive token adapter so non-standard tokens fail
// loudly rather than silently.
func (tc *TimelockController) SweepReserves(caller, tokenAddr, to common.Address, amount *big.Int) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if caller != tc.admin {
		return ErrNotAdmin
	}
	if tc.tokens == nil {
		return ErrNilBackend
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := tc.tokens.Transfer(tokenAddr, to, amount); err != nil {
		return err
	}
	tc.emitter.Emit(events.Event{
		Type: EventTypeReservesSwept,
		Attributes: map[string]string{
			"token":  tokenAddr.Hex(),
			"to":     to.Hex(),
			"amount": amount.String(),
		},
	})
	return nil
}

// Pending reports the ETA for a queued operation.
func (tc *TimelockController) Pending(id common.Hash) (int64, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	eta, ok := tc.queued[id]
	return eta, ok
}
