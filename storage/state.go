package storage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"fvest/native/vesting"
)

var (
	vestingAccountPrefix = []byte("vesting/acct/")
	vestingGlobalKey     = []byte("vesting/global")
)

// storedVestingAccount is the RLP wire form of a vesting record. VestEnd is
// widened to uint64 because RLP has no signed integer encoding.
type storedVestingAccount struct {
	VestedAmount *big.Int
	VestEnd      uint64
	IsVested     bool
}

type storedVestingGlobal struct {
	Paused  bool
	LockBox common.Address
}

// State adapts a Database to the persistence surface the vesting engine
// expects. Records are RLP encoded under module-scoped key prefixes.
type State struct {
	db Database
}

// NewState wraps the supplied database.
func NewState(db Database) *State {
	return &State{db: db}
}

func vestingAccountKey(addr common.Address) []byte {
	return append(append([]byte(nil), vestingAccountPrefix...), addr.Bytes()...)
}

// VestingAccountGet loads the vesting record for addr.
func (s *State) VestingAccountGet(addr common.Address) (*vesting.Account, bool, error) {
	raw, err := s.db.Get(vestingAccountKey(addr))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedVestingAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("storage: decode vesting account: %w", err)
	}
	account := &vesting.Account{
		VestedAmount: stored.VestedAmount,
		VestEnd:      int64(stored.VestEnd),
		IsVested:     stored.IsVested,
	}
	if account.VestedAmount == nil {
		account.VestedAmount = big.NewInt(0)
	}
	return account, true, nil
}

// VestingAccountPut stores the vesting record for addr.
func (s *State) VestingAccountPut(addr common.Address, account *vesting.Account) error {
	if account == nil {
		return fmt.Errorf("storage: nil vesting account")
	}
	amount := account.VestedAmount
	if amount == nil {
		amount = big.NewInt(0)
	}
	raw, err := rlp.EncodeToBytes(&storedVestingAccount{
		VestedAmount: amount,
		VestEnd:      uint64(account.VestEnd),
		IsVested:     account.IsVested,
	})
	if err != nil {
		return fmt.Errorf("storage: encode vesting account: %w", err)
	}
	return s.db.Put(vestingAccountKey(addr), raw)
}

// VestingGlobalGet loads the module-wide flags.
func (s *State) VestingGlobalGet() (*vesting.Global, bool, error) {
	raw, err := s.db.Get(vestingGlobalKey)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedVestingGlobal
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("storage: decode vesting global: %w", err)
	}
	return &vesting.Global{Paused: stored.Paused, LockBox: stored.LockBox}, true, nil
}

// VestingGlobalPut stores the module-wide flags.
func (s *State) VestingGlobalPut(global *vesting.Global) error {
	if global == nil {
		return fmt.Errorf("storage: nil vesting global")
	}
	raw, err := rlp.EncodeToBytes(&storedVestingGlobal{
		Paused:  global.Paused,
		LockBox: global.LockBox,
	})
	if err != nil {
		return fmt.Errorf("storage: encode vesting global: %w", err)
	}
	return s.db.Put(vestingGlobalKey, raw)
}

// Update runs fn against an overlay of the backing database and commits the
// buffered writes only when fn succeeds. A failing fn leaves the database
// untouched, giving mutating engine operations transactional semantics.
func (s *State) Update(fn func(*State) error) error {
	overlay := newOverlay(s.db)
	if err := fn(NewState(overlay)); err != nil {
		return err
	}
	return overlay.commit()
}

// overlayDB buffers writes on top of a base database until commit.
type overlayDB struct {
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newOverlay(base Database) *overlayDB {
	return &overlayDB{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *overlayDB) Get(key []byte) ([]byte, error) {
	if value, ok := o.writes[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := o.deletes[string(key)]; ok {
		return nil, ErrNotFound
	}
	return o.base.Get(key)
}

func (o *overlayDB) Put(key []byte, value []byte) error {
	delete(o.deletes, string(key))
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (o *overlayDB) Delete(key []byte) error {
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

func (o *overlayDB) Close() error { return nil }

func (o *overlayDB) commit() error {
	for key := range o.deletes {
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	for key, value := range o.writes {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	return nil
}
