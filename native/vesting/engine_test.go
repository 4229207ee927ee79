package vesting

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"fvest/core/events"
)

var (
	rewardToken    = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	pairedToken    = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	liquidityToken = common.HexToAddress("0x0000000000000000000000000000000000000A03")
	vaultAddr      = common.HexToAddress("0x0000000000000000000000000000000000000A04")
	issuerAddr     = common.HexToAddress("0x0000000000000000000000000000000000000B01")
	ownerAddr      = common.HexToAddress("0x0000000000000000000000000000000000000B02")
	moduleAddr     = common.HexToAddress("0x0000000000000000000000000000000000000B03")
	lockBoxAddr    = common.HexToAddress("0x0000000000000000000000000000000000000B04")
	userAddr       = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	strangerAddr   = common.HexToAddress("0x0000000000000000000000000000000000000C02")
)

type mockState struct {
	accounts map[common.Address]*Account
	global   *Global
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[common.Address]*Account)}
}

func (m *mockState) VestingAccountGet(addr common.Address) (*Account, bool, error) {
	account, ok := m.accounts[addr]
	if !ok {
		return nil, false, nil
	}
	return account.Clone(), true, nil
}

func (m *mockState) VestingAccountPut(addr common.Address, account *Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func (m *mockState) VestingGlobalGet() (*Global, bool, error) {
	if m.global == nil {
		return nil, false, nil
	}
	return m.global.Clone(), true, nil
}

func (m *mockState) VestingGlobalPut(global *Global) error {
	m.global = global.Clone()
	return nil
}

type tokenCall struct {
	op      string
	token   common.Address
	from    common.Address
	to      common.Address
	amount  *big.Int
	spender common.Address
}

type mockTokens struct {
	balances map[common.Address]map[common.Address]*big.Int
	calls    []tokenCall
	failOp   string
}

func newMockTokens() *mockTokens {
	return &mockTokens{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (m *mockTokens) setBalance(token, holder common.Address, amount *big.Int) {
	if m.balances[token] == nil {
		m.balances[token] = make(map[common.Address]*big.Int)
	}
	m.balances[token][holder] = new(big.Int).Set(amount)
}

func (m *mockTokens) balance(token, holder common.Address) *big.Int {
	if m.balances[token] == nil || m.balances[token][holder] == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(m.balances[token][holder])
}

func (m *mockTokens) Transfer(token, to common.Address, amount *big.Int) error {
	if m.failOp == "transfer" {
		return errors.New("transfer rejected")
	}
	m.calls = append(m.calls, tokenCall{op: "transfer", token: token, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *mockTokens) TransferFrom(token, from, to common.Address, amount *big.Int) error {
	if m.failOp == "transferFrom" {
		return errors.New("transferFrom rejected")
	}
	m.calls = append(m.calls, tokenCall{op: "transferFrom", token: token, from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *mockTokens) Approve(token, spender common.Address, amount *big.Int) error {
	if m.failOp == "approve" {
		return errors.New("approve rejected")
	}
	m.calls = append(m.calls, tokenCall{op: "approve", token: token, spender: spender, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *mockTokens) BalanceOf(token, holder common.Address) (*big.Int, error) {
	if m.failOp == "balanceOf" {
		return nil, errors.New("balanceOf rejected")
	}
	return m.balance(token, holder), nil
}

type mockVault struct {
	reserves []*big.Int
	mint     *big.Int
	tokens   *mockTokens
	joins    int
}

func (v *mockVault) GetPoolTokens(poolID [32]byte) ([]common.Address, []*big.Int, uint64, error) {
	assets := []common.Address{rewardToken, pairedToken}
	balances := make([]*big.Int, len(v.reserves))
	for i, r := range v.reserves {
		balances[i] = new(big.Int).Set(r)
	}
	return assets, balances, 0, nil
}

func (v *mockVault) JoinPool(poolID [32]byte, sender, recipient common.Address, request JoinPoolRequest) error {
	v.joins++
	current := v.tokens.balance(liquidityToken, recipient)
	v.tokens.setBalance(liquidityToken, recipient, new(big.Int).Add(current, v.mint))
	return nil
}

type mockLockBox struct {
	user   common.Address
	amount *big.Int
	calls  int
}

func (l *mockLockBox) CreateVest(user common.Address, amount *big.Int) error {
	l.calls++
	l.user = user
	l.amount = new(big.Int).Set(amount)
	return nil
}

type testEnv struct {
	engine  *Engine
	state   *mockState
	tokens  *mockTokens
	vault   *mockVault
	lockBox *mockLockBox
	emitter *events.CollectEmitter
	now     int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:   newMockState(),
		tokens:  newMockTokens(),
		lockBox: &mockLockBox{},
		emitter: &events.CollectEmitter{},
		now:     1_700_000_000,
	}
	env.vault = &mockVault{
		reserves: []*big.Int{big.NewInt(500), big.NewInt(100)},
		mint:     big.NewInt(50),
		tokens:   env.tokens,
	}
	env.engine = NewEngine(Config{
		RewardToken:    rewardToken,
		PairedToken:    pairedToken,
		LiquidityToken: liquidityToken,
		VaultAddress:   vaultAddr,
		Issuer:         issuerAddr,
		Owner:          ownerAddr,
		Module:         moduleAddr,
	})
	env.engine.SetState(env.state)
	env.engine.SetTokens(env.tokens)
	env.engine.SetVault(env.vault)
	env.engine.SetLockBoxDialer(func(common.Address) LockBox { return env.lockBox })
	env.engine.SetEmitter(env.emitter)
	env.engine.SetNowFunc(func() int64 { return env.now })
	return env
}

func (env *testEnv) bindLockBox(t *testing.T) {
	t.Helper()
	if err := env.engine.BindLockBox(ownerAddr, lockBoxAddr); err != nil {
		t.Fatalf("bind lockbox: %v", err)
	}
}

func (env *testEnv) account(t *testing.T, addr common.Address) *Account {
	t.Helper()
	account, err := env.engine.Account(addr)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	return account
}

func TestCreditRequiresIssuer(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Credit(strangerAddr, userAddr, big.NewInt(100)); !errors.Is(err, ErrNotIssuer) {
		t.Fatalf("expected ErrNotIssuer, got %v", err)
	}
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestCreditOpensCycleAndAccumulates(t *testing.T) {
	env := newTestEnv(t)
	start := env.now
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(600)); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	account := env.account(t, userAddr)
	if !account.IsVested {
		t.Fatalf("expected open cycle")
	}
	wantEnd := start + VestingPeriodSeconds
	if account.VestEnd != wantEnd {
		t.Fatalf("unexpected vest end: got %d want %d", account.VestEnd, wantEnd)
	}

	// Later credits inside the cycle add up without moving the deadline.
	env.now += 10 * 86400
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(400)); err != nil {
		t.Fatalf("second credit: %v", err)
	}
	account = env.account(t, userAddr)
	if account.VestedAmount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected vested amount: %s", account.VestedAmount)
	}
	if account.VestEnd != wantEnd {
		t.Fatalf("deadline moved: got %d want %d", account.VestEnd, wantEnd)
	}
	if len(env.tokens.calls) != 0 {
		t.Fatalf("unexpected token calls: %+v", env.tokens.calls)
	}
}

func TestCreditAfterExpiryForcesClaim(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	env.now += VestingPeriodSeconds + 1
	newStart := env.now
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(250)); err != nil {
		t.Fatalf("rollover credit: %v", err)
	}

	if len(env.tokens.calls) != 1 {
		t.Fatalf("expected one payout transfer, got %d", len(env.tokens.calls))
	}
	payout := env.tokens.calls[0]
	if payout.op != "transfer" || payout.token != rewardToken || payout.to != userAddr || payout.amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected payout call: %+v", payout)
	}

	account := env.account(t, userAddr)
	if account.VestedAmount.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected new cycle amount: %s", account.VestedAmount)
	}
	if account.VestEnd != newStart+VestingPeriodSeconds {
		t.Fatalf("unexpected new deadline: %d", account.VestEnd)
	}
}

func TestClaimLifecycle(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Claim(userAddr); !errors.Is(err, ErrNothingVested) {
		t.Fatalf("expected ErrNothingVested, got %v", err)
	}
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := env.engine.Claim(userAddr); !errors.Is(err, ErrVestingNotElapsed) {
		t.Fatalf("expected ErrVestingNotElapsed, got %v", err)
	}
	account := env.account(t, userAddr)
	if account.VestedAmount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("rejected claim mutated state: %s", account.VestedAmount)
	}

	env.now += VestingPeriodSeconds + 1
	paid, err := env.engine.Claim(userAddr)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected payout: %s", paid)
	}
	account = env.account(t, userAddr)
	if account.IsVested || account.VestedAmount.Sign() != 0 || account.VestEnd != 0 {
		t.Fatalf("account not reset: %+v", account)
	}
	if _, err := env.engine.Claim(userAddr); !errors.Is(err, ErrNothingVested) {
		t.Fatalf("expected ErrNothingVested after payout, got %v", err)
	}
}

func TestEarlyExitPartialConversion(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	deadline := env.account(t, userAddr).VestEnd

	env.now += 10 * 86400
	receipt, err := env.engine.EarlyExit(userAddr, big.NewInt(20), big.NewInt(1))
	if err != nil {
		t.Fatalf("early exit: %v", err)
	}
	if receipt.Forced {
		t.Fatalf("unexpected forced receipt")
	}
	// reserves [500, 100]: 20 * 500 / 100 = 100 reward units.
	if receipt.RewardUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected reward used: %s", receipt.RewardUsed)
	}
	if receipt.LiquidityMinted.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected liquidity minted: %s", receipt.LiquidityMinted)
	}

	account := env.account(t, userAddr)
	if account.VestedAmount.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("unexpected remaining: %s", account.VestedAmount)
	}
	if account.VestEnd != deadline {
		t.Fatalf("partial exit moved the deadline")
	}

	if env.lockBox.calls != 1 || env.lockBox.user != userAddr || env.lockBox.amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected lockbox vest: %+v", env.lockBox)
	}
	var pulled *tokenCall
	for i := range env.tokens.calls {
		if env.tokens.calls[i].op == "transferFrom" {
			pulled = &env.tokens.calls[i]
		}
	}
	if pulled == nil || pulled.token != pairedToken || pulled.from != userAddr || pulled.to != moduleAddr || pulled.amount.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("unexpected paired pull: %+v", pulled)
	}
}

func TestEarlyExitPreconditions(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)

	if _, err := env.engine.EarlyExit(userAddr, big.NewInt(20), nil); !errors.Is(err, ErrNothingVested) {
		t.Fatalf("expected ErrNothingVested, got %v", err)
	}
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := env.engine.SetPaused(ownerAddr, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.engine.EarlyExit(userAddr, big.NewInt(20), nil); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if err := env.engine.SetPaused(ownerAddr, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := env.engine.EarlyExit(userAddr, big.NewInt(0), nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestEarlyExitExceedsAvailable(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(99)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	// 20 * 500 / 100 = 100 > 99 vested.
	if _, err := env.engine.EarlyExit(userAddr, big.NewInt(20), nil); !errors.Is(err, ErrExceedsAvailable) {
		t.Fatalf("expected ErrExceedsAvailable, got %v", err)
	}
	account := env.account(t, userAddr)
	if account.VestedAmount.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("rejected exit mutated state: %s", account.VestedAmount)
	}
}

func TestEarlyExitSlippageGuard(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	env.vault.mint = big.NewInt(4)
	if _, err := env.engine.EarlyExit(userAddr, big.NewInt(20), big.NewInt(5)); !errors.Is(err, ErrExceedsAvailable) {
		t.Fatalf("expected ErrExceedsAvailable on slippage, got %v", err)
	}
	if env.lockBox.calls != 0 {
		t.Fatalf("lockbox vest despite slippage failure")
	}
}

func TestEarlyExitRejectsZeroMint(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	env.vault.mint = big.NewInt(0)
	if _, err := env.engine.EarlyExit(userAddr, big.NewInt(20), nil); !errors.Is(err, ErrExceedsAvailable) {
		t.Fatalf("expected ErrExceedsAvailable for zero mint, got %v", err)
	}
	if env.lockBox.calls != 0 {
		t.Fatalf("zero-amount vest reached the lockbox")
	}
}

func TestEarlyExitAfterExpiryDegradesToClaim(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	env.now += VestingPeriodSeconds
	receipt, err := env.engine.EarlyExit(userAddr, big.NewInt(20), big.NewInt(10))
	if err != nil {
		t.Fatalf("early exit past expiry: %v", err)
	}
	if !receipt.Forced {
		t.Fatalf("expected forced receipt")
	}
	if receipt.RewardUsed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected forced payout: %s", receipt.RewardUsed)
	}
	if env.vault.joins != 0 || env.lockBox.calls != 0 {
		t.Fatalf("pool path used after expiry")
	}
	account := env.account(t, userAddr)
	if account.IsVested {
		t.Fatalf("account not reset after forced claim")
	}
}

func TestSetPausedIdempotenceRejected(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetPaused(strangerAddr, true); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.SetPaused(ownerAddr, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := env.engine.SetPaused(ownerAddr, true); !errors.Is(err, ErrNoOp) {
		t.Fatalf("expected ErrNoOp, got %v", err)
	}
	paused, err := env.engine.Paused()
	if err != nil || !paused {
		t.Fatalf("pause flag lost: %v %v", paused, err)
	}
}

func TestBindLockBoxOnce(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.BindLockBox(ownerAddr, common.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	env.bindLockBox(t)
	if err := env.engine.BindLockBox(ownerAddr, strangerAddr); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}

	var granted *tokenCall
	for i := range env.tokens.calls {
		if env.tokens.calls[i].op == "approve" {
			granted = &env.tokens.calls[i]
		}
	}
	if granted == nil || granted.token != liquidityToken || granted.spender != lockBoxAddr || granted.amount.Cmp(math.MaxBig256) != 0 {
		t.Fatalf("unexpected lockbox approval: %+v", granted)
	}
}

func TestRefreshApprovalsResetPattern(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)
	env.tokens.calls = nil
	if err := env.engine.RefreshApprovals(ownerAddr); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// reward->vault, paired->vault, liquidity->lockbox: zero then max each.
	if len(env.tokens.calls) != 6 {
		t.Fatalf("unexpected approval count: %d", len(env.tokens.calls))
	}
	wantSpenders := []common.Address{vaultAddr, vaultAddr, vaultAddr, vaultAddr, lockBoxAddr, lockBoxAddr}
	for i, call := range env.tokens.calls {
		if call.op != "approve" || call.spender != wantSpenders[i] {
			t.Fatalf("unexpected approval %d: %+v", i, call)
		}
		wantZero := i%2 == 0
		if wantZero != (call.amount.Sign() == 0) {
			t.Fatalf("approval %d broke the zero-then-max pattern: %s", i, call.amount)
		}
	}
}

func TestRecoverStrayTokensProtectsRewardAsset(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.RecoverStrayTokens(ownerAddr, rewardToken, ownerAddr, big.NewInt(10)); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if err := env.engine.RecoverStrayTokens(strangerAddr, pairedToken, ownerAddr, big.NewInt(10)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.RecoverStrayTokens(ownerAddr, pairedToken, ownerAddr, big.NewInt(10)); err != nil {
		t.Fatalf("recover: %v", err)
	}
	last := env.tokens.calls[len(env.tokens.calls)-1]
	if last.op != "transfer" || last.token != pairedToken || last.to != ownerAddr || last.amount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected recovery transfer: %+v", last)
	}
}

func TestTimeRemaining(t *testing.T) {
	env := newTestEnv(t)
	remaining, err := env.engine.TimeRemaining(userAddr)
	if err != nil || remaining != 0 {
		t.Fatalf("expected zero for empty account, got %d %v", remaining, err)
	}
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	env.now += 86400
	remaining, err = env.engine.TimeRemaining(userAddr)
	if err != nil {
		t.Fatalf("time remaining: %v", err)
	}
	if remaining != VestingPeriodSeconds-86400 {
		t.Fatalf("unexpected remaining: %d", remaining)
	}
	env.now += VestingPeriodSeconds
	remaining, err = env.engine.TimeRemaining(userAddr)
	if err != nil || remaining != 0 {
		t.Fatalf("expected zero past deadline, got %d %v", remaining, err)
	}
}

func TestTotalVestedBalanceReadsModuleHoldings(t *testing.T) {
	env := newTestEnv(t)
	env.tokens.setBalance(rewardToken, moduleAddr, big.NewInt(12345))
	balance, err := env.engine.TotalVestedBalance()
	if err != nil {
		t.Fatalf("total vested: %v", err)
	}
	if balance.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("unexpected balance: %s", balance)
	}
}

func TestEventsEmitted(t *testing.T) {
	env := newTestEnv(t)
	env.bindLockBox(t)
	if err := env.engine.Credit(issuerAddr, userAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := env.engine.EarlyExit(userAddr, big.NewInt(20), nil); err != nil {
		t.Fatalf("early exit: %v", err)
	}
	var types []string
	for _, evt := range env.emitter.Events {
		types = append(types, evt.Type)
	}
	want := []string{EventTypeLockBoxBound, EventTypeCredited, EventTypeEarlyExited}
	if len(types) != len(want) {
		t.Fatalf("unexpected events: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, types[i], want[i])
		}
	}
}
