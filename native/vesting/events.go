package vesting

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"fvest/core/events"
)

const (
	// EventTypeCredited is emitted when the issuer credits a vesting position.
	EventTypeCredited = "vesting.credited"
	// EventTypeClaimed is emitted on a voluntary or forced full payout.
	EventTypeClaimed = "vesting.claimed"
	// EventTypeEarlyExited is emitted when part of a position converts to a
	// liquidity-token vest.
	EventTypeEarlyExited = "vesting.earlyExited"
	// EventTypePauseChanged is emitted when the early-exit pause flips.
	EventTypePauseChanged = "vesting.pauseChanged"
	// EventTypeLockBoxBound is emitted when the one-time lockbox binding lands.
	EventTypeLockBoxBound = "vesting.lockBoxBound"
	// EventTypeApprovalsRefreshed is emitted after an approval reset pass.
	EventTypeApprovalsRefreshed = "vesting.approvalsRefreshed"
	// EventTypeTokensRecovered is emitted when the admin sweeps a stray token.
	EventTypeTokensRecovered = "vesting.tokensRecovered"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newCreditedEvent(user common.Address, amount *big.Int, vestEnd int64) events.Event {
	return events.Event{
		Type: EventTypeCredited,
		Attributes: map[string]string{
			"user":    user.Hex(),
			"amount":  formatAmount(amount),
			"vestEnd": strconv.FormatInt(vestEnd, 10),
		},
	}
}

func newClaimedEvent(user common.Address, amount *big.Int, forced bool) events.Event {
	return events.Event{
		Type: EventTypeClaimed,
		Attributes: map[string]string{
			"user":   user.Hex(),
			"amount": formatAmount(amount),
			"forced": strconv.FormatBool(forced),
		},
	}
}

func newEarlyExitedEvent(user common.Address, rewardUsed, pairedUsed, liquidityMinted *big.Int) events.Event {
	return events.Event{
		Type: EventTypeEarlyExited,
		Attributes: map[string]string{
			"user":            user.Hex(),
			"rewardUsed":      formatAmount(rewardUsed),
			"pairedUsed":      formatAmount(pairedUsed),
			"liquidityMinted": formatAmount(liquidityMinted),
		},
	}
}

func newPauseChangedEvent(paused bool) events.Event {
	return events.Event{
		Type: EventTypePauseChanged,
		Attributes: map[string]string{
			"paused": strconv.FormatBool(paused),
		},
	}
}

func newLockBoxBoundEvent(lockBox common.Address) events.Event {
	return events.Event{
		Type: EventTypeLockBoxBound,
		Attributes: map[string]string{
			"lockBox": lockBox.Hex(),
		},
	}
}

func newApprovalsRefreshedEvent(lockBoxBound bool) events.Event {
	return events.Event{
		Type: EventTypeApprovalsRefreshed,
		Attributes: map[string]string{
			"lockBoxBound": strconv.FormatBool(lockBoxBound),
		},
	}
}

func newTokensRecoveredEvent(token, to common.Address, amount *big.Int) events.Event {
	return events.Event{
		Type: EventTypeTokensRecovered,
		Attributes: map[string]string{
			"token":  token.Hex(),
			"to":     to.Hex(),
			"amount": formatAmount(amount),
		},
	}
}
