package rewards

import (
	"patronledger/core/events"
	"patronledger/core/types"
)

const (
	// EventTypePoolDeposited is emitted when value is credited to a pool.
	EventTypePoolDeposited = "rewards.pool.deposited"
	// EventTypePoolRetained is emitted when a deposit arrives while the pool
	// holds no weight and the value is retained undistributed.
	EventTypePoolRetained = "rewards.pool.retained"
	// EventTypeClaimed is emitted when a participant claims pending value.
	EventTypeClaimed = "rewards.claimed"
	// EventTypeWeightAdded is emitted when weight joins a pool.
	EventTypeWeightAdded = "rewards.weight.added"
	// EventTypeWeightRemoved is emitted when weight leaves a pool.
	EventTypeWeightRemoved = "rewards.weight.removed"
	// EventTypePendingForfeited is emitted when a leaving participant forfeits
	// unclaimed value back to the pool.
	EventTypePendingForfeited = "rewards.pending.forfeited"
	// EventTypeEpochSettled is emitted when a lazy settlement folds treasury
	// value into the group's pools.
	EventTypeEpochSettled = "rewards.epoch.settled"
	// EventTypeTreasuryFunded is emitted when a new release stream is added.
	EventTypeTreasuryFunded = "rewards.treasury.funded"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// PoolDepositedEvent returns the structured payload for a pool deposit.
func PoolDepositedEvent(poolID, amount, folded, rewardPerShare string) *types.Event {
	return &types.Event{
		Type: EventTypePoolDeposited,
		Attributes: map[string]string{
			"pool":           poolID,
			"amount":         amount,
			"folded":         folded,
			"rewardPerShare": rewardPerShare,
		},
	}
}

// PoolRetainedEvent returns the structured payload for a weightless deposit.
func PoolRetainedEvent(poolID, amount, undistributed string) *types.Event {
	return &types.Event{
		Type: EventTypePoolRetained,
		Attributes: map[string]string{
			"pool":          poolID,
			"amount":        amount,
			"undistributed": undistributed,
		},
	}
}

// ClaimedEvent returns the structured payload for a claim.
func ClaimedEvent(poolID, participant, amount, totalClaimed string) *types.Event {
	return &types.Event{
		Type: EventTypeClaimed,
		Attributes: map[string]string{
			"pool":         poolID,
			"participant":  participant,
			"amount":       amount,
			"totalClaimed": totalClaimed,
		},
	}
}

// WeightAddedEvent returns the structured payload for a weight addition.
func WeightAddedEvent(poolID, participant, delta, totalWeight string) *types.Event {
	return &types.Event{
		Type: EventTypeWeightAdded,
		Attributes: map[string]string{
			"pool":        poolID,
			"participant": participant,
			"delta":       delta,
			"totalWeight": totalWeight,
		},
	}
}

// WeightRemovedEvent returns the structured payload for a weight removal.
func WeightRemovedEvent(poolID, participant, delta, totalWeight string) *types.Event {
	return &types.Event{
		Type: EventTypeWeightRemoved,
		Attributes: map[string]string{
			"pool":        poolID,
			"participant": participant,
			"delta":       delta,
			"totalWeight": totalWeight,
		},
	}
}

// PendingForfeitedEvent returns the structured payload for a forfeiture.
func PendingForfeitedEvent(poolID, participant, amount string) *types.Event {
	return &types.Event{
		Type: EventTypePendingForfeited,
		Attributes: map[string]string{
			"pool":        poolID,
			"participant": participant,
			"amount":      amount,
		},
	}
}

// EpochSettledEvent returns the structured payload for a settlement.
func EpochSettledEvent(groupID, epoch, withdrawn, retained, settledAt string) *types.Event {
	return &types.Event{
		Type: EventTypeEpochSettled,
		Attributes: map[string]string{
			"group":     groupID,
			"epoch":     epoch,
			"withdrawn": withdrawn,
			"retained":  retained,
			"settledAt": settledAt,
		},
	}
}

// TreasuryFundedEvent returns the structured payload for a funding stream.
func TreasuryFundedEvent(groupID, funder, amount, duration string) *types.Event {
	return &types.Event{
		Type: EventTypeTreasuryFunded,
		Attributes: map[string]string{
			"group":    groupID,
			"funder":   funder,
			"amount":   amount,
			"duration": duration,
		},
	}
}
