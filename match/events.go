package match

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventType is the type of a match Event.
type EventType string

const (
	// EventTypePlayerJoined is emitted when a player joins. Event.Player is set.
	EventTypePlayerJoined EventType = "playerJoined"
	// EventTypePlayerLeft is emitted when a player leaves.
	EventTypePlayerLeft EventType = "playerLeft"
	// EventTypePlayerMoved is emitted on position updates. Event.Position and
	// Event.Rotation are set.
	EventTypePlayerMoved EventType = "playerMoved"
	// EventTypePlayerFired is emitted when a player fires their weapon.
	EventTypePlayerFired EventType = "playerFired"
	// EventTypeWeaponReloaded is emitted when a reload completes.
	EventTypeWeaponReloaded EventType = "weaponReloaded"
	// EventTypeAbilityUsed is emitted on ability activation. Event.AbilityID is
	// set.
	EventTypeAbilityUsed EventType = "abilityUsed"
	// EventTypeAbilityReady is emitted when an ability cooldown expires.
	// Event.AbilityID is set.
	EventTypeAbilityReady EventType = "abilityReady"
	// EventTypePlayerDamaged is emitted on damage application. Event.Amount is
	// the applied (clamped) amount.
	EventTypePlayerDamaged EventType = "playerDamaged"
	// EventTypePlayerDied is emitted once when health reaches zero.
	EventTypePlayerDied EventType = "playerDied"
	// EventTypeSpikePlanted is emitted when the spike is planted.
	EventTypeSpikePlanted EventType = "spikePlanted"
	// EventTypeSpikeDefused is emitted when the spike is defused.
	EventTypeSpikeDefused EventType = "spikeDefused"
	// EventTypeSpikeExploded is emitted when the round clock runs out with the
	// spike planted.
	EventTypeSpikeExploded EventType = "spikeExploded"
	// EventTypeRoundReset is emitted when a new round starts. Event.WinningTeam
	// names the winner of the previous round if there was one and
	// Event.RoundNumber the new round.
	EventTypeRoundReset EventType = "roundReset"
	// EventTypeMatchFinished is emitted when a team wins the match.
	// Event.WinningTeam is set.
	EventTypeMatchFinished EventType = "matchFinished"
)

// Event describes a state change in the Store. Fields besides Type are only
// set where the EventType documents them.
type Event struct {
	Type EventType
	// PlayerID is the affected player for player-scoped events.
	PlayerID PlayerID
	// Player is a deep copy of the affected player where documented.
	Player Player
	// AbilityID is set for ability events.
	AbilityID string
	// Amount is the applied damage for EventTypePlayerDamaged.
	Amount int
	// Position and Rotation are set for EventTypePlayerMoved.
	Position Vector3
	Rotation Vector3
	// WinningTeam is set for round and match results.
	WinningTeam Team
	// RoundNumber and RoundTime are set for EventTypeRoundReset.
	RoundNumber int
	RoundTime   int
}

// subscriberBufferSize is the per-subscriber event buffer. Slow subscribers
// drop events instead of blocking the store.
const subscriberBufferSize = 256

// eventBus fans Store events out to subscribers, following the newsletter
// pattern: a subscription lives until its context is done.
type eventBus struct {
	logger      *zap.Logger
	m           sync.Mutex
	subscribers map[chan Event]struct{}
}

func newEventBus(logger *zap.Logger) *eventBus {
	return &eventBus{
		logger:      logger,
		subscribers: make(map[chan Event]struct{}),
	}
}

// subscribe registers a new subscriber. The returned channel is closed when
// the given context is done.
func (bus *eventBus) subscribe(ctx context.Context) <-chan Event {
	forward := make(chan Event, subscriberBufferSize)
	bus.m.Lock()
	bus.subscribers[forward] = struct{}{}
	bus.m.Unlock()
	go func() {
		<-ctx.Done()
		bus.m.Lock()
		delete(bus.subscribers, forward)
		bus.m.Unlock()
		close(forward)
	}()
	return forward
}

// publish forwards the given events to all subscribers. Events for a
// subscriber whose buffer is full are dropped.
func (bus *eventBus) publish(events ...Event) {
	bus.m.Lock()
	defer bus.m.Unlock()
	for _, e := range events {
		for forward := range bus.subscribers {
			select {
			case forward <- e:
			default:
				bus.logger.Warn("dropping event for slow subscriber",
					zap.String("event_type", string(e.Type)))
			}
		}
	}
}
