// Package combat decides whether a fire event hits and applies the damage.
// Hit determination against geometry is the collision collaborator's business
// and is injected as a TargetResolver.
package combat

import (
	"math"

	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/match"
	"go.uber.org/zap"
)

// TargetResolver determines the target hit by the shooter's fire event, if
// any. It is supplied by the collision collaborator and receives the shooter
// and a snapshot of the match state. At most one target is hit per fire
// event.
type TargetResolver func(shooter match.Player, state match.Snapshot) (match.PlayerID, bool)

// Store are the match state dependencies needed by the Resolver.
type Store interface {
	Player(playerID match.PlayerID) (match.Player, error)
	Fire(playerID match.PlayerID) error
	ApplyDamage(playerID match.PlayerID, amount int) error
	Snapshot() match.Snapshot
}

// Resolver resolves fire events against the match state.
type Resolver struct {
	logger  *zap.Logger
	store   Store
	resolve TargetResolver
}

// NewResolver creates a Resolver using the given TargetResolver.
func NewResolver(logger *zap.Logger, store Store, resolve TargetResolver) *Resolver {
	return &Resolver{
		logger:  logger,
		store:   store,
		resolve: resolve,
	}
}

// ResolveFire discharges the shooter's weapon and applies its damage to the
// resolved target, if any. A hit is only valid against a living player on the
// opposing team; friendly fire never applies damage. Damage equals the
// weapon's flat damage value.
func (r *Resolver) ResolveFire(shooterID match.PlayerID) error {
	shooter, err := r.store.Player(shooterID)
	if err != nil {
		return errors.Wrap(err, "lookup shooter", nil)
	}
	if err := r.store.Fire(shooterID); err != nil {
		return errors.Wrap(err, "fire", nil)
	}
	state := r.store.Snapshot()
	targetID, hit := r.resolve(shooter, state)
	if !hit {
		return nil
	}
	target, ok := state.Players[targetID]
	if !ok {
		// The resolver works on the same snapshot, so this is a contract violation.
		return errors.NewInternalError("target resolver returned unknown player",
			errors.Details{"target_id": targetID})
	}
	if target.Team == shooter.Team {
		// Friendly fire never applies damage.
		r.logger.Debug("ignoring friendly fire",
			zap.String("shooter_id", string(shooterID)),
			zap.String("target_id", string(targetID)))
		return nil
	}
	if !target.IsAlive {
		return nil
	}
	if err := r.store.ApplyDamage(targetID, shooter.Weapon.Damage); err != nil {
		return errors.Wrap(err, "apply damage", errors.Details{"target_id": targetID})
	}
	return nil
}

// NearestOpponentResolver returns a TargetResolver that hits the nearest
// living opponent within maxRange. It stands in until geometry-based hit
// detection from the collision collaborator is available.
func NearestOpponentResolver(maxRange float64) TargetResolver {
	return func(shooter match.Player, state match.Snapshot) (match.PlayerID, bool) {
		var nearestID match.PlayerID
		nearestDistance := maxRange
		hit := false
		for _, opponent := range OpponentsOf(shooter, state) {
			d := distance(shooter.Position, opponent.Position)
			if d <= nearestDistance {
				nearestID = opponent.ID
				nearestDistance = d
				hit = true
			}
		}
		return nearestID, hit
	}
}

// distance returns the euclidean distance between the given positions.
func distance(a match.Vector3, b match.Vector3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// OpponentsOf returns the living players on the opposing team of the shooter,
// a convenience for TargetResolver implementations.
func OpponentsOf(shooter match.Player, state match.Snapshot) []match.Player {
	opponents := make([]match.Player, 0)
	for _, player := range state.Players {
		if player.Team != shooter.Team && player.IsAlive {
			opponents = append(opponents, player)
		}
	}
	return opponents
}
