package gamesync

import (
	"sync"

	"github.com/lefinal/spikematch/match"
	"github.com/lefinal/spikematch/messages"
)

// replica is the client's view of the match state. It starts from the welcome
// snapshot and applies server messages in arrival order. It never validates:
// the server already did, the replica only follows.
type replica struct {
	m     sync.Mutex
	state match.Snapshot
}

func newReplica() *replica {
	return &replica{
		state: match.Snapshot{Players: make(map[match.PlayerID]match.Player)},
	}
}

// setState replaces the full state with the given authoritative snapshot.
func (r *replica) setState(state match.Snapshot) {
	r.m.Lock()
	defer r.m.Unlock()
	r.state = state.Copy()
}

// snapshot returns a deep copy of the current state.
func (r *replica) snapshot() match.Snapshot {
	r.m.Lock()
	defer r.m.Unlock()
	return r.state.Copy()
}

// updatePlayer applies fn to the player with the given id if present.
func (r *replica) updatePlayer(playerID match.PlayerID, fn func(player *match.Player)) {
	r.m.Lock()
	defer r.m.Unlock()
	player, ok := r.state.Players[playerID]
	if !ok {
		return
	}
	fn(&player)
	r.state.Players[playerID] = player
}

// addPlayer inserts or replaces the given player.
func (r *replica) addPlayer(player match.Player) {
	r.m.Lock()
	defer r.m.Unlock()
	r.state.Players[player.ID] = player.Copy()
}

// removePlayer removes the player with the given id.
func (r *replica) removePlayer(playerID match.PlayerID) {
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.state.Players, playerID)
}

// setSpikeStatus sets the spike status.
func (r *replica) setSpikeStatus(status match.SpikeStatus) {
	r.m.Lock()
	defer r.m.Unlock()
	r.state.SpikeStatus = status
}

// applyDamage mirrors the server's damage rules: clamp to zero, kill at zero,
// ignore damage to the dead.
func (r *replica) applyDamage(playerID match.PlayerID, amount int) {
	r.updatePlayer(playerID, func(player *match.Player) {
		if !player.IsAlive || amount <= 0 {
			return
		}
		player.Health -= amount
		if player.Health <= 0 {
			player.Health = 0
			player.IsAlive = false
		}
	})
}

// applyRoundReset restores round-scoped state after the server announced a new
// round.
func (r *replica) applyRoundReset(reset messages.MessageRoundReset) {
	r.m.Lock()
	defer r.m.Unlock()
	switch reset.WinningTeam {
	case match.TeamAttackers:
		r.state.AttackersScore++
	case match.TeamDefenders:
		r.state.DefendersScore++
	}
	r.state.RoundNumber = reset.RoundNumber
	r.state.RoundTime = reset.RoundTime
	r.state.SpikeStatus = match.SpikeStatusNotPlanted
	for id, player := range r.state.Players {
		player.Health = 100
		player.IsAlive = true
		player.Weapon.CurrentAmmo = player.Weapon.Magazine
		player.Weapon.IsReloading = false
		for i := range player.Character.Abilities {
			player.Character.Abilities[i].IsReady = true
		}
		r.state.Players[id] = player
	}
}

// applyMatchFinished records the final result. The winning team's last round
// is scored here because no further round reset follows.
func (r *replica) applyMatchFinished(winner match.Team) {
	r.m.Lock()
	defer r.m.Unlock()
	switch winner {
	case match.TeamAttackers:
		r.state.AttackersScore++
	case match.TeamDefenders:
		r.state.DefendersScore++
	}
	r.state.MatchStatus = match.MatchStatusFinished
}

// setAbilityReady sets the readiness of the given ability of the player.
func (r *replica) setAbilityReady(playerID match.PlayerID, abilityID string, ready bool) {
	r.updatePlayer(playerID, func(player *match.Player) {
		for i := range player.Character.Abilities {
			if player.Character.Abilities[i].ID == abilityID {
				player.Character.Abilities[i].IsReady = ready
				return
			}
		}
	})
}
