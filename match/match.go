// Package match owns the authoritative match state: the players with their
// per-player weapon and ability instances, the spike and round state machine,
// clocks and scores. All mutation is funneled through the Store.
package match

import (
	"github.com/lefinal/spikematch/catalog"
)

// PlayerID identifies a Player for the lifetime of the process.
type PlayerID string

// Team is the side a Player plays on.
type Team string

const (
	// TeamAttackers attack and plant the spike.
	TeamAttackers Team = "attackers"
	// TeamDefenders defend and defuse the spike.
	TeamDefenders Team = "defenders"
)

// Opponent returns the opposing team.
func (team Team) Opponent() Team {
	if team == TeamAttackers {
		return TeamDefenders
	}
	return TeamAttackers
}

// Valid returns whether the team is a known one.
func (team Team) Valid() bool {
	return team == TeamAttackers || team == TeamDefenders
}

// MatchStatus is the lifecycle state of the match.
type MatchStatus string

const (
	// MatchStatusWaiting is used until the first player joins.
	MatchStatusWaiting MatchStatus = "waiting"
	// MatchStatusInProgress is used while rounds are being played.
	MatchStatusInProgress MatchStatus = "inProgress"
	// MatchStatusFinished is used when a team has won the match.
	MatchStatusFinished MatchStatus = "finished"
)

// SpikeStatus is the state of the objective device. Transitions only along
// notPlanted -> planted -> {defused, exploded}. A round reset returns it to
// notPlanted.
type SpikeStatus string

const (
	// SpikeStatusNotPlanted means the spike has not been planted this round.
	SpikeStatusNotPlanted SpikeStatus = "notPlanted"
	// SpikeStatusPlanted means the spike is ticking.
	SpikeStatusPlanted SpikeStatus = "planted"
	// SpikeStatusDefused means the defenders defused the spike.
	SpikeStatusDefused SpikeStatus = "defused"
	// SpikeStatusExploded means the spike exploded.
	SpikeStatusExploded SpikeStatus = "exploded"
)

// Vector3 is a position or rotation in the arena.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// maxHealth is the health every player spawns and respawns with.
const maxHealth = 100

// Ability is the per-player mutable instance of a catalog.AbilityTemplate.
type Ability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// CooldownSeconds is the cooldown that is applied on activation.
	CooldownSeconds float64 `json:"cooldown"`
	// IsReady describes whether the ability can be activated.
	IsReady bool `json:"isReady"`
}

// Character is the per-player mutable instance of a
// catalog.CharacterTemplate. Ability readiness is per-player.
type Character struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Abilities []Ability `json:"abilities"`
}

// Weapon is the per-player mutable instance of a catalog.WeaponTemplate.
// Ammo and reload state are per-player.
type Weapon struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Damage int    `json:"damage"`
	// FireRateSeconds is the weapon's catalog fire rate. It is informational
	// for clients, shots are only limited by ammo and reload state.
	FireRateSeconds float64 `json:"fireRate"`
	Magazine        int     `json:"magazine"`
	ReloadSeconds   float64 `json:"reloadTime"`
	// CurrentAmmo is always within [0, Magazine].
	CurrentAmmo int `json:"currentAmmo"`
	// IsReloading describes whether a reload is in progress. No fire is accepted
	// while reloading.
	IsReloading bool `json:"isReloading"`
}

// Player is a participant of the match with their live combat state.
type Player struct {
	ID        PlayerID  `json:"id"`
	Username  string    `json:"username"`
	Team      Team      `json:"team"`
	Position  Vector3   `json:"position"`
	Rotation  Vector3   `json:"rotation"`
	Health    int       `json:"health"`
	IsAlive   bool      `json:"isAlive"`
	Character Character `json:"character"`
	Weapon    Weapon    `json:"weapon"`
}

// Copy returns a deep copy of the player.
func (p Player) Copy() Player {
	copied := p
	copied.Character.Abilities = make([]Ability, len(p.Character.Abilities))
	copy(copied.Character.Abilities, p.Character.Abilities)
	return copied
}

// Snapshot is a read-only deep copy of the match state, safe for concurrent
// readers like rendering and HUD.
type Snapshot struct {
	Players map[PlayerID]Player `json:"players"`
	// MatchTime is the elapsed match time in seconds.
	MatchTime int `json:"matchTime"`
	// RoundTime is the remaining round time in seconds.
	RoundTime      int         `json:"roundTime"`
	RoundNumber    int         `json:"roundNumber"`
	MatchStatus    MatchStatus `json:"matchStatus"`
	SpikeStatus    SpikeStatus `json:"spikeStatus"`
	AttackersScore int         `json:"attackersScore"`
	DefendersScore int         `json:"defendersScore"`
}

// Copy returns a deep copy of the snapshot.
func (s Snapshot) Copy() Snapshot {
	copied := s
	copied.Players = make(map[PlayerID]Player, len(s.Players))
	for id, player := range s.Players {
		copied.Players[id] = player.Copy()
	}
	return copied
}

// newCharacter instantiates a per-player character from the given template.
func newCharacter(template catalog.CharacterTemplate) Character {
	abilities := make([]Ability, 0, len(template.Abilities))
	for _, abilityTemplate := range template.Abilities {
		abilities = append(abilities, Ability{
			ID:              abilityTemplate.ID,
			Name:            abilityTemplate.Name,
			Description:     abilityTemplate.Description,
			CooldownSeconds: abilityTemplate.CooldownSeconds,
			IsReady:         true,
		})
	}
	return Character{
		ID:        template.ID,
		Name:      template.Name,
		Abilities: abilities,
	}
}

// newWeapon instantiates a per-player weapon from the given template with a
// full magazine.
func newWeapon(template catalog.WeaponTemplate) Weapon {
	return Weapon{
		ID:              template.ID,
		Name:            template.Name,
		Damage:          template.Damage,
		FireRateSeconds: template.FireRateSeconds,
		Magazine:        template.Magazine,
		ReloadSeconds:   template.ReloadSeconds,
		CurrentAmmo:     template.Magazine,
		IsReloading:     false,
	}
}

// spawnPosition returns the spawn position for the given team. Attackers and
// defenders spawn on opposite sides of the arena. Position legality inside
// the arena is the physics collaborator's business, not ours.
func spawnPosition(team Team) Vector3 {
	if team == TeamAttackers {
		return Vector3{X: -20, Y: 1.7, Z: 0}
	}
	return Vector3{X: 20, Y: 1.7, Z: 0}
}
