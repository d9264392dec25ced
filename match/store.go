package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lefinal/spikematch/catalog"
	"github.com/lefinal/spikematch/clock"
	"github.com/lefinal/spikematch/errors"
	"go.uber.org/zap"
)

// Config is the configuration for a Store.
type Config struct {
	// MaxPlayers is the maximum amount of players in the match.
	MaxPlayers int `json:"max_players"`
	// RoundTime is the round duration in seconds.
	RoundTime int `json:"round_time"`
	// MaxRounds is the maximum amount of rounds. The first team past half of it
	// wins the match.
	MaxRounds int `json:"max_rounds"`
}

// Defaults for Config.
const (
	DefaultMaxPlayers = 10
	DefaultRoundTime  = 100
	DefaultMaxRounds  = 13
)

// applyDefaults fills unset fields with defaults.
func (config Config) applyDefaults() Config {
	if config.MaxPlayers <= 0 {
		config.MaxPlayers = DefaultMaxPlayers
	}
	if config.RoundTime <= 0 {
		config.RoundTime = DefaultRoundTime
	}
	if config.MaxRounds <= 0 {
		config.MaxRounds = DefaultMaxRounds
	}
	return config
}

// timerKey identifies a pending scheduled task by player and resource so that
// player removal and resets can cancel it.
type timerKey struct {
	player   PlayerID
	resource string
}

const reloadResource = "reload"

func abilityResource(abilityID string) string {
	return "ability:" + abilityID
}

// Store is the authoritative match state. All mutators validate their
// preconditions first and either apply fully or not at all. Mutation is
// serialized under a single mutex; readers receive deep copies.
type Store struct {
	logger  *zap.Logger
	config  Config
	catalog *catalog.Catalog
	clock   clock.Clock
	bus     *eventBus

	// m serializes all access to the fields below.
	m              sync.Mutex
	players        map[PlayerID]*Player
	matchTime      int
	roundTime      int
	roundNumber    int
	matchStatus    MatchStatus
	spikeStatus    SpikeStatus
	attackersScore int
	defendersScore int
	// timers holds all pending reload and cooldown tasks.
	timers map[timerKey]clock.Timer
	// generation is bumped on every round or match reset. Timer callbacks carry
	// the generation they were armed in and become no-ops when it changed, so a
	// stale reload or cooldown never mutates a reset player record.
	generation uint64
}

// NewStore creates a new Store. Run the round and match clocks with
// Store.Run.
func NewStore(logger *zap.Logger, cat *catalog.Catalog, clk clock.Clock, config Config) *Store {
	config = config.applyDefaults()
	return &Store{
		logger:      logger,
		config:      config,
		catalog:     cat,
		clock:       clk,
		bus:         newEventBus(logger),
		players:     make(map[PlayerID]*Player),
		roundTime:   config.RoundTime,
		roundNumber: 1,
		matchStatus: MatchStatusWaiting,
		spikeStatus: SpikeStatusNotPlanted,
		timers:      make(map[timerKey]clock.Timer),
	}
}

// SubscribeEvents subscribes to all state change events until the given
// context is done.
func (s *Store) SubscribeEvents(ctx context.Context) <-chan Event {
	return s.bus.subscribe(ctx)
}

// Join adds a new player with the given character to the match. The player
// receives the default weapon, full health and a team spawn position. The
// first join moves the match from waiting to inProgress.
func (s *Store) Join(username string, team Team, characterID string) (PlayerID, error) {
	characterTemplate, err := s.catalog.Character(characterID)
	if err != nil {
		return "", errors.Wrap(err, "lookup character", nil)
	}
	weaponTemplate, err := s.catalog.Weapon(catalog.DefaultWeaponID)
	if err != nil {
		return "", errors.Wrap(err, "lookup default weapon", nil)
	}
	if !team.Valid() {
		return "", errors.NewBadRequestError("unknown team", errors.Details{"team": team})
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.matchStatus == MatchStatusFinished {
		return "", errors.NewInvalidTransitionError("match already finished", nil)
	}
	if len(s.players) >= s.config.MaxPlayers {
		return "", errors.NewInvalidTransitionError("match is full",
			errors.Details{"max_players": s.config.MaxPlayers})
	}
	player := &Player{
		ID:        PlayerID(uuid.NewString()),
		Username:  username,
		Team:      team,
		Position:  spawnPosition(team),
		Rotation:  Vector3{},
		Health:    maxHealth,
		IsAlive:   true,
		Character: newCharacter(characterTemplate),
		Weapon:    newWeapon(weaponTemplate),
	}
	s.players[player.ID] = player
	if s.matchStatus == MatchStatusWaiting {
		s.matchStatus = MatchStatusInProgress
	}
	s.logger.Info("player joined",
		zap.String("player_id", string(player.ID)),
		zap.String("username", username),
		zap.String("team", string(team)),
		zap.String("character", characterID))
	s.bus.publish(Event{
		Type:     EventTypePlayerJoined,
		PlayerID: player.ID,
		Player:   player.Copy(),
	})
	return player.ID, nil
}

// Leave removes the player with the given id. Pending reload and cooldown
// tasks for the player are cancelled.
func (s *Store) Leave(playerID PlayerID) error {
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.players[playerID]; !ok {
		return errors.NewNotFoundError("player not found", errors.Details{"player_id": playerID})
	}
	s.cancelTimersForPlayer(playerID)
	delete(s.players, playerID)
	s.logger.Info("player left", zap.String("player_id", string(playerID)))
	s.bus.publish(Event{Type: EventTypePlayerLeft, PlayerID: playerID})
	return nil
}

// UpdatePosition updates the player's transform. Dead players' transforms
// freeze, so updates for them are silently dropped. Position legality is the
// physics collaborator's business.
func (s *Store) UpdatePosition(playerID PlayerID, position Vector3, rotation Vector3) error {
	s.m.Lock()
	defer s.m.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return errors.NewNotFoundError("player not found", errors.Details{"player_id": playerID})
	}
	if !player.IsAlive {
		return nil
	}
	player.Position = position
	player.Rotation = rotation
	s.bus.publish(Event{
		Type:     EventTypePlayerMoved,
		PlayerID: playerID,
		Position: position,
		Rotation: rotation,
	})
	return nil
}

// Fire discharges one round of the player's weapon. It is rejected for
// unknown or dead players, empty magazines and ongoing reloads. Hit
// resolution is a separate step, see package combat.
func (s *Store) Fire(playerID PlayerID) error {
	s.m.Lock()
	defer s.m.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return errors.NewNotFoundError("player not found", errors.Details{"player_id": playerID})
	}
	if !player.IsAlive {
		return errors.NewInvalidTransitionError("dead players cannot fire",
			errors.Details{"player_id": playerID})
	}
	if player.Weapon.IsReloading {
		return errors.NewInvalidTransitionError("cannot fire while reloading",
			errors.Details{"player_id": playerID})
	}
	if player.Weapon.CurrentAmmo <= 0 {
		return errors.NewInvalidTransitionError("magazine empty",
			errors.Details{"player_id": playerID})
	}
	player.Weapon.CurrentAmmo--
	s.bus.publish(Event{Type: EventTypePlayerFired, PlayerID: playerID})
	return nil
}

// Reload starts a reload. It is rejected for unknown or dead players, ongoing
// reloads and full magazines. After the weapon's reload time the magazine is
// refilled and reloading ends, both atomically, unless the player left or a
// reset happened in between.
func (s *Store) Reload(playerID PlayerID) error {
	s.m.Lock()
	defer s.m.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return errors.NewNotFoundError("player not found", errors.Details{"player_id": playerID})
	}
	if !player.IsAlive {
		return errors.NewInvalidTransitionError("dead players cannot reload",
			errors.Details{"player_id": playerID})
	}
	if player.Weapon.IsReloading {
		return errors.NewInvalidTransitionError("already reloading",
			errors.Details{"player_id": playerID})
	}
	if player.Weapon.CurrentAmmo >= player.Weapon.Magazine {
		return errors.NewInvalidTransitionError("magazine already full",
			errors.Details{"player_id": playerID})
	}
	player.Weapon.IsReloading = true
	s.armTimer(playerID, reloadResource, secondsToDuration(player.Weapon.ReloadSeconds), s.completeReload)
	return nil
}

// completeReload is the reload timer callback.
func (s *Store) completeReload(playerID PlayerID, generation uint64) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.generation != generation {
		return
	}
	delete(s.timers, timerKey{player: playerID, resource: reloadResource})
	player, ok := s.players[playerID]
	if !ok {
		return
	}
	player.Weapon.CurrentAmmo = player.Weapon.Magazine
	player.Weapon.IsReloading = false
	s.bus.publish(Event{Type: EventTypeWeaponReloaded, PlayerID: playerID})
}

// UseAbility activates the given ability of the player. It is rejected for
// unknown players or abilities, dead players and abilities on cooldown. The
// ability becomes ready again after its cooldown unless the player left or a
// reset happened in between.
func (s *Store) UseAbility(playerID PlayerID, abilityID string) error {
	s.m.Lock()
	defer s.m.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return errors.NewNotFoundError("player not found", errors.Details{"player_id": playerID})
	}
	if !player.IsAlive {
		return errors.NewInvalidTransitionError("dead players cannot use abilities",
			errors.Details{"player_id": playerID})
	}
	ability := findAbility(player, abilityID)
	if ability == nil {
		return errors.NewNotFoundError("ability not found",
			errors.Details{"player_id": playerID, "ability_id": abilityID})
	}
	if !ability.IsReady {
		return errors.NewInvalidTransitionError("ability on cooldown",
			errors.Details{"player_id": playerID, "ability_id": abilityID})
	}
	ability.IsReady = false
	abilityIDCopy := abilityID
	s.armTimer(playerID, abilityResource(abilityID), secondsToDuration(ability.CooldownSeconds),
		func(playerID PlayerID, generation uint64) {
			s.completeCooldown(playerID, abilityIDCopy, generation)
		})
	s.bus.publish(Event{Type: EventTypeAbilityUsed, PlayerID: playerID, AbilityID: abilityID})
	return nil
}

// completeCooldown is the ability cooldown timer callback.
func (s *Store) completeCooldown(playerID PlayerID, abilityID string, generation uint64) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.generation != generation {
		return
	}
	delete(s.timers, timerKey{player: playerID, resource: abilityResource(abilityID)})
	player, ok := s.players[playerID]
	if !ok {
		return
	}
	ability := findAbility(player, abilityID)
	if ability == nil {
		return
	}
	ability.IsReady = true
	s.bus.publish(Event{Type: EventTypeAbilityReady, PlayerID: playerID, AbilityID: abilityID})
}

// ApplyDamage applies the given damage to the player. Negative amounts are
// clamped to zero and never heal. Health is clamped to [0, 100]; crossing
// zero kills the player. Damage to an already dead player is a no-op.
func (s *Store) ApplyDamage(playerID PlayerID, amount int) error {
	s.m.Lock()
	defer s.m.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return errors.NewNotFoundError("player not found", errors.Details{"player_id": playerID})
	}
	if amount < 0 {
		amount = 0
	}
	if !player.IsAlive || amount == 0 {
		return nil
	}
	newHealth := player.Health - amount
	if newHealth < 0 {
		newHealth = 0
	}
	applied := player.Health - newHealth
	player.Health = newHealth
	s.bus.publish(Event{Type: EventTypePlayerDamaged, PlayerID: playerID, Amount: applied})
	if player.Health == 0 {
		player.IsAlive = false
		s.logger.Info("player died", zap.String("player_id", string(playerID)))
		s.bus.publish(Event{Type: EventTypePlayerDied, PlayerID: playerID})
	}
	return nil
}

// PlantSpike plants the spike. Only allowed while the match is in progress
// and the spike is not planted yet.
func (s *Store) PlantSpike() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.matchStatus != MatchStatusInProgress {
		return errors.NewInvalidTransitionError("match not in progress",
			errors.Details{"match_status": s.matchStatus})
	}
	if s.spikeStatus != SpikeStatusNotPlanted {
		return errors.NewInvalidTransitionError("spike cannot be planted",
			errors.Details{"spike_status": s.spikeStatus})
	}
	s.spikeStatus = SpikeStatusPlanted
	s.logger.Info("spike planted")
	s.bus.publish(Event{Type: EventTypeSpikePlanted})
	return nil
}

// DefuseSpike defuses a planted spike. Scores the round for the defenders and
// starts the next round.
func (s *Store) DefuseSpike() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.spikeStatus != SpikeStatusPlanted {
		return errors.NewInvalidTransitionError("spike cannot be defused",
			errors.Details{"spike_status": s.spikeStatus})
	}
	s.spikeStatus = SpikeStatusDefused
	s.logger.Info("spike defused")
	s.bus.publish(Event{Type: EventTypeSpikeDefused})
	s.defendersScore++
	s.endRound(TeamDefenders)
	return nil
}

// ResetRound manually starts a new round without a winner, preserving the
// scores.
func (s *Store) ResetRound() {
	s.m.Lock()
	defer s.m.Unlock()
	s.resetRound("")
}

// ResetMatch resets all match-scoped state: players are removed, scores and
// clocks cleared and the match waits for new joins.
func (s *Store) ResetMatch() {
	s.m.Lock()
	defer s.m.Unlock()
	s.generation++
	s.cancelAllTimers()
	s.players = make(map[PlayerID]*Player)
	s.matchTime = 0
	s.roundTime = s.config.RoundTime
	s.roundNumber = 1
	s.matchStatus = MatchStatusWaiting
	s.spikeStatus = SpikeStatusNotPlanted
	s.attackersScore = 0
	s.defendersScore = 0
	s.logger.Info("match reset")
}

// Player returns a deep copy of the player with the given id.
func (s *Store) Player(playerID PlayerID) (Player, error) {
	s.m.Lock()
	defer s.m.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return Player{}, errors.NewNotFoundError("player not found", errors.Details{"player_id": playerID})
	}
	return player.Copy(), nil
}

// Snapshot returns a read-only deep copy of the full match state.
func (s *Store) Snapshot() Snapshot {
	s.m.Lock()
	defer s.m.Unlock()
	players := make(map[PlayerID]Player, len(s.players))
	for id, player := range s.players {
		players[id] = player.Copy()
	}
	return Snapshot{
		Players:        players,
		MatchTime:      s.matchTime,
		RoundTime:      s.roundTime,
		RoundNumber:    s.roundNumber,
		MatchStatus:    s.matchStatus,
		SpikeStatus:    s.spikeStatus,
		AttackersScore: s.attackersScore,
		DefendersScore: s.defendersScore,
	}
}

// Run drives the match and round clocks at one tick per second until the
// given context is done. When the round clock reaches zero, the round
// resolves: attackers win if the spike is planted (it explodes), defenders
// win otherwise.
func (s *Store) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.tick()
		}
	}
}

// tick advances the clocks by one second.
func (s *Store) tick() {
	s.m.Lock()
	defer s.m.Unlock()
	if s.matchStatus != MatchStatusInProgress {
		return
	}
	s.matchTime++
	s.roundTime--
	if s.roundTime > 0 {
		return
	}
	// Round clock ran out.
	if s.spikeStatus == SpikeStatusPlanted {
		s.spikeStatus = SpikeStatusExploded
		s.logger.Info("spike exploded")
		s.bus.publish(Event{Type: EventTypeSpikeExploded})
		s.attackersScore++
		s.endRound(TeamAttackers)
		return
	}
	s.defendersScore++
	s.endRound(TeamDefenders)
}

// endRound finishes the current round for the given winner. Callers must hold
// the mutex and have updated the score already.
func (s *Store) endRound(winner Team) {
	winsNeeded := s.config.MaxRounds/2 + 1
	if s.attackersScore >= winsNeeded || s.defendersScore >= winsNeeded {
		s.matchStatus = MatchStatusFinished
		s.logger.Info("match finished", zap.String("winner", string(winner)))
		s.bus.publish(Event{Type: EventTypeMatchFinished, WinningTeam: winner})
		return
	}
	s.resetRound(winner)
}

// resetRound restores all round-scoped state and starts the next round.
// Callers must hold the mutex. winner may be empty for manual resets.
func (s *Store) resetRound(winner Team) {
	s.generation++
	s.cancelAllTimers()
	for _, player := range s.players {
		player.Health = maxHealth
		player.IsAlive = true
		player.Position = spawnPosition(player.Team)
		player.Weapon.CurrentAmmo = player.Weapon.Magazine
		player.Weapon.IsReloading = false
		for i := range player.Character.Abilities {
			player.Character.Abilities[i].IsReady = true
		}
	}
	s.spikeStatus = SpikeStatusNotPlanted
	s.roundTime = s.config.RoundTime
	s.roundNumber++
	s.logger.Info("round reset",
		zap.Int("round_number", s.roundNumber),
		zap.String("winner", string(winner)))
	s.bus.publish(Event{
		Type:        EventTypeRoundReset,
		WinningTeam: winner,
		RoundNumber: s.roundNumber,
		RoundTime:   s.roundTime,
	})
}

// armTimer schedules fn for the given player and resource, replacing any
// pending task with the same key. Callers must hold the mutex.
func (s *Store) armTimer(playerID PlayerID, resource string, d time.Duration,
	fn func(playerID PlayerID, generation uint64)) {
	key := timerKey{player: playerID, resource: resource}
	if pending, ok := s.timers[key]; ok {
		pending.Stop()
	}
	generation := s.generation
	s.timers[key] = s.clock.AfterFunc(d, func() {
		fn(playerID, generation)
	})
}

// cancelTimersForPlayer stops all pending tasks of the given player. Callers
// must hold the mutex.
func (s *Store) cancelTimersForPlayer(playerID PlayerID) {
	for key, timer := range s.timers {
		if key.player == playerID {
			timer.Stop()
			delete(s.timers, key)
		}
	}
}

// cancelAllTimers stops all pending tasks. Callers must hold the mutex.
func (s *Store) cancelAllTimers() {
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}

// findAbility returns the player's ability with the given id or nil.
func findAbility(player *Player, abilityID string) *Ability {
	for i := range player.Character.Abilities {
		if player.Character.Abilities[i].ID == abilityID {
			return &player.Character.Abilities[i]
		}
	}
	return nil
}

// secondsToDuration converts catalog seconds to a time.Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
