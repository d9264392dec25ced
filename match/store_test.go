package match

import (
	"context"
	"testing"
	"time"

	"github.com/lefinal/spikematch/catalog"
	"github.com/lefinal/spikematch/clock"
	"github.com/lefinal/spikematch/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type storeTestSuite struct {
	suite.Suite
	catalog *catalog.Catalog
	clock   *clock.Manual
	store   *Store
}

func (suite *storeTestSuite) SetupTest() {
	c, err := catalog.New()
	suite.Require().NoError(err, "catalog should parse")
	suite.catalog = c
	suite.clock = clock.NewManual(time.Unix(0, 0))
	suite.store = NewStore(zap.NewNop(), c, suite.clock, Config{})
}

// join adds a player and fails the test on error.
func (suite *storeTestSuite) join(username string, team Team, characterID string) PlayerID {
	id, err := suite.store.Join(username, team, characterID)
	suite.Require().NoErrorf(err, "join as %s should not fail", username)
	return id
}

func (suite *storeTestSuite) player(id PlayerID) Player {
	player, err := suite.store.Player(id)
	suite.Require().NoError(err, "player should exist")
	return player
}

func (suite *storeTestSuite) TestJoin() {
	id := suite.join("dora", TeamAttackers, "jett")
	player := suite.player(id)
	suite.Assert().Equal("dora", player.Username, "username should match")
	suite.Assert().Equal(TeamAttackers, player.Team, "team should match")
	suite.Assert().Equal(100, player.Health, "player should spawn with full health")
	suite.Assert().True(player.IsAlive, "player should spawn alive")
	suite.Assert().Equal(catalog.DefaultWeaponID, player.Weapon.ID, "player should receive the default weapon")
	suite.Assert().Equal(player.Weapon.Magazine, player.Weapon.CurrentAmmo, "magazine should be full")
	suite.Assert().Equal(MatchStatusInProgress, suite.store.Snapshot().MatchStatus,
		"first join should start the match")
}

func (suite *storeTestSuite) TestJoinUnknownCharacter() {
	_, err := suite.store.Join("dora", TeamAttackers, "chamber")
	suite.Require().Error(err, "join with unknown character should fail")
	suite.Assert().True(errors.Is(err, errors.ErrNotFound), "error should be not-found")
	suite.Assert().Empty(suite.store.Snapshot().Players, "no player should have been added")
}

func (suite *storeTestSuite) TestJoinUnknownTeam() {
	_, err := suite.store.Join("dora", Team("spectators"), "jett")
	suite.Require().Error(err, "join with unknown team should fail")
	suite.Assert().True(errors.Is(err, errors.ErrBadRequest), "error should be bad-request")
}

func (suite *storeTestSuite) TestJoinFull() {
	store := NewStore(zap.NewNop(), suite.catalog, suite.clock, Config{MaxPlayers: 1})
	_, err := store.Join("dora", TeamAttackers, "jett")
	suite.Require().NoError(err)
	_, err = store.Join("boots", TeamDefenders, "sage")
	suite.Require().Error(err, "join into full match should fail")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
}

func (suite *storeTestSuite) TestLeaveUnknown() {
	err := suite.store.Leave("unknown")
	suite.Require().Error(err, "leave of unknown player should fail")
	suite.Assert().True(errors.Is(err, errors.ErrNotFound), "error should be not-found")
}

func (suite *storeTestSuite) TestUpdatePosition() {
	id := suite.join("dora", TeamAttackers, "jett")
	err := suite.store.UpdatePosition(id, Vector3{X: 1, Y: 2, Z: 3}, Vector3{Y: 0.5})
	suite.Require().NoError(err, "update position should not fail")
	player := suite.player(id)
	suite.Assert().Equal(Vector3{X: 1, Y: 2, Z: 3}, player.Position, "position should be updated")
	suite.Assert().Equal(Vector3{Y: 0.5}, player.Rotation, "rotation should be updated")
}

func (suite *storeTestSuite) TestUpdatePositionUnknown() {
	err := suite.store.UpdatePosition("unknown", Vector3{}, Vector3{})
	suite.Require().Error(err, "update for unknown player should fail")
	suite.Assert().True(errors.Is(err, errors.ErrNotFound), "error should be not-found")
}

func (suite *storeTestSuite) TestUpdatePositionDeadPlayerFrozen() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.ApplyDamage(id, 150))
	before := suite.player(id).Position
	err := suite.store.UpdatePosition(id, Vector3{X: 99}, Vector3{})
	suite.Require().NoError(err, "update for dead player should be a silent no-op")
	suite.Assert().Equal(before, suite.player(id).Position, "dead player's transform should freeze")
}

func (suite *storeTestSuite) TestFireNeverUnderflows() {
	id := suite.join("dora", TeamAttackers, "jett")
	magazine := suite.player(id).Weapon.Magazine
	for i := 0; i < magazine*2; i++ {
		_ = suite.store.Fire(id)
		ammo := suite.player(id).Weapon.CurrentAmmo
		suite.Require().GreaterOrEqual(ammo, 0, "ammo should never go negative")
		suite.Require().LessOrEqual(ammo, magazine, "ammo should never exceed the magazine")
	}
	suite.Assert().Equal(0, suite.player(id).Weapon.CurrentAmmo, "magazine should be empty")
}

func (suite *storeTestSuite) TestFireEmptyMagazineRejected() {
	id := suite.join("dora", TeamAttackers, "jett")
	for i := 0; i < suite.player(id).Weapon.Magazine; i++ {
		suite.Require().NoError(suite.store.Fire(id))
	}
	err := suite.store.Fire(id)
	suite.Require().Error(err, "fire with empty magazine should be rejected")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
}

func (suite *storeTestSuite) TestFireDeadPlayerRejected() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.ApplyDamage(id, 150))
	err := suite.store.Fire(id)
	suite.Require().Error(err, "dead player should not fire")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
}

func (suite *storeTestSuite) TestReload() {
	id := suite.join("dora", TeamAttackers, "jett")
	magazine := suite.player(id).Weapon.Magazine
	for i := 0; i < magazine; i++ {
		suite.Require().NoError(suite.store.Fire(id))
	}
	suite.Require().NoError(suite.store.Reload(id), "reload should start")
	suite.Assert().True(suite.player(id).Weapon.IsReloading, "weapon should be reloading")
	// Fire during reload must be rejected.
	err := suite.store.Fire(id)
	suite.Require().Error(err, "fire during reload should be rejected")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
	// Not done before the reload time.
	suite.clock.Advance(1400 * time.Millisecond)
	suite.Assert().True(suite.player(id).Weapon.IsReloading, "reload should not complete early")
	suite.Assert().Equal(0, suite.player(id).Weapon.CurrentAmmo, "ammo should still be empty")
	// Done after the classic's 1.5s.
	suite.clock.Advance(100 * time.Millisecond)
	weapon := suite.player(id).Weapon
	suite.Assert().False(weapon.IsReloading, "reload should be complete")
	suite.Assert().Equal(magazine, weapon.CurrentAmmo, "magazine should be refilled")
}

func (suite *storeTestSuite) TestReloadWhileReloadingRejected() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.Fire(id))
	suite.Require().NoError(suite.store.Reload(id))
	err := suite.store.Reload(id)
	suite.Require().Error(err, "reload while reloading should be rejected")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
}

func (suite *storeTestSuite) TestReloadFullMagazineRejected() {
	id := suite.join("dora", TeamAttackers, "jett")
	err := suite.store.Reload(id)
	suite.Require().Error(err, "reload with full magazine should be rejected")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
}

func (suite *storeTestSuite) TestReloadTimerIgnoresRemovedPlayer() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.Fire(id))
	suite.Require().NoError(suite.store.Reload(id))
	suite.Require().NoError(suite.store.Leave(id))
	// Advancing past the reload deadline must not resurrect the player record.
	suite.clock.Advance(5 * time.Second)
	_, err := suite.store.Player(id)
	suite.Assert().True(errors.Is(err, errors.ErrNotFound), "removed player should stay removed")
}

func (suite *storeTestSuite) TestUseAbility() {
	id := suite.join("dora", TeamAttackers, "jett")
	// Tailwind has a 20s cooldown.
	suite.Require().NoError(suite.store.UseAbility(id, "tailwind"), "ability should activate")
	ability := suite.ability(id, "tailwind")
	suite.Assert().False(ability.IsReady, "ability should not be ready right after activation")
	suite.clock.Advance(19 * time.Second)
	suite.Assert().False(suite.ability(id, "tailwind").IsReady, "ability should not be ready before cooldown")
	suite.clock.Advance(1 * time.Second)
	suite.Assert().True(suite.ability(id, "tailwind").IsReady, "ability should be ready after cooldown")
}

func (suite *storeTestSuite) TestUseAbilityOnCooldownRejected() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.UseAbility(id, "updraft"))
	err := suite.store.UseAbility(id, "updraft")
	suite.Require().Error(err, "ability on cooldown should be rejected")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
}

func (suite *storeTestSuite) TestUseAbilityUnknownRejected() {
	id := suite.join("dora", TeamAttackers, "jett")
	err := suite.store.UseAbility(id, "resurrection")
	suite.Require().Error(err, "foreign ability should be rejected")
	suite.Assert().True(errors.Is(err, errors.ErrNotFound), "error should be not-found")
}

func (suite *storeTestSuite) TestUseAbilityPerPlayerReadiness() {
	first := suite.join("dora", TeamAttackers, "jett")
	second := suite.join("boots", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.UseAbility(first, "updraft"))
	suite.Assert().False(suite.ability(first, "updraft").IsReady, "used ability should cool down")
	suite.Assert().True(suite.ability(second, "updraft").IsReady,
		"one player's cooldown should not affect another's")
}

func (suite *storeTestSuite) TestAbilityTimerIgnoresRemovedPlayer() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.UseAbility(id, "tailwind"))
	suite.Require().NoError(suite.store.Leave(id))
	// Advancing past the cooldown must not resurrect the player record.
	suite.clock.Advance(30 * time.Second)
	_, err := suite.store.Player(id)
	suite.Assert().True(errors.Is(err, errors.ErrNotFound), "removed player should stay removed")
}

func (suite *storeTestSuite) TestApplyDamage() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.ApplyDamage(id, 26))
	suite.Assert().Equal(74, suite.player(id).Health, "damage should be subtracted")
	suite.Assert().True(suite.player(id).IsAlive, "player should still be alive")
}

func (suite *storeTestSuite) TestApplyDamageClampsAndKills() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.ApplyDamage(id, 150))
	player := suite.player(id)
	suite.Assert().Equal(0, player.Health, "health should be clamped to zero")
	suite.Assert().False(player.IsAlive, "player should be dead")
	// Further damage is a no-op.
	suite.Require().NoError(suite.store.ApplyDamage(id, 50))
	suite.Assert().Equal(0, suite.player(id).Health, "damage to a dead player should be a no-op")
}

func (suite *storeTestSuite) TestApplyDamageNegativeNeverHeals() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.ApplyDamage(id, 40))
	suite.Require().NoError(suite.store.ApplyDamage(id, -30))
	suite.Assert().Equal(60, suite.player(id).Health, "negative damage should be clamped, never heal")
}

func (suite *storeTestSuite) TestSpikeTransitions() {
	suite.join("dora", TeamAttackers, "jett")
	// Defusing an unplanted spike leaves the state unchanged.
	err := suite.store.DefuseSpike()
	suite.Require().Error(err, "defuse before plant should be rejected")
	suite.Assert().True(errors.Is(err, errors.ErrInvalidTransition), "error should be invalid-transition")
	suite.Assert().Equal(SpikeStatusNotPlanted, suite.store.Snapshot().SpikeStatus, "state should be unchanged")
	// Plant, then defuse.
	suite.Require().NoError(suite.store.PlantSpike(), "plant should succeed")
	err = suite.store.PlantSpike()
	suite.Require().Error(err, "double plant should be rejected")
	suite.Require().NoError(suite.store.DefuseSpike(), "defuse should succeed")
	snapshot := suite.store.Snapshot()
	suite.Assert().Equal(1, snapshot.DefendersScore, "defenders should score on defuse")
	suite.Assert().Equal(SpikeStatusNotPlanted, snapshot.SpikeStatus, "next round should reset the spike")
	suite.Assert().Equal(2, snapshot.RoundNumber, "defuse should end the round")
}

func (suite *storeTestSuite) TestRoundClockDefendersWin() {
	suite.join("dora", TeamAttackers, "jett")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = suite.store.Run(ctx) }()
	waitForTicker(suite.clock)
	suite.clock.Advance(time.Duration(DefaultRoundTime) * time.Second)
	suite.Require().Eventually(func() bool {
		return suite.store.Snapshot().DefendersScore == 1
	}, time.Second, time.Millisecond, "defenders should win a round without a plant")
	snapshot := suite.store.Snapshot()
	suite.Assert().Equal(2, snapshot.RoundNumber, "round number should increment")
	suite.Assert().Equal(DefaultRoundTime, snapshot.RoundTime, "round clock should restart")
}

func (suite *storeTestSuite) TestRoundClockSpikeExplodes() {
	suite.join("dora", TeamAttackers, "jett")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = suite.store.Run(ctx) }()
	waitForTicker(suite.clock)
	events := suite.store.SubscribeEvents(ctx)
	suite.Require().NoError(suite.store.PlantSpike())
	suite.clock.Advance(time.Duration(DefaultRoundTime) * time.Second)
	suite.Require().Eventually(func() bool {
		return suite.store.Snapshot().AttackersScore == 1
	}, time.Second, time.Millisecond, "attackers should win when the spike explodes")
	suite.Assert().True(sawEvent(events, EventTypeSpikeExploded), "spike exploded event should be emitted")
}

func (suite *storeTestSuite) TestResetRound() {
	first := suite.join("dora", TeamAttackers, "jett")
	second := suite.join("boots", TeamDefenders, "sage")
	suite.Require().NoError(suite.store.ApplyDamage(first, 150))
	suite.Require().NoError(suite.store.Fire(second))
	suite.Require().NoError(suite.store.PlantSpike())
	before := suite.store.Snapshot()
	suite.store.ResetRound()
	snapshot := suite.store.Snapshot()
	for id, player := range snapshot.Players {
		suite.Assert().Equalf(100, player.Health, "player %s should be restored to full health", id)
		suite.Assert().Truef(player.IsAlive, "player %s should be alive", id)
		suite.Assert().Equalf(player.Weapon.Magazine, player.Weapon.CurrentAmmo,
			"player %s magazine should be full", id)
	}
	suite.Assert().Equal(SpikeStatusNotPlanted, snapshot.SpikeStatus, "spike should be reset")
	suite.Assert().Equal(before.RoundNumber+1, snapshot.RoundNumber, "round number should increment")
	suite.Assert().Equal(before.AttackersScore, snapshot.AttackersScore, "attackers score should be preserved")
	suite.Assert().Equal(before.DefendersScore, snapshot.DefendersScore, "defenders score should be preserved")
}

func (suite *storeTestSuite) TestResetRoundInvalidatesPendingTimers() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.Fire(id))
	suite.Require().NoError(suite.store.Fire(id))
	suite.Require().NoError(suite.store.Reload(id))
	suite.store.ResetRound()
	// The reset already refilled the magazine. A stale reload completing
	// afterwards must not flip reload state.
	suite.clock.Advance(5 * time.Second)
	weapon := suite.player(id).Weapon
	suite.Assert().False(weapon.IsReloading, "stale reload should be a no-op")
	suite.Assert().Equal(weapon.Magazine, weapon.CurrentAmmo, "magazine should stay full")
}

func (suite *storeTestSuite) TestResetRoundInvalidatesAbilityCooldown() {
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.UseAbility(id, "tailwind"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := suite.store.SubscribeEvents(ctx)
	suite.store.ResetRound()
	// The reset already restored readiness. The stale cooldown completing
	// afterwards must not emit a readiness change.
	suite.clock.Advance(30 * time.Second)
	suite.Assert().True(suite.ability(id, "tailwind").IsReady, "ability should be ready after the reset")
	suite.Assert().False(sawEvent(events, EventTypeAbilityReady),
		"stale cooldown should not announce readiness")
}

func (suite *storeTestSuite) TestResetMatch() {
	suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.PlantSpike())
	suite.store.ResetMatch()
	snapshot := suite.store.Snapshot()
	suite.Assert().Empty(snapshot.Players, "players should be removed")
	suite.Assert().Equal(MatchStatusWaiting, snapshot.MatchStatus, "match should wait for joins")
	suite.Assert().Equal(SpikeStatusNotPlanted, snapshot.SpikeStatus, "spike should be reset")
	suite.Assert().Equal(1, snapshot.RoundNumber, "round number should be reset")
	suite.Assert().Zero(snapshot.AttackersScore, "attackers score should be reset")
	suite.Assert().Zero(snapshot.DefendersScore, "defenders score should be reset")
}

func (suite *storeTestSuite) TestEndToEndClassic() {
	// Join as attacker with Jett and the classic (magazine 12, reload 1.5s).
	id := suite.join("dora", TeamAttackers, "jett")
	for i := 0; i < 12; i++ {
		suite.Require().NoErrorf(suite.store.Fire(id), "shot %d should succeed", i+1)
	}
	err := suite.store.Fire(id)
	suite.Require().Error(err, "13th shot should be rejected")
	suite.Require().NoError(suite.store.Reload(id), "reload should start")
	suite.clock.Advance(1500 * time.Millisecond)
	weapon := suite.player(id).Weapon
	suite.Assert().Equal(12, weapon.CurrentAmmo, "ammo should be restored after 1.5s")
	suite.Assert().False(weapon.IsReloading, "reload should be done")
}

func (suite *storeTestSuite) TestSnapshotIsIsolated() {
	id := suite.join("dora", TeamAttackers, "jett")
	snapshot := suite.store.Snapshot()
	player := snapshot.Players[id]
	player.Health = 1
	player.Character.Abilities[0].IsReady = false
	suite.Assert().Equal(100, suite.player(id).Health, "mutating a snapshot should not affect the store")
	suite.Assert().True(suite.player(id).Character.Abilities[0].IsReady,
		"snapshot abilities should be deep copies")
}

func (suite *storeTestSuite) TestEvents() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := suite.store.SubscribeEvents(ctx)
	id := suite.join("dora", TeamAttackers, "jett")
	suite.Require().NoError(suite.store.Fire(id))
	e := <-events
	suite.Assert().Equal(EventTypePlayerJoined, e.Type, "first event should be the join")
	suite.Assert().Equal(id, e.Player.ID, "event should carry the player")
	e = <-events
	suite.Assert().Equal(EventTypePlayerFired, e.Type, "second event should be the shot")
	suite.Assert().Equal(id, e.PlayerID, "event should carry the player id")
}

// ability returns the given ability of the player.
func (suite *storeTestSuite) ability(id PlayerID, abilityID string) Ability {
	player := suite.player(id)
	for _, ability := range player.Character.Abilities {
		if ability.ID == abilityID {
			return ability
		}
	}
	suite.Require().Failf("ability not found", "player %s has no ability %s", id, abilityID)
	return Ability{}
}

// waitForTicker blocks shortly so that Store.Run has created its ticker on
// the manual clock before the test advances it.
func waitForTicker(_ *clock.Manual) {
	time.Sleep(10 * time.Millisecond)
}

// sawEvent drains the channel without blocking and reports whether an event
// of the given type was seen.
func sawEvent(events <-chan Event, eventType EventType) bool {
	for {
		select {
		case e := <-events:
			if e.Type == eventType {
				return true
			}
		default:
			return false
		}
	}
}

func TestStore(t *testing.T) {
	suite.Run(t, new(storeTestSuite))
}
