// Package gamesync keeps a client in sync with the server of record. It
// forwards the player's intents over the connection and maintains a local
// replica of the match state from the server's messages. Intents apply
// optimistically to the replica so input feels immediate; the server's
// messages remain authoritative.
package gamesync

import (
	"context"
	"sync"
	"time"

	"github.com/lefinal/spikematch/clock"
	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/match"
	"github.com/lefinal/spikematch/messages"
	"go.uber.org/zap"
)

// Status is the connection state of the Service.
type Status string

const (
	// StatusDisconnected means no connection exists.
	StatusDisconnected Status = "disconnected"
	// StatusConnecting means the connection is being established.
	StatusConnecting Status = "connecting"
	// StatusConnected means the connection is up.
	StatusConnected Status = "connected"
)

// Config is the configuration for a Service.
type Config struct {
	// Addr is the websocket address of the server of record.
	Addr string
	// Username is the name to join with.
	Username string
	// Team is the side to join.
	Team match.Team
	// CharacterID is the character to join with.
	CharacterID string
	// MoveInterval is the minimum time between forwarded move intents. Defaults
	// to DefaultMoveInterval.
	MoveInterval time.Duration
}

// Service connects a client to the server of record. Create via NewService,
// establish the connection with Connect and read the replicated state with
// State.
type Service struct {
	logger    *zap.Logger
	transport Transport
	config    Config
	replica   *replica
	moveGate  *IntentGate

	// m locks the connection state below.
	m        sync.Mutex
	status   Status
	conn     Conn
	playerID match.PlayerID
	// joined is closed when the welcome message arrives. Recreated per Connect.
	joined chan struct{}
}

// NewService creates a new Service. It does not connect yet, call Connect.
func NewService(logger *zap.Logger, transport Transport, clk clock.Clock, config Config) *Service {
	if config.MoveInterval <= 0 {
		config.MoveInterval = DefaultMoveInterval
	}
	return &Service{
		logger:    logger,
		transport: transport,
		config:    config,
		replica:   newReplica(),
		moveGate:  NewIntentGate(clk, config.MoveInterval),
		status:    StatusDisconnected,
	}
}

// Connect establishes the connection and sends the join request. It returns
// when the connection is up; await the server's welcome with AwaitJoined.
// Connect is rejected unless the Service is disconnected.
func (s *Service) Connect(ctx context.Context) error {
	s.m.Lock()
	if s.status != StatusDisconnected {
		s.m.Unlock()
		return errors.NewInvalidTransitionError("already connected or connecting",
			errors.Details{"status": s.status})
	}
	s.status = StatusConnecting
	s.joined = make(chan struct{})
	s.m.Unlock()
	conn, err := s.transport.Dial(ctx, s.config.Addr)
	if err != nil {
		s.m.Lock()
		s.status = StatusDisconnected
		s.m.Unlock()
		return errors.Wrap(err, "dial server", nil)
	}
	s.m.Lock()
	if s.status != StatusConnecting {
		// Disconnect was called while dialing.
		s.m.Unlock()
		_ = conn.Close()
		return errors.NewInvalidTransitionError("disconnected while connecting", nil)
	}
	s.conn = conn
	s.status = StatusConnected
	s.m.Unlock()
	s.logger.Info("connected", zap.String("addr", s.config.Addr))
	go s.readLoop(conn)
	if err := s.sendMessage(messages.MessageTypeJoin, messages.MessageJoin{
		Username:    s.config.Username,
		Team:        s.config.Team,
		CharacterID: s.config.CharacterID,
	}); err != nil {
		s.Disconnect()
		return errors.Wrap(err, "send join request", nil)
	}
	return nil
}

// AwaitJoined blocks until the server's welcome message arrived or the given
// context is done.
func (s *Service) AwaitJoined(ctx context.Context) error {
	s.m.Lock()
	joined := s.joined
	playerID := s.playerID
	s.m.Unlock()
	if joined == nil {
		if playerID != "" {
			// Welcome already arrived.
			return nil
		}
		return errors.NewInvalidTransitionError("not connecting", nil)
	}
	select {
	case <-ctx.Done():
		return errors.NewCommunicationError("await welcome", errors.Details{"ctx_err": ctx.Err()})
	case <-joined:
		if s.PlayerID() == "" {
			// Released by a disconnect, not by the welcome.
			return errors.NewCommunicationError("disconnected before welcome", nil)
		}
		return nil
	}
}

// Disconnect closes the connection. It is safe to call from any state,
// including while connecting or when already disconnected.
func (s *Service) Disconnect() {
	s.m.Lock()
	conn := s.conn
	s.conn = nil
	s.status = StatusDisconnected
	s.playerID = ""
	joined := s.joined
	s.joined = nil
	s.m.Unlock()
	// Release anyone awaiting the welcome.
	if joined != nil {
		close(joined)
	}
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		s.logger.Debug("close connection", zap.Error(err))
	}
	s.logger.Info("disconnected")
}

// Status returns the current connection status.
func (s *Service) Status() Status {
	s.m.Lock()
	defer s.m.Unlock()
	return s.status
}

// PlayerID returns the player id assigned by the server. Empty until the
// welcome message arrived.
func (s *Service) PlayerID() match.PlayerID {
	s.m.Lock()
	defer s.m.Unlock()
	return s.playerID
}

// State returns a deep copy of the replicated match state.
func (s *Service) State() match.Snapshot {
	return s.replica.snapshot()
}

// Move forwards a position update. High-frequency calls are gated to the
// configured move interval; gated calls still apply locally so rendering
// follows the input immediately.
func (s *Service) Move(position match.Vector3, rotation match.Vector3) error {
	playerID := s.PlayerID()
	s.replica.updatePlayer(playerID, func(player *match.Player) {
		if !player.IsAlive {
			return
		}
		player.Position = position
		player.Rotation = rotation
	})
	if !s.moveGate.Allow() {
		return nil
	}
	return s.sendMessage(messages.MessageTypeMove, messages.MessageMove{
		Position: position,
		Rotation: rotation,
	})
}

// Fire forwards a fire intent and optimistically spends one round locally.
func (s *Service) Fire() error {
	s.replica.updatePlayer(s.PlayerID(), func(player *match.Player) {
		if !player.IsAlive || player.Weapon.IsReloading || player.Weapon.CurrentAmmo <= 0 {
			return
		}
		player.Weapon.CurrentAmmo--
	})
	return s.sendMessage(messages.MessageTypeFire, nil)
}

// Reload forwards a reload intent and optimistically marks the weapon as
// reloading. The magazine refills when the server announces the completed
// reload.
func (s *Service) Reload() error {
	s.replica.updatePlayer(s.PlayerID(), func(player *match.Player) {
		if !player.IsAlive || player.Weapon.CurrentAmmo >= player.Weapon.Magazine {
			return
		}
		player.Weapon.IsReloading = true
	})
	return s.sendMessage(messages.MessageTypeReload, nil)
}

// UseAbility forwards an ability activation and optimistically starts the
// cooldown locally. The ability becomes ready again when the server says so.
func (s *Service) UseAbility(abilityID string) error {
	s.replica.setAbilityReady(s.PlayerID(), abilityID, false)
	return s.sendMessage(messages.MessageTypeUseAbility, messages.MessageUseAbility{
		AbilityID: abilityID,
	})
}

// PlantSpike forwards a spike plant.
func (s *Service) PlantSpike() error {
	return s.sendMessage(messages.MessageTypePlantSpike, nil)
}

// DefuseSpike forwards a spike defusal.
func (s *Service) DefuseSpike() error {
	return s.sendMessage(messages.MessageTypeDefuseSpike, nil)
}

// Leave announces leaving the match and disconnects.
func (s *Service) Leave() error {
	playerID := s.PlayerID()
	err := s.sendMessage(messages.MessageTypeLeave, nil)
	s.replica.removePlayer(playerID)
	s.Disconnect()
	return err
}

// sendMessage sends the given message if connected. Intents are
// fire-and-forget: there is no per-intent reply, rejected intents simply have
// no effect on the server.
func (s *Service) sendMessage(messageType messages.MessageType, payload interface{}) error {
	s.m.Lock()
	conn := s.conn
	status := s.status
	s.m.Unlock()
	if status != StatusConnected || conn == nil {
		return errors.NewCommunicationError("not connected",
			errors.Details{"status": status, "message_type": messageType})
	}
	container, err := messages.NewContainer(messageType, payload)
	if err != nil {
		return errors.Wrap(err, "create message container", nil)
	}
	raw, err := messages.MarshalContainer(container)
	if err != nil {
		return errors.Wrap(err, "marshal message container", nil)
	}
	if err := conn.Send(raw); err != nil {
		return errors.Wrap(err, "send message", errors.Details{"message_type": messageType})
	}
	return nil
}

// readLoop applies incoming messages in arrival order until the connection
// ends. A connection that ends without Disconnect being called transitions
// the Service to disconnected.
func (s *Service) readLoop(conn Conn) {
	for raw := range conn.Receive() {
		s.handleMessage(raw)
	}
	s.m.Lock()
	var joined chan struct{}
	if s.conn == conn {
		s.conn = nil
		s.status = StatusDisconnected
		s.playerID = ""
		joined = s.joined
		s.joined = nil
		s.logger.Info("connection lost")
	}
	s.m.Unlock()
	if joined != nil {
		close(joined)
	}
}

// handleMessage parses and applies a single server message to the replica.
func (s *Service) handleMessage(raw []byte) {
	container, err := messages.ParseContainer(raw)
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "parse server message", nil))
		return
	}
	payload, err := messages.ParsePayload(container)
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "parse server payload", nil))
		return
	}
	switch container.MessageType {
	case messages.MessageTypeWelcome:
		welcome := payload.(*messages.MessageWelcome)
		s.replica.setState(welcome.State)
		s.m.Lock()
		s.playerID = welcome.PlayerID
		joined := s.joined
		s.joined = nil
		s.m.Unlock()
		s.logger.Info("joined match", zap.String("player_id", string(welcome.PlayerID)))
		if joined != nil {
			close(joined)
		}
	case messages.MessageTypeError:
		messageError := payload.(*messages.MessageError)
		s.logger.Warn("server reported error",
			zap.String("code", messageError.Code),
			zap.String("message", messageError.Message))
	case messages.MessageTypePlayerJoined:
		s.replica.addPlayer(payload.(*messages.MessagePlayerJoined).Player)
	case messages.MessageTypePlayerLeft:
		s.replica.removePlayer(payload.(*messages.MessagePlayerLeft).PlayerID)
	case messages.MessageTypePlayerMoved:
		moved := payload.(*messages.MessagePlayerMoved)
		s.replica.updatePlayer(moved.PlayerID, func(player *match.Player) {
			player.Position = moved.Position
			player.Rotation = moved.Rotation
		})
	case messages.MessageTypePlayerFired:
		fired := payload.(*messages.MessagePlayerFired)
		s.replica.updatePlayer(fired.PlayerID, func(player *match.Player) {
			if player.Weapon.CurrentAmmo > 0 {
				player.Weapon.CurrentAmmo--
			}
		})
	case messages.MessageTypePlayerDamaged:
		damaged := payload.(*messages.MessagePlayerDamaged)
		s.replica.applyDamage(damaged.PlayerID, damaged.Amount)
	case messages.MessageTypeWeaponReloaded:
		reloaded := payload.(*messages.MessageWeaponReloaded)
		s.replica.updatePlayer(reloaded.PlayerID, func(player *match.Player) {
			player.Weapon.CurrentAmmo = player.Weapon.Magazine
			player.Weapon.IsReloading = false
		})
	case messages.MessageTypeAbilityUsed:
		used := payload.(*messages.MessageAbilityUsed)
		s.replica.setAbilityReady(used.PlayerID, used.AbilityID, false)
	case messages.MessageTypeAbilityReady:
		ready := payload.(*messages.MessageAbilityReady)
		s.replica.setAbilityReady(ready.PlayerID, ready.AbilityID, true)
	case messages.MessageTypeSpikePlanted:
		s.replica.setSpikeStatus(match.SpikeStatusPlanted)
	case messages.MessageTypeSpikeDefused:
		s.replica.setSpikeStatus(match.SpikeStatusDefused)
	case messages.MessageTypeSpikeExploded:
		s.replica.setSpikeStatus(match.SpikeStatusExploded)
	case messages.MessageTypeRoundReset:
		s.replica.applyRoundReset(*payload.(*messages.MessageRoundReset))
	case messages.MessageTypeMatchFinished:
		finished := payload.(*messages.MessageMatchFinished)
		s.replica.applyMatchFinished(finished.WinningTeam)
		s.logger.Info("match finished", zap.String("winner", string(finished.WinningTeam)))
	default:
		s.logger.Warn("unexpected message type from server",
			zap.String("message_type", string(container.MessageType)))
	}
}
