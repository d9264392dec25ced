// Package lobby is the server-of-record reception: it welcomes websocket
// clients, routes their intents into the match state store and broadcasts
// authoritative state changes back to all clients.
package lobby

import (
	"context"
	"sync"

	"github.com/lefinal/spikematch/combat"
	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/match"
	"github.com/lefinal/spikematch/messages"
	"github.com/lefinal/spikematch/ws"
	"go.uber.org/zap"
)

// Lobby implements ws.ClientListener and runs the event broadcast. Create via
// NewLobby and run with Lobby.Run.
type Lobby struct {
	logger   *zap.Logger
	store    *match.Store
	resolver *combat.Resolver
	// m locks sessions.
	m        sync.Mutex
	sessions map[*ws.Client]*session
}

// session is the per-connection state.
type session struct {
	client *ws.Client
	// playerID is set after a successful join. Written by the session goroutine
	// and read by the broadcast and hub goroutines, therefore guarded by the
	// lobby mutex.
	playerID match.PlayerID
}

// NewLobby creates a new Lobby serving the given store. Fire events are
// resolved through the given combat resolver.
func NewLobby(logger *zap.Logger, store *match.Store, resolver *combat.Resolver) *Lobby {
	return &Lobby{
		logger:   logger,
		store:    store,
		resolver: resolver,
		sessions: make(map[*ws.Client]*session),
	}
}

// Run broadcasts store events to all connected clients until the given
// context is done.
func (l *Lobby) Run(ctx context.Context) error {
	events := l.store.SubscribeEvents(ctx)
	for event := range events {
		container, exclude, ok := containerForEvent(event)
		if !ok {
			continue
		}
		raw, err := messages.MarshalContainer(container)
		if err != nil {
			errors.Log(l.logger, errors.Wrap(err, "marshal event message", nil))
			continue
		}
		l.broadcast(raw, exclude)
	}
	return nil
}

// AcceptClient runs the session for a new client until the connection or the
// given context ends.
func (l *Lobby) AcceptClient(ctx context.Context, client *ws.Client) {
	sess := &session{client: client}
	l.m.Lock()
	l.sessions[client] = sess
	l.m.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-client.Receive:
			if !ok {
				return
			}
			l.handleMessage(sess, raw)
		}
	}
}

// SayGoodbyeToClient removes the client's session and its player.
func (l *Lobby) SayGoodbyeToClient(client *ws.Client) {
	l.m.Lock()
	sess, ok := l.sessions[client]
	delete(l.sessions, client)
	var playerID match.PlayerID
	if ok {
		playerID = sess.playerID
	}
	l.m.Unlock()
	if !ok {
		return
	}
	if playerID != "" {
		if err := l.store.Leave(playerID); err != nil {
			errors.Log(l.logger, errors.Wrap(err, "remove player of closed connection", nil))
		}
	}
}

// playerIDOf returns the session's player id.
func (l *Lobby) playerIDOf(sess *session) match.PlayerID {
	l.m.Lock()
	defer l.m.Unlock()
	return sess.playerID
}

// setPlayerID sets the session's player id.
func (l *Lobby) setPlayerID(sess *session, playerID match.PlayerID) {
	l.m.Lock()
	defer l.m.Unlock()
	sess.playerID = playerID
}

// handleMessage parses and dispatches a single client message.
func (l *Lobby) handleMessage(sess *session, raw []byte) {
	container, err := messages.ParseContainer(raw)
	if err != nil {
		l.sendError(sess, errors.Wrap(err, "parse message", nil))
		return
	}
	payload, err := messages.ParsePayload(container)
	if err != nil {
		l.sendError(sess, errors.Wrap(err, "parse payload", nil))
		return
	}
	if container.MessageType == messages.MessageTypeJoin {
		l.handleJoin(sess, payload.(*messages.MessageJoin))
		return
	}
	// All other intents require a joined player.
	playerID := l.playerIDOf(sess)
	if playerID == "" {
		l.sendError(sess, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Message: "join required before sending intents",
			Details: errors.Details{"message_type": container.MessageType},
		})
		return
	}
	// Rejected intents are silent towards the client: they simply have no
	// observable effect. They are still logged for tracing.
	var intentErr error
	switch container.MessageType {
	case messages.MessageTypeLeave:
		intentErr = l.store.Leave(playerID)
		l.setPlayerID(sess, "")
	case messages.MessageTypeMove:
		move := payload.(*messages.MessageMove)
		intentErr = l.store.UpdatePosition(playerID, move.Position, move.Rotation)
	case messages.MessageTypeFire:
		intentErr = l.resolver.ResolveFire(playerID)
	case messages.MessageTypeReload:
		intentErr = l.store.Reload(playerID)
	case messages.MessageTypeUseAbility:
		useAbility := payload.(*messages.MessageUseAbility)
		intentErr = l.store.UseAbility(playerID, useAbility.AbilityID)
	case messages.MessageTypePlantSpike:
		intentErr = l.store.PlantSpike()
	case messages.MessageTypeDefuseSpike:
		intentErr = l.store.DefuseSpike()
	default:
		l.sendError(sess, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Message: "unexpected message type from client",
			Details: errors.Details{"message_type": container.MessageType},
		})
		return
	}
	if intentErr != nil {
		l.logger.Debug("rejected intent",
			zap.String("message_type", string(container.MessageType)),
			zap.String("player_id", string(playerID)),
			zap.Error(intentErr))
	}
}

// handleJoin joins the session's player and replies with a welcome message
// carrying the assigned player id and the full authoritative state.
func (l *Lobby) handleJoin(sess *session, join *messages.MessageJoin) {
	if joinedID := l.playerIDOf(sess); joinedID != "" {
		l.sendError(sess, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Message: "already joined",
			Details: errors.Details{"player_id": joinedID},
		})
		return
	}
	playerID, err := l.store.Join(join.Username, join.Team, join.CharacterID)
	if err != nil {
		l.sendError(sess, errors.Wrap(err, "join match", nil))
		return
	}
	l.setPlayerID(sess, playerID)
	l.send(sess, messages.MessageTypeWelcome, messages.MessageWelcome{
		PlayerID: playerID,
		State:    l.store.Snapshot(),
	})
}

// send marshals and sends a message to the session's client. Slow clients
// drop messages instead of blocking the lobby.
func (l *Lobby) send(sess *session, messageType messages.MessageType, payload interface{}) {
	container, err := messages.NewContainer(messageType, payload)
	if err != nil {
		errors.Log(l.logger, errors.Wrap(err, "create message container", nil))
		return
	}
	raw, err := messages.MarshalContainer(container)
	if err != nil {
		errors.Log(l.logger, errors.Wrap(err, "marshal message container", nil))
		return
	}
	select {
	case sess.client.Send <- raw:
	default:
		l.logger.Warn("dropping message for slow client",
			zap.String("client_id", sess.client.ID.String()),
			zap.String("message_type", string(messageType)))
	}
}

// sendError reports the given error to the client. Internal details are
// hidden by messages.MessageErrorFromError.
func (l *Lobby) sendError(sess *session, err error) {
	errors.Log(l.logger, err)
	l.send(sess, messages.MessageTypeError, messages.MessageErrorFromError(err))
}

// broadcast sends the raw message to all connected clients, skipping the
// session of the excluded player if set.
func (l *Lobby) broadcast(raw []byte, exclude match.PlayerID) {
	l.m.Lock()
	defer l.m.Unlock()
	for _, sess := range l.sessions {
		if exclude != "" && sess.playerID == exclude {
			continue
		}
		select {
		case sess.client.Send <- raw:
		default:
			l.logger.Warn("dropping broadcast for slow client",
				zap.String("client_id", sess.client.ID.String()))
		}
	}
}

// containerForEvent converts a store event to its wire message. The second
// return value names a player whose session must not receive the message:
// intent echoes are not returned to their originator because the originating
// client already applied them optimistically.
func containerForEvent(event match.Event) (messages.MessageContainer, match.PlayerID, bool) {
	var container messages.MessageContainer
	var err error
	exclude := match.PlayerID("")
	switch event.Type {
	case match.EventTypePlayerJoined:
		container, err = messages.NewContainer(messages.MessageTypePlayerJoined,
			messages.MessagePlayerJoined{Player: event.Player})
	case match.EventTypePlayerLeft:
		container, err = messages.NewContainer(messages.MessageTypePlayerLeft,
			messages.MessagePlayerLeft{PlayerID: event.PlayerID})
	case match.EventTypePlayerMoved:
		exclude = event.PlayerID
		container, err = messages.NewContainer(messages.MessageTypePlayerMoved,
			messages.MessagePlayerMoved{
				PlayerID: event.PlayerID,
				Position: event.Position,
				Rotation: event.Rotation,
			})
	case match.EventTypePlayerFired:
		exclude = event.PlayerID
		container, err = messages.NewContainer(messages.MessageTypePlayerFired,
			messages.MessagePlayerFired{PlayerID: event.PlayerID})
	case match.EventTypePlayerDamaged:
		container, err = messages.NewContainer(messages.MessageTypePlayerDamaged,
			messages.MessagePlayerDamaged{PlayerID: event.PlayerID, Amount: event.Amount})
	case match.EventTypeWeaponReloaded:
		// Reload completion is timer-driven on the server, so the originator needs
		// it too.
		container, err = messages.NewContainer(messages.MessageTypeWeaponReloaded,
			messages.MessageWeaponReloaded{PlayerID: event.PlayerID})
	case match.EventTypeAbilityUsed:
		exclude = event.PlayerID
		container, err = messages.NewContainer(messages.MessageTypeAbilityUsed,
			messages.MessageAbilityUsed{PlayerID: event.PlayerID, AbilityID: event.AbilityID})
	case match.EventTypeAbilityReady:
		container, err = messages.NewContainer(messages.MessageTypeAbilityReady,
			messages.MessageAbilityReady{PlayerID: event.PlayerID, AbilityID: event.AbilityID})
	case match.EventTypeSpikePlanted:
		container, err = messages.NewContainer(messages.MessageTypeSpikePlanted, nil)
	case match.EventTypeSpikeDefused:
		container, err = messages.NewContainer(messages.MessageTypeSpikeDefused, nil)
	case match.EventTypeSpikeExploded:
		container, err = messages.NewContainer(messages.MessageTypeSpikeExploded, nil)
	case match.EventTypeRoundReset:
		container, err = messages.NewContainer(messages.MessageTypeRoundReset,
			messages.MessageRoundReset{
				WinningTeam: event.WinningTeam,
				RoundNumber: event.RoundNumber,
				RoundTime:   event.RoundTime,
			})
	case match.EventTypeMatchFinished:
		container, err = messages.NewContainer(messages.MessageTypeMatchFinished,
			messages.MessageMatchFinished{WinningTeam: event.WinningTeam})
	default:
		return messages.MessageContainer{}, "", false
	}
	if err != nil {
		return messages.MessageContainer{}, "", false
	}
	return container, exclude, true
}
