// Package messages defines the wire contract between the server of record
// and its clients. The message catalog is a closed set: adding a message type
// means adding a constant, a payload struct and a case in ParsePayload, which
// makes new message types a compile-time-checked change.
package messages

import (
	"encoding/json"

	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/match"
)

// MessageType is the type of message and serves for using the correct
// parsing method.
type MessageType string

// Message types sent by clients.
const (
	// MessageTypeJoin is sent with MessageJoin in order to join the match.
	MessageTypeJoin MessageType = "join"
	// MessageTypeLeave announces that the client leaves the match. No payload.
	MessageTypeLeave MessageType = "leave"
	// MessageTypeMove is sent with MessageMove for position updates.
	MessageTypeMove MessageType = "move"
	// MessageTypeFire announces a fire intent. No payload.
	MessageTypeFire MessageType = "fire"
	// MessageTypeReload announces a reload intent. No payload.
	MessageTypeReload MessageType = "reload"
	// MessageTypeUseAbility is sent with MessageUseAbility for ability
	// activation.
	MessageTypeUseAbility MessageType = "useAbility"
	// MessageTypePlantSpike announces a spike plant. No payload.
	MessageTypePlantSpike MessageType = "plantSpike"
	// MessageTypeDefuseSpike announces a spike defusal. No payload.
	MessageTypeDefuseSpike MessageType = "defuseSpike"
)

// Message types sent by the server.
const (
	// MessageTypeWelcome is sent with MessageWelcome as the reply to a
	// successful join.
	MessageTypeWelcome MessageType = "welcome"
	// MessageTypeError is used with MessageError for errors that need to be
	// sent to clients.
	MessageTypeError MessageType = "error"
	// MessageTypePlayerJoined announces a new player with MessagePlayerJoined.
	MessageTypePlayerJoined MessageType = "playerJoined"
	// MessageTypePlayerLeft announces a removed player with MessagePlayerLeft.
	MessageTypePlayerLeft MessageType = "playerLeft"
	// MessageTypePlayerMoved carries a position update with
	// MessagePlayerMoved.
	MessageTypePlayerMoved MessageType = "playerMoved"
	// MessageTypePlayerFired announces a shot with MessagePlayerFired.
	MessageTypePlayerFired MessageType = "playerFired"
	// MessageTypePlayerDamaged announces damage with MessagePlayerDamaged.
	MessageTypePlayerDamaged MessageType = "playerDamaged"
	// MessageTypeWeaponReloaded announces a completed reload with
	// MessageWeaponReloaded.
	MessageTypeWeaponReloaded MessageType = "weaponReloaded"
	// MessageTypeAbilityUsed announces an ability activation with
	// MessageAbilityUsed.
	MessageTypeAbilityUsed MessageType = "abilityUsed"
	// MessageTypeAbilityReady announces an expired cooldown with
	// MessageAbilityReady.
	MessageTypeAbilityReady MessageType = "abilityReady"
	// MessageTypeSpikePlanted announces the planted spike. No payload.
	MessageTypeSpikePlanted MessageType = "spikePlanted"
	// MessageTypeSpikeDefused announces the defused spike. No payload.
	MessageTypeSpikeDefused MessageType = "spikeDefused"
	// MessageTypeSpikeExploded announces the exploded spike. No payload.
	MessageTypeSpikeExploded MessageType = "spikeExploded"
	// MessageTypeRoundReset announces a new round with MessageRoundReset.
	MessageTypeRoundReset MessageType = "roundReset"
	// MessageTypeMatchFinished announces the match result with
	// MessageMatchFinished.
	MessageTypeMatchFinished MessageType = "matchFinished"
)

// MessageContainer is a container for all messages that are sent and
// received. It holds the message type as well as the actual payload.
type MessageContainer struct {
	// MessageType is the type of the message.
	MessageType MessageType `json:"message_type"`
	// Content is the actual message content.
	Content json.RawMessage `json:"content,omitempty"`
}

// MessageJoin is used with MessageTypeJoin for joining the match.
type MessageJoin struct {
	Username    string     `json:"username"`
	Team        match.Team `json:"team"`
	CharacterID string     `json:"characterId"`
}

// MessageWelcome is used with MessageTypeWelcome. It carries the assigned
// player id and the full authoritative state.
type MessageWelcome struct {
	PlayerID match.PlayerID `json:"playerId"`
	State    match.Snapshot `json:"state"`
}

// MessageError is used with MessageTypeError for errors that need to be sent
// to clients.
type MessageError struct {
	// Code is the error code from errors.Error.
	Code string `json:"code"`
	// Message is the message from errors.Error.
	Message string `json:"message"`
}

// MessageErrorFromError creates a MessageError from the given error. Internal
// details are hidden from the peer.
func MessageErrorFromError(err error) MessageError {
	e, _ := errors.Cast(err)
	if !errors.BlameUser(err) {
		return MessageError{
			Code:    string(e.Code),
			Message: "internal server error",
		}
	}
	return MessageError{
		Code:    string(e.Code),
		Message: e.Message,
	}
}

// MessageMove is used with MessageTypeMove.
type MessageMove struct {
	Position match.Vector3 `json:"position"`
	Rotation match.Vector3 `json:"rotation"`
}

// MessageUseAbility is used with MessageTypeUseAbility.
type MessageUseAbility struct {
	AbilityID string `json:"abilityId"`
}

// MessagePlayerJoined is used with MessageTypePlayerJoined.
type MessagePlayerJoined struct {
	Player match.Player `json:"player"`
}

// MessagePlayerLeft is used with MessageTypePlayerLeft.
type MessagePlayerLeft struct {
	PlayerID match.PlayerID `json:"playerId"`
}

// MessagePlayerMoved is used with MessageTypePlayerMoved.
type MessagePlayerMoved struct {
	PlayerID match.PlayerID `json:"playerId"`
	Position match.Vector3  `json:"position"`
	Rotation match.Vector3  `json:"rotation"`
}

// MessagePlayerFired is used with MessageTypePlayerFired.
type MessagePlayerFired struct {
	PlayerID match.PlayerID `json:"playerId"`
}

// MessagePlayerDamaged is used with MessageTypePlayerDamaged.
type MessagePlayerDamaged struct {
	PlayerID match.PlayerID `json:"playerId"`
	Amount   int            `json:"amount"`
}

// MessageWeaponReloaded is used with MessageTypeWeaponReloaded.
type MessageWeaponReloaded struct {
	PlayerID match.PlayerID `json:"playerId"`
}

// MessageAbilityUsed is used with MessageTypeAbilityUsed.
type MessageAbilityUsed struct {
	PlayerID  match.PlayerID `json:"playerId"`
	AbilityID string         `json:"abilityId"`
}

// MessageAbilityReady is used with MessageTypeAbilityReady.
type MessageAbilityReady struct {
	PlayerID  match.PlayerID `json:"playerId"`
	AbilityID string         `json:"abilityId"`
}

// MessageRoundReset is used with MessageTypeRoundReset.
type MessageRoundReset struct {
	// WinningTeam is the winner of the previous round. Empty for manual resets.
	WinningTeam match.Team `json:"winningTeam,omitempty"`
	// RoundNumber is the new round number.
	RoundNumber int `json:"roundNumber"`
	// RoundTime is the fresh round time in seconds.
	RoundTime int `json:"roundTime"`
}

// MessageMatchFinished is used with MessageTypeMatchFinished.
type MessageMatchFinished struct {
	WinningTeam match.Team `json:"winningTeam"`
}
