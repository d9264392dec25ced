package messages

import (
	"encoding/json"

	"github.com/lefinal/spikematch/errors"
)

// ParseContainer parses the given raw message into a MessageContainer.
func ParseContainer(raw []byte) (MessageContainer, error) {
	var container MessageContainer
	if err := json.Unmarshal(raw, &container); err != nil {
		return MessageContainer{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Err:     err,
			Message: "parse message container",
			Details: errors.Details{"raw": string(raw)},
		}
	}
	if container.MessageType == "" {
		return MessageContainer{}, errors.NewBadRequestError("missing message type",
			errors.Details{"raw": string(raw)})
	}
	return container, nil
}

// ParsePayload parses the container's content based on its message type. The
// returned payload is a pointer to the matching Message struct or nil for
// message types without payload. Unknown message types yield an
// ErrBadRequest error.
func ParsePayload(container MessageContainer) (interface{}, error) {
	var payload interface{}
	switch container.MessageType {
	case MessageTypeJoin:
		payload = &MessageJoin{}
	case MessageTypeMove:
		payload = &MessageMove{}
	case MessageTypeUseAbility:
		payload = &MessageUseAbility{}
	case MessageTypeWelcome:
		payload = &MessageWelcome{}
	case MessageTypeError:
		payload = &MessageError{}
	case MessageTypePlayerJoined:
		payload = &MessagePlayerJoined{}
	case MessageTypePlayerLeft:
		payload = &MessagePlayerLeft{}
	case MessageTypePlayerMoved:
		payload = &MessagePlayerMoved{}
	case MessageTypePlayerFired:
		payload = &MessagePlayerFired{}
	case MessageTypePlayerDamaged:
		payload = &MessagePlayerDamaged{}
	case MessageTypeWeaponReloaded:
		payload = &MessageWeaponReloaded{}
	case MessageTypeAbilityUsed:
		payload = &MessageAbilityUsed{}
	case MessageTypeAbilityReady:
		payload = &MessageAbilityReady{}
	case MessageTypeRoundReset:
		payload = &MessageRoundReset{}
	case MessageTypeMatchFinished:
		payload = &MessageMatchFinished{}
	case MessageTypeLeave,
		MessageTypeFire,
		MessageTypeReload,
		MessageTypePlantSpike,
		MessageTypeDefuseSpike,
		MessageTypeSpikePlanted,
		MessageTypeSpikeDefused,
		MessageTypeSpikeExploded:
		// No payload.
		return nil, nil
	default:
		return nil, errors.NewBadRequestError("unknown message type",
			errors.Details{"message_type": container.MessageType})
	}
	if err := json.Unmarshal(container.Content, payload); err != nil {
		return nil, errors.Error{
			Code:    errors.ErrBadRequest,
			Err:     err,
			Message: "parse message payload",
			Details: errors.Details{
				"message_type": container.MessageType,
				"content":      string(container.Content),
			},
		}
	}
	return payload, nil
}

// NewContainer creates a MessageContainer with the given payload. A nil
// payload creates a container without content.
func NewContainer(messageType MessageType, payload interface{}) (MessageContainer, error) {
	container := MessageContainer{MessageType: messageType}
	if payload != nil {
		content, err := json.Marshal(payload)
		if err != nil {
			return MessageContainer{}, errors.NewInternalErrorFromErr(err, "marshal message payload",
				errors.Details{"message_type": messageType})
		}
		container.Content = content
	}
	return container, nil
}

// MarshalContainer marshals the given container for sending.
func MarshalContainer(container MessageContainer) ([]byte, error) {
	raw, err := json.Marshal(container)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "marshal message container",
			errors.Details{"message_type": container.MessageType})
	}
	return raw, nil
}

// MarshalContainerMust marshals the given container and panics if an error
// occurs. Use only for containers built from known-good payloads.
func MarshalContainerMust(container MessageContainer) []byte {
	raw, err := MarshalContainer(container)
	if err != nil {
		panic(err)
	}
	return raw
}
