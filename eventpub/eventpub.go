// Package eventpub publishes match events to an MQTT broker so that external
// consumers like spectator overlays and stat collectors can follow the match
// without holding a game connection.
package eventpub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/match"
	"go.uber.org/zap"
)

const mqttClientID = "spikematch-server"
const baseTopic = "spikematch/match"
const mqttKeepAlive = 8

const mqttQOS = 0

// Config is the config for the Publisher.
type Config struct {
	// MQTTAddr is the address where the MQTT-server is found.
	MQTTAddr string
}

// Publisher forwards all store events to the MQTT broker. Each event type
// gets its own topic below baseTopic. Create via NewPublisher and run with
// Publisher.Run.
type Publisher struct {
	logger *zap.Logger
	store  *match.Store
	// brokerURL is the URL of the MQTT broker.
	brokerURL *url.URL
}

// eventMessage is the published payload. Only set fields are included.
type eventMessage struct {
	Type        match.EventType `json:"type"`
	PlayerID    match.PlayerID  `json:"playerId,omitempty"`
	AbilityID   string          `json:"abilityId,omitempty"`
	Amount      int             `json:"amount,omitempty"`
	WinningTeam match.Team      `json:"winningTeam,omitempty"`
	RoundNumber int             `json:"roundNumber,omitempty"`
}

// NewPublisher creates a Publisher for the given store. Run it with
// Publisher.Run.
func NewPublisher(logger *zap.Logger, store *match.Store, config Config) (*Publisher, error) {
	brokerURL, err := url.Parse(config.MQTTAddr)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "invalid mqtt addr",
			errors.Details{"was": config.MQTTAddr})
	}
	return &Publisher{
		logger:    logger,
		store:     store,
		brokerURL: brokerURL,
	}, nil
}

// Run connects to the MQTT broker and publishes store events until the given
// context is done.
func (p *Publisher) Run(ctx context.Context) error {
	conn, err := autopaho.NewConnection(ctx, p.genClientConfig())
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "create mqtt server connection failed", nil)
	}
	events := p.store.SubscribeEvents(ctx)
	for event := range events {
		p.publish(ctx, conn, event)
	}
	// Shutdown MQTT connection.
	disconnectTimeout, cancelDisconnectTimeout := context.WithTimeout(context.Background(), 3*time.Second)
	err = conn.Disconnect(disconnectTimeout)
	cancelDisconnectTimeout()
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "disconnect from mqtt server failed", nil)
	}
	return nil
}

// publish publishes a single event. Errors are logged, a lost event never
// stops the match.
func (p *Publisher) publish(ctx context.Context, conn *autopaho.ConnectionManager, event match.Event) {
	payloadRaw, err := json.Marshal(eventMessage{
		Type:        event.Type,
		PlayerID:    event.PlayerID,
		AbilityID:   event.AbilityID,
		Amount:      event.Amount,
		WinningTeam: event.WinningTeam,
		RoundNumber: event.RoundNumber,
	})
	if err != nil {
		errors.Log(p.logger, errors.NewInternalErrorFromErr(err, "marshal event for publishing",
			errors.Details{"event_type": event.Type}))
		return
	}
	topic := fmt.Sprintf("%s/%s", baseTopic, event.Type)
	_, err = conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     mqttQOS,
		Payload: payloadRaw,
	})
	if err != nil {
		errors.Log(p.logger, errors.NewCommunicationErrorFromErr(err, "publish event failed",
			errors.Details{"topic": topic}))
	}
}

// genClientConfig generates the autopaho.ClientConfig that is ready to
// launch.
func (p *Publisher) genClientConfig() autopaho.ClientConfig {
	return autopaho.ClientConfig{
		BrokerUrls: []*url.URL{p.brokerURL},
		KeepAlive:  mqttKeepAlive,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt server connection established")
		},
		OnConnectError: func(err error) {
			errors.Log(p.logger, errors.Error{
				Code:    errors.ErrCommunication,
				Err:     err,
				Message: "mqtt server connection failed",
			})
		},
		ClientConfig: paho.ClientConfig{
			ClientID: mqttClientID,
			OnServerDisconnect: func(disconnect *paho.Disconnect) {
				reason := string(disconnect.ReasonCode)
				if disconnect.Properties != nil {
					reason = disconnect.Properties.ReasonString
				}
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Message: fmt.Sprintf("mqtt server requested disconnect: %s", reason),
				})
			},
			OnClientError: func(err error) {
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Err:     err,
					Message: "mqtt server connection client error",
				})
			},
		},
	}
}
