package lobby

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lefinal/spikematch/catalog"
	"github.com/lefinal/spikematch/clock"
	"github.com/lefinal/spikematch/combat"
	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/match"
	"github.com/lefinal/spikematch/messages"
	"github.com/lefinal/spikematch/ws"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// receiveTimeout is the timeout for awaiting expected messages in tests.
const receiveTimeout = 3 * time.Second

type lobbyTestSuite struct {
	suite.Suite
	store    *match.Store
	lobby    *Lobby
	lifetime context.Context
	shutdown context.CancelFunc
}

func (suite *lobbyTestSuite) SetupTest() {
	c, err := catalog.New()
	suite.Require().NoError(err)
	suite.store = match.NewStore(zap.NewNop(), c, clock.NewManual(time.Unix(0, 0)), match.Config{})
	resolver := combat.NewResolver(zap.NewNop(), suite.store,
		func(_ match.Player, _ match.Snapshot) (match.PlayerID, bool) {
			return "", false
		})
	suite.lobby = NewLobby(zap.NewNop(), suite.store, resolver)
	suite.lifetime, suite.shutdown = context.WithCancel(context.Background())
	go func() {
		_ = suite.lobby.Run(suite.lifetime)
	}()
}

func (suite *lobbyTestSuite) TearDownTest() {
	suite.shutdown()
}

// newClient creates a client whose session is accepted by the lobby.
func (suite *lobbyTestSuite) newClient() *ws.Client {
	client := &ws.Client{
		ID:      uuid.New(),
		Send:    make(chan []byte, 64),
		Receive: make(chan []byte, 64),
	}
	go suite.lobby.AcceptClient(suite.lifetime, client)
	return client
}

// sendMessage sends the given message as the client.
func (suite *lobbyTestSuite) sendMessage(client *ws.Client, messageType messages.MessageType, payload interface{}) {
	container, err := messages.NewContainer(messageType, payload)
	suite.Require().NoError(err)
	client.Receive <- messages.MarshalContainerMust(container)
}

// receiveMessage awaits the next message of the given type for the client,
// skipping others.
func (suite *lobbyTestSuite) receiveMessage(client *ws.Client, messageType messages.MessageType) messages.MessageContainer {
	timeout := time.After(receiveTimeout)
	for {
		select {
		case <-timeout:
			suite.Require().FailNowf("timeout", "timeout while waiting for message %v", messageType)
			return messages.MessageContainer{}
		case raw := <-client.Send:
			container, err := messages.ParseContainer(raw)
			suite.Require().NoError(err)
			if container.MessageType == messageType {
				return container
			}
		}
	}
}

// join joins the client and returns the welcome message.
func (suite *lobbyTestSuite) join(client *ws.Client, username string, team match.Team) messages.MessageWelcome {
	suite.sendMessage(client, messages.MessageTypeJoin, messages.MessageJoin{
		Username:    username,
		Team:        team,
		CharacterID: "jett",
	})
	container := suite.receiveMessage(client, messages.MessageTypeWelcome)
	var welcome messages.MessageWelcome
	suite.Require().NoError(json.Unmarshal(container.Content, &welcome))
	return welcome
}

func (suite *lobbyTestSuite) TestJoinWelcome() {
	client := suite.newClient()
	welcome := suite.join(client, "alice", match.TeamAttackers)
	suite.Require().NotEmpty(welcome.PlayerID, "welcome should carry the assigned player id")
	player, ok := welcome.State.Players[welcome.PlayerID]
	suite.Require().True(ok, "welcome state should contain the joined player")
	suite.Assert().Equal("alice", player.Username)
	suite.Assert().Equal(match.TeamAttackers, player.Team)
}

func (suite *lobbyTestSuite) TestIntentBeforeJoin() {
	client := suite.newClient()
	suite.sendMessage(client, messages.MessageTypeFire, nil)
	container := suite.receiveMessage(client, messages.MessageTypeError)
	var messageError messages.MessageError
	suite.Require().NoError(json.Unmarshal(container.Content, &messageError))
	suite.Assert().Equal(string(errors.ErrProtocolViolation), messageError.Code,
		"intents before join should be a protocol violation")
}

func (suite *lobbyTestSuite) TestDoubleJoin() {
	client := suite.newClient()
	suite.join(client, "alice", match.TeamAttackers)
	suite.sendMessage(client, messages.MessageTypeJoin, messages.MessageJoin{
		Username:    "alice",
		Team:        match.TeamAttackers,
		CharacterID: "jett",
	})
	container := suite.receiveMessage(client, messages.MessageTypeError)
	var messageError messages.MessageError
	suite.Require().NoError(json.Unmarshal(container.Content, &messageError))
	suite.Assert().Equal(string(errors.ErrProtocolViolation), messageError.Code)
}

func (suite *lobbyTestSuite) TestBadMessage() {
	client := suite.newClient()
	client.Receive <- []byte("{not json")
	container := suite.receiveMessage(client, messages.MessageTypeError)
	var messageError messages.MessageError
	suite.Require().NoError(json.Unmarshal(container.Content, &messageError))
	suite.Assert().Equal(string(errors.ErrBadRequest), messageError.Code)
}

func (suite *lobbyTestSuite) TestJoinBroadcast() {
	clientA := suite.newClient()
	suite.join(clientA, "alice", match.TeamAttackers)
	clientB := suite.newClient()
	welcomeB := suite.join(clientB, "bob", match.TeamDefenders)
	container := suite.receiveMessage(clientA, messages.MessageTypePlayerJoined)
	var joined messages.MessagePlayerJoined
	suite.Require().NoError(json.Unmarshal(container.Content, &joined))
	suite.Assert().Equal(welcomeB.PlayerID, joined.Player.ID, "other clients should learn about the new player")
}

func (suite *lobbyTestSuite) TestMoveBroadcast() {
	clientA := suite.newClient()
	welcomeA := suite.join(clientA, "alice", match.TeamAttackers)
	clientB := suite.newClient()
	suite.join(clientB, "bob", match.TeamDefenders)
	position := match.Vector3{X: 1, Y: 2, Z: 3}
	suite.sendMessage(clientA, messages.MessageTypeMove, messages.MessageMove{Position: position})
	container := suite.receiveMessage(clientB, messages.MessageTypePlayerMoved)
	var moved messages.MessagePlayerMoved
	suite.Require().NoError(json.Unmarshal(container.Content, &moved))
	suite.Assert().Equal(welcomeA.PlayerID, moved.PlayerID)
	suite.Assert().Equal(position, moved.Position)
	// The store follows.
	player, err := suite.store.Player(welcomeA.PlayerID)
	suite.Require().NoError(err)
	suite.Assert().Equal(position, player.Position, "the store should hold the new position")
}

func (suite *lobbyTestSuite) TestMoveNotEchoed() {
	clientA := suite.newClient()
	suite.join(clientA, "alice", match.TeamAttackers)
	clientB := suite.newClient()
	suite.join(clientB, "bob", match.TeamDefenders)
	suite.sendMessage(clientA, messages.MessageTypeMove, messages.MessageMove{
		Position: match.Vector3{X: 1},
	})
	// The other client sees the move, the originator does not.
	suite.receiveMessage(clientB, messages.MessageTypePlayerMoved)
	select {
	case raw := <-clientA.Send:
		container, err := messages.ParseContainer(raw)
		suite.Require().NoError(err)
		suite.Assert().NotEqual(messages.MessageTypePlayerMoved, container.MessageType,
			"moves should not be echoed to their originator")
	case <-time.After(100 * time.Millisecond):
	}
}

func (suite *lobbyTestSuite) TestSpikeBroadcast() {
	clientA := suite.newClient()
	suite.join(clientA, "alice", match.TeamAttackers)
	clientB := suite.newClient()
	suite.join(clientB, "bob", match.TeamDefenders)
	suite.sendMessage(clientA, messages.MessageTypePlantSpike, nil)
	suite.receiveMessage(clientA, messages.MessageTypeSpikePlanted)
	suite.receiveMessage(clientB, messages.MessageTypeSpikePlanted)
	suite.Assert().Equal(match.SpikeStatusPlanted, suite.store.Snapshot().SpikeStatus)
}

func (suite *lobbyTestSuite) TestRejectedIntentIsSilent() {
	client := suite.newClient()
	welcome := suite.join(client, "alice", match.TeamAttackers)
	// Defusing an unplanted spike is rejected without a reply.
	suite.sendMessage(client, messages.MessageTypeDefuseSpike, nil)
	// A follow-up move still works, proving the session survived.
	suite.sendMessage(client, messages.MessageTypeMove, messages.MessageMove{
		Position: match.Vector3{X: 5},
	})
	suite.Require().Eventually(func() bool {
		player, err := suite.store.Player(welcome.PlayerID)
		return err == nil && player.Position.X == 5
	}, receiveTimeout, 10*time.Millisecond)
	select {
	case raw := <-client.Send:
		container, err := messages.ParseContainer(raw)
		suite.Require().NoError(err)
		suite.Assert().NotEqual(messages.MessageTypeError, container.MessageType,
			"rejected intents should not produce error replies")
	default:
	}
}

func (suite *lobbyTestSuite) TestJoinDuringBroadcastStorm() {
	clientA := suite.newClient()
	suite.join(clientA, "alice", match.TeamAttackers)
	// Keep the broadcast loop busy with moves while another client joins, so
	// session bookkeeping and broadcasting overlap.
	moveContainer, err := messages.NewContainer(messages.MessageTypeMove, messages.MessageMove{
		Position: match.Vector3{X: 1},
	})
	suite.Require().NoError(err)
	rawMove := messages.MarshalContainerMust(moveContainer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 40; i++ {
			clientA.Receive <- rawMove
		}
	}()
	clientB := suite.newClient()
	welcome := suite.join(clientB, "bob", match.TeamDefenders)
	suite.Assert().NotEmpty(welcome.PlayerID, "joining during busy broadcasting should work")
	<-done
}

func (suite *lobbyTestSuite) TestSessionEndsOnClosedConnection() {
	client := &ws.Client{
		ID:      uuid.New(),
		Send:    make(chan []byte, 64),
		Receive: make(chan []byte, 64),
	}
	done := make(chan struct{})
	go func() {
		suite.lobby.AcceptClient(suite.lifetime, client)
		close(done)
	}()
	close(client.Receive)
	select {
	case <-done:
	case <-time.After(receiveTimeout):
		suite.Require().FailNow("session should end when the connection closes")
	}
}

func (suite *lobbyTestSuite) TestGoodbyeRemovesPlayer() {
	clientA := suite.newClient()
	welcomeA := suite.join(clientA, "alice", match.TeamAttackers)
	clientB := suite.newClient()
	suite.join(clientB, "bob", match.TeamDefenders)
	suite.lobby.SayGoodbyeToClient(clientA)
	_, err := suite.store.Player(welcomeA.PlayerID)
	suite.Require().Error(err, "the player should be removed from the store")
	container := suite.receiveMessage(clientB, messages.MessageTypePlayerLeft)
	var left messages.MessagePlayerLeft
	suite.Require().NoError(json.Unmarshal(container.Content, &left))
	suite.Assert().Equal(welcomeA.PlayerID, left.PlayerID)
}

func TestLobby(t *testing.T) {
	suite.Run(t, new(lobbyTestSuite))
}
