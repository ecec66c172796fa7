package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejzeis/duet-relay/client"
	"github.com/alejzeis/duet-relay/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestCoordinatorEndToEnd(t *testing.T) {
	suite.Run(t, new(CoordinatorE2ETestSuite))
}

// End-to-end suite running a live coordinator with real websockets and
// the client package against it
type CoordinatorE2ETestSuite struct {
	suite.Suite

	coordinator *Coordinator
	httpServer  *httptest.Server
}

// Each test gets a fresh coordinator so leftover waiters from one
// scenario can never leak into the next
func (ts *CoordinatorE2ETestSuite) SetupTest() {
	ts.coordinator = NewCoordinator()
	control := newControlServer(ts.coordinator, []byte("e2e-test-secret"))
	ts.httpServer = httptest.NewServer(control.router())
}

func (ts *CoordinatorE2ETestSuite) TearDownTest() {
	ts.httpServer.Close()
}

// clientEvent flattens every handler callback into one comparable record
type clientEvent struct {
	name   string
	id     string
	room   string
	from   string
	text   string
	match  common.MatchNotice
	signal common.SignalRelay
}

// channelHandler funnels session callbacks into a channel the test can
// await on
type channelHandler struct {
	events chan clientEvent
}

func newChannelHandler() *channelHandler {
	return &channelHandler{events: make(chan clientEvent, 32)}
}

func (h *channelHandler) OnConnected(id string) {
	h.events <- clientEvent{name: common.EventConnected, id: id}
}

func (h *channelHandler) OnWaiting() {
	h.events <- clientEvent{name: common.EventWaiting}
}

func (h *channelHandler) OnRoomWaiting(roomKey string) {
	h.events <- clientEvent{name: common.EventRoomWaiting, room: roomKey}
}

func (h *channelHandler) OnPeerMatched(match common.MatchNotice) {
	h.events <- clientEvent{name: common.EventPeerMatched, match: match}
}

func (h *channelHandler) OnSignal(relay common.SignalRelay) {
	h.events <- clientEvent{name: common.EventRelaySignal, signal: relay}
}

func (h *channelHandler) OnChatMessage(message common.ChatMessage) {
	h.events <- clientEvent{name: common.EventChatMessage, from: message.FromID, text: message.Text}
}

func (h *channelHandler) OnTyping(event string, fromID string) {
	h.events <- clientEvent{name: event, from: fromID}
}

func (h *channelHandler) OnPeerDisconnected() {
	h.events <- clientEvent{name: common.EventPeerDisconnected}
}

func (h *channelHandler) OnClosed(err error) {}

// nextEvent awaits the next event delivered to the handler
func (ts *CoordinatorE2ETestSuite) nextEvent(handler *channelHandler) clientEvent {
	select {
	case event := <-handler.events:
		return event
	case <-time.After(3 * time.Second):
		ts.T().Fatal("Timed out waiting for an event from the coordinator")
		return clientEvent{}
	}
}

// expectQuiet asserts that no event reaches the handler for a short while
func (ts *CoordinatorE2ETestSuite) expectQuiet(handler *channelHandler, context string) {
	select {
	case event := <-handler.events:
		ts.T().Fatalf("Expected no event (%s), but received %q", context, event.name)
	case <-time.After(250 * time.Millisecond):
	}
}

// dialPeer opens a session and consumes the connected greeting
func (ts *CoordinatorE2ETestSuite) dialPeer() (*client.Session, *channelHandler, string) {
	handler := newChannelHandler()
	session, err := client.Dial(ts.httpServer.URL, handler)
	require.NoError(ts.T(), err, "Dialing the test coordinator should not fail")

	greeting := ts.nextEvent(handler)
	require.Equal(ts.T(), common.EventConnected, greeting.name, "The first event must be the connected greeting")
	require.NotEmpty(ts.T(), greeting.id, "The greeting must carry the assigned connection ID")

	return session, handler, greeting.id
}

// Full random-pairing walk: waiting, match with correct initiator flags,
// chat relay with sender stamping, disconnect propagation, silent drop
// after the partner is gone.
func (ts *CoordinatorE2ETestSuite) TestRandomPairingChatAndDisconnect() {
	sessionX, handlerX, idX := ts.dialPeer()
	sessionY, handlerY, idY := ts.dialPeer()
	defer sessionX.Close()

	require.NoError(ts.T(), sessionX.FindPeer())
	waiting := ts.nextEvent(handlerX)
	require.Equal(ts.T(), common.EventWaiting, waiting.name, "X should be told it is waiting before Y requests")

	require.NoError(ts.T(), sessionY.FindPeer())

	matchX := ts.nextEvent(handlerX)
	require.Equal(ts.T(), common.EventPeerMatched, matchX.name)
	assert.Equal(ts.T(), idY, matchX.match.PartnerID, "X's partner should be Y")
	assert.False(ts.T(), matchX.match.Initiator, "X was waiting, so X must not initiate")

	matchY := ts.nextEvent(handlerY)
	require.Equal(ts.T(), common.EventPeerMatched, matchY.name)
	assert.Equal(ts.T(), idX, matchY.match.PartnerID, "Y's partner should be X")
	assert.True(ts.T(), matchY.match.Initiator, "Y triggered the match, so Y initiates")

	require.NoError(ts.T(), sessionX.SendChat("hi"))
	chat := ts.nextEvent(handlerY)
	require.Equal(ts.T(), common.EventChatMessage, chat.name)
	assert.Equal(ts.T(), "hi", chat.text)
	assert.Equal(ts.T(), idX, chat.from, "The message must arrive stamped with X's ID")
	ts.expectQuiet(handlerX, "X's own chat message must not be echoed back")

	require.NoError(ts.T(), sessionX.SetTyping(true))
	typing := ts.nextEvent(handlerY)
	assert.Equal(ts.T(), common.EventTypingStart, typing.name)
	assert.Equal(ts.T(), idX, typing.from)

	require.NoError(ts.T(), sessionY.Close())
	gone := ts.nextEvent(handlerX)
	assert.Equal(ts.T(), common.EventPeerDisconnected, gone.name, "X should learn that Y disconnected")

	// X is desynchronized and still signals; the coordinator must drop it
	require.NoError(ts.T(), sessionX.SendSignal(json.RawMessage(`{"type":"offer"}`)))
	ts.expectQuiet(handlerX, "a signal with no partner should vanish silently")
}

// Room pairing walk plus skip: both joiners matched under the room key,
// then the skipping side re-enters random matchmaking.
func (ts *CoordinatorE2ETestSuite) TestRoomPairingAndSkip() {
	sessionX, handlerX, idX := ts.dialPeer()
	sessionY, handlerY, idY := ts.dialPeer()
	defer sessionX.Close()
	defer sessionY.Close()

	require.NoError(ts.T(), sessionX.JoinRoom("ABC123"))
	roomWaiting := ts.nextEvent(handlerX)
	require.Equal(ts.T(), common.EventRoomWaiting, roomWaiting.name)
	assert.Equal(ts.T(), "ABC123", roomWaiting.room)

	require.NoError(ts.T(), sessionY.JoinRoom("ABC123"))

	matchX := ts.nextEvent(handlerX)
	require.Equal(ts.T(), common.EventPeerMatched, matchX.name)
	assert.Equal(ts.T(), idY, matchX.match.PartnerID)
	assert.Equal(ts.T(), "ABC123", matchX.match.RoomKey, "The room key should ride along with the match")

	matchY := ts.nextEvent(handlerY)
	require.Equal(ts.T(), common.EventPeerMatched, matchY.name)
	assert.Equal(ts.T(), idX, matchY.match.PartnerID)
	assert.True(ts.T(), matchY.match.Initiator)

	// Signal relay across the room pair, verbatim payload
	payload := json.RawMessage(`{"candidate":"candidate:0 1 UDP 2122252543 192.0.2.1 54400 typ host"}`)
	require.NoError(ts.T(), sessionY.SendSignal(payload))
	signal := ts.nextEvent(handlerX)
	require.Equal(ts.T(), common.EventRelaySignal, signal.name)
	assert.JSONEq(ts.T(), string(payload), string(signal.signal.Payload))
	assert.Equal(ts.T(), idY, signal.signal.FromID)

	require.NoError(ts.T(), sessionX.Skip())
	gone := ts.nextEvent(handlerY)
	assert.Equal(ts.T(), common.EventPeerDisconnected, gone.name, "Y should learn its peer skipped away")

	rewaiting := ts.nextEvent(handlerX)
	assert.Equal(ts.T(), common.EventWaiting, rewaiting.name, "X should re-enter the waiting pool as a fresh seeker")
}

// The control API: info, token issue, stats, and rejection of forged tokens.
func (ts *CoordinatorE2ETestSuite) TestControlAPI() {
	control := client.NewControlClient(ts.httpServer.URL)

	info, err := control.Info()
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), common.SoftwareName, info.Software)
	assert.Equal(ts.T(), common.SoftwareVersion, info.Version)
	assert.Equal(ts.T(), common.APIVersion, info.API)

	_, err = control.Stats()
	assert.Error(ts.T(), err, "Stats without a prior login should fail")

	require.NoError(ts.T(), control.Login("e2e"))

	sessionX, handlerX, _ := ts.dialPeer()
	defer sessionX.Close()
	require.NoError(ts.T(), sessionX.FindPeer())
	require.Equal(ts.T(), common.EventWaiting, ts.nextEvent(handlerX).name)

	stats, err := control.Stats()
	require.NoError(ts.T(), err)
	assert.GreaterOrEqual(ts.T(), stats.Connections, 1, "At least the test's own connection should be counted")
	assert.True(ts.T(), stats.RandomWaiting, "The waiting X should show up in the stats")

	response, err := http.Get(ts.httpServer.URL + "/stats/not.a.token")
	require.NoError(ts.T(), err)
	defer response.Body.Close()
	assert.Equal(ts.T(), http.StatusForbidden, response.StatusCode, "A forged token must be rejected")
}
