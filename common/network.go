package common

import (
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Represents a bidirectional event channel between a client and the coordinator
// This is an abstracted type of websocket connections used by the matching and relay code, primarily to allow mocks for testing purposes
type EventConnection interface {
	// Reads the next event envelope, blocking
	ReadEvent() (Envelope, error)
	// Encodes and sends an event with its payload
	WriteEvent(event string, data interface{}) error
	// Sends a closing message and closes the connection
	CloseWithMessage(msg string) error
	// Closes the underlying socket
	Close() error
	// Determine if the connection has been closed or not
	IsClosed() bool
}

// Websocket implementation of EventConnection, framing envelopes as JSON text messages
type WebsocketEventConnection struct {
	socket *websocket.Conn
	closed bool

	writeMutex    sync.Mutex
	isClosedMutex sync.RWMutex
}

// NewWebsocketEventConnection wraps an already-upgraded websocket
func NewWebsocketEventConnection(socket *websocket.Conn) *WebsocketEventConnection {
	connection := new(WebsocketEventConnection)
	connection.socket = socket
	return connection
}

func (connection *WebsocketEventConnection) ReadEvent() (Envelope, error) {
	_, data, err := connection.socket.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			connection.isClosedMutex.Lock()
			connection.closed = true
			connection.isClosedMutex.Unlock()
		}
		return Envelope{}, err
	}

	return DecodeEnvelope(data)
}

func (connection *WebsocketEventConnection) WriteEvent(event string, data interface{}) error {
	encoded, err := EncodeEnvelope(event, data)
	if err != nil {
		return err
	}

	// gorilla websockets allow only one concurrent writer
	connection.writeMutex.Lock()
	defer connection.writeMutex.Unlock()

	return connection.socket.WriteMessage(websocket.TextMessage, encoded)
}

func (connection *WebsocketEventConnection) CloseWithMessage(msg string) error {
	connection.writeMutex.Lock()
	err := connection.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg))
	connection.writeMutex.Unlock()

	if err != nil {
		return err
	}
	return connection.Close()
}

func (connection *WebsocketEventConnection) Close() error {
	connection.isClosedMutex.Lock()
	defer connection.isClosedMutex.Unlock()

	if connection.closed {
		return nil
	}

	connection.closed = true
	return connection.socket.Close()
}

func (connection *WebsocketEventConnection) IsClosed() bool {
	connection.isClosedMutex.RLock()
	defer connection.isClosedMutex.RUnlock()

	return connection.closed
}

// DialEventConnection connects to a coordinator's websocket endpoint.
// Accepts http:// and https:// URLs for convenience and rewrites them
// to the websocket scheme.
func DialEventConnection(address string) (EventConnection, error) {
	if strings.HasPrefix(address, "http://") {
		address = strings.Replace(address, "http://", "ws://", 1)
	} else if strings.HasPrefix(address, "https://") {
		address = strings.Replace(address, "https://", "wss://", 1)
	}

	socket, _, err := websocket.DefaultDialer.Dial(address, nil)
	if err != nil {
		return nil, err
	}

	return NewWebsocketEventConnection(socket), nil
}
