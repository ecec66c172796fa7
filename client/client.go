package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alejzeis/duet-relay/common"

	log "github.com/sirupsen/logrus"
)

// consoleHandler prints coordinator events, used by the interactive
// debug client.
type consoleHandler struct{}

func (consoleHandler) OnConnected(id string) {
	log.WithField("id", id).Info("Connected to coordinator")
}

func (consoleHandler) OnWaiting() {
	log.Info("Waiting for a random peer...")
}

func (consoleHandler) OnRoomWaiting(roomKey string) {
	log.WithField("room", roomKey).Info("Waiting in room...")
}

func (consoleHandler) OnPeerMatched(match common.MatchNotice) {
	log.WithFields(log.Fields{
		"partner":   match.PartnerID,
		"initiator": match.Initiator,
		"room":      match.RoomKey,
	}).Info("Matched with a peer")
}

func (consoleHandler) OnSignal(relay common.SignalRelay) {
	log.WithFields(log.Fields{
		"from":    relay.FromID,
		"payload": string(relay.Payload),
	}).Info("Negotiation signal")
}

func (consoleHandler) OnChatMessage(message common.ChatMessage) {
	fmt.Printf("[%s] %s\n", message.FromID, message.Text)
}

func (consoleHandler) OnTyping(event string, fromID string) {
	log.WithField("from", fromID).Debug(event)
}

func (consoleHandler) OnPeerDisconnected() {
	log.Info("Peer disconnected")
}

func (consoleHandler) OnClosed(err error) {
	if err != nil {
		log.WithError(err).Warn("Connection to coordinator lost")
	} else {
		log.Info("Connection to coordinator closed")
	}
}

// RunClient is the main method for running the interactive debug client
func RunClient() {
	log.Info("Client ready for commands.")
	scanner := bufio.NewScanner(os.Stdin)

	var session *Session
	var control *ControlClient

	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			break
		}
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}

		exploded := strings.SplitN(text, " ", 2)
		command := exploded[0]
		argument := ""
		if len(exploded) > 1 {
			argument = exploded[1]
		}

		if command == "connect" {
			// connect [server]
			if argument == "" {
				log.Error("Usage: \"connect [URL]\"")
				continue
			}

			control = NewControlClient(argument)
			info, err := control.Info()
			if err != nil {
				continue
			}
			log.WithFields(log.Fields{
				"software": info.Software,
				"version":  info.Version,
			}).Info("Coordinator reachable")

			session, err = Dial(argument, consoleHandler{})
			if err != nil {
				session = nil
			}
			continue
		}

		if session == nil {
			log.Error("Not connected, use \"connect [URL]\" first")
			continue
		}

		var err error
		switch command {
		case "find":
			err = session.FindPeer()
		case "cancel":
			err = session.CancelFind()
		case "join":
			if argument == "" {
				log.Error("Usage: \"join [room key]\"")
				continue
			}
			err = session.JoinRoom(argument)
		case "leave":
			if argument == "" {
				log.Error("Usage: \"leave [room key]\"")
				continue
			}
			err = session.LeaveRoom(argument)
		case "say":
			err = session.SendChat(argument)
		case "signal":
			err = session.SendSignal(json.RawMessage(argument))
		case "skip":
			err = session.Skip()
		case "stats":
			if loginErr := control.Login("console"); loginErr == nil {
				if stats, statsErr := control.Stats(); statsErr == nil {
					log.WithFields(log.Fields{
						"connections":   stats.Connections,
						"randomWaiting": stats.RandomWaiting,
						"waitingRooms":  stats.WaitingRooms,
						"pairs":         stats.Pairs,
					}).Info("Coordinator stats")
				}
			}
		case "quit":
			_ = session.Close()
			return
		default:
			log.WithField("command", command).Error("Unknown command")
		}

		if err != nil {
			log.WithField("command", command).WithError(err).Error("Command failed")
		}
	}
}
