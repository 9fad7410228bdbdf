package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/roomchat/domain/chat"
)

// Envelope commands on the topic websocket path.
const (
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandSend        = "SEND"
	CommandMessage     = "MESSAGE"
	CommandError       = "ERROR"
)

const (
	appChatPrefix     = "/app/chat/"
	noticeDestination = "/app/notice/send"
)

var (
	errUnknownCommand     = errors.New("unknown command")
	errUnknownDestination = errors.New("unknown destination")
)

// Envelope is the frame wrapper exchanged on the topic path.
type Envelope struct {
	Command     string          `json:"command"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
	Message     string          `json:"message,omitempty"`
}

type appAction string

const (
	actionEnter   appAction = "enter"
	actionExit    appAction = "exit"
	actionMessage appAction = "message"
	actionNotice  appAction = "notice"
)

type noticeBody struct {
	Message string `json:"message"`
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", chat.ErrMalformedMessage, err)
	}
	env.Command = strings.ToUpper(strings.TrimSpace(env.Command))
	if env.Command == "" {
		return Envelope{}, fmt.Errorf("%w: command is required", chat.ErrMalformedMessage)
	}
	return env, nil
}

func encodeMessage(destination string, body []byte) ([]byte, error) {
	return json.Marshal(Envelope{
		Command:     CommandMessage,
		Destination: destination,
		Body:        json.RawMessage(body),
	})
}

func encodeError(message string) []byte {
	data, _ := json.Marshal(Envelope{Command: CommandError, Message: message})
	return data
}

// parseAppDestination maps a SEND destination to its action and room.
func parseAppDestination(destination string) (appAction, int64, error) {
	if destination == noticeDestination {
		return actionNotice, 0, nil
	}

	rest, ok := strings.CutPrefix(destination, appChatPrefix)
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", errUnknownDestination, destination)
	}
	verb, id, ok := strings.Cut(rest, "/")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", errUnknownDestination, destination)
	}

	action := appAction(verb)
	switch action {
	case actionEnter, actionExit, actionMessage:
	default:
		return "", 0, fmt.Errorf("%w: %q", errUnknownDestination, destination)
	}

	roomID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || roomID <= 0 {
		return "", 0, fmt.Errorf("%w: invalid room in %q", errUnknownDestination, destination)
	}
	return action, roomID, nil
}
