package gateway

import (
	"encoding/json"
	"errors"
	"strings"

	apperrors "messenger/pkg/errors"
)

type Command string

// Команды клиента
const (
	CommandConnect     Command = "CONNECT"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandDisconnect  Command = "DISCONNECT"
)

// Команды сервера
const (
	CommandConnected Command = "CONNECTED"
	CommandMessage   Command = "MESSAGE"
	CommandReceipt   Command = "RECEIPT"
	CommandError     Command = "ERROR"
)

const (
	HeaderAuthorization = "authorization"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderSubscription  = "subscription"
	HeaderID            = "id"
	HeaderSession       = "session"
	HeaderUserName      = "user-name"
	HeaderReplay        = "replay"
	HeaderCode          = "code"
	HeaderMessage       = "message"
)

// Destination'ы команды SEND
const (
	DestinationSendMessage   = "sendMessage"
	DestinationCallOffer     = "call/offer"
	DestinationCallAnswer    = "call/answer"
	DestinationCallCandidate = "call/ice-candidate"
	DestinationCallHeartbeat = "call/heartbeat"
)

const maxFrameSize = 64 << 10

// Frame - единица realtime-протокола, JSON поверх сокета
type Frame struct {
	Command     Command           `json:"command"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

var errEmptyCommand = errors.New("frame has no command")

func ParseFrame(data []byte) (*Frame, error) {
	if len(data) > maxFrameSize {
		return nil, apperrors.BadRequest("frame exceeds %d bytes", maxFrameSize)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, apperrors.BadRequest("malformed frame: %v", err)
	}
	if frame.Command == "" {
		return nil, apperrors.BadRequest("%v", errEmptyCommand)
	}

	frame.Command = Command(strings.ToUpper(string(frame.Command)))
	if len(frame.Headers) > 0 {
		normalized := make(map[string]string, len(frame.Headers))
		for k, v := range frame.Headers {
			normalized[strings.ToLower(k)] = v
		}
		frame.Headers = normalized
	}

	return &frame, nil
}

// Header - заголовки сравниваются без учета регистра
func (f *Frame) Header(name string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[strings.ToLower(name)]
}

func newFrame(cmd Command, headers map[string]string) *Frame {
	if headers == nil {
		headers = map[string]string{}
	}
	return &Frame{Command: cmd, Headers: headers}
}

func connectedFrame(sessionID, username string) *Frame {
	return newFrame(CommandConnected, map[string]string{
		HeaderSession:  sessionID,
		HeaderUserName: username,
	})
}

func receiptFrame(receiptID string) *Frame {
	return newFrame(CommandReceipt, map[string]string{HeaderReceiptID: receiptID})
}

func messageFrame(topic, subscriptionID string, payload []byte) *Frame {
	f := newFrame(CommandMessage, map[string]string{HeaderSubscription: subscriptionID})
	f.Destination = topic
	f.Body = json.RawMessage(payload)
	return f
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorFrame не раскрывает детали внутренних ошибок
func errorFrame(err error, receiptID string) *Frame {
	code := apperrors.CodeFromError(err)
	message := apperrors.PublicMessage(err)

	f := newFrame(CommandError, map[string]string{
		HeaderCode:    code,
		HeaderMessage: message,
	})
	if receiptID != "" {
		f.Headers[HeaderReceiptID] = receiptID
	}
	f.Body, _ = json.Marshal(errorBody{Code: code, Message: message})
	return f
}
