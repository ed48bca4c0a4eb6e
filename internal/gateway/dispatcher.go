package gateway

import (
	"context"
	"encoding/json"

	"messenger/internal/domain"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type signalBody struct {
	ChatID  int64           `json:"chatId"`
	Payload json.RawMessage `json:"payload"`
}

type heartbeatBody struct {
	CallID int64 `json:"callId"`
}

// Dispatcher направляет SEND-фреймы в сервисы по destination
type Dispatcher struct {
	router service.MessageRouter
	calls  service.CallService
	log    logger.Logger
}

func NewDispatcher(router service.MessageRouter, calls service.CallService, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		router: router,
		calls:  calls,
		log:    log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, f *Frame) error {
	switch f.Destination {
	case DestinationSendMessage:
		var input service.SendMessageInput
		if err := decodeBody(f, &input); err != nil {
			return err
		}
		input.SenderID = userID
		_, err := d.router.SendMessage(ctx, input)
		return err

	case DestinationCallOffer, DestinationCallAnswer, DestinationCallCandidate:
		var body signalBody
		if err := decodeBody(f, &body); err != nil {
			return err
		}
		return d.calls.Relay(ctx, service.SignalInput{
			ChatID:   body.ChatID,
			SenderID: userID,
			Kind:     signalKind(f.Destination),
			Payload:  body.Payload,
		})

	case DestinationCallHeartbeat:
		var body heartbeatBody
		if err := decodeBody(f, &body); err != nil {
			return err
		}
		return d.calls.Heartbeat(ctx, body.CallID, userID)

	default:
		return apperrors.BadRequest("unknown destination %q", f.Destination)
	}
}

func signalKind(destination string) domain.SignalKind {
	switch destination {
	case DestinationCallOffer:
		return domain.SignalOffer
	case DestinationCallAnswer:
		return domain.SignalAnswer
	default:
		return domain.SignalICECandidate
	}
}

func decodeBody(f *Frame, v any) error {
	if len(f.Body) == 0 {
		return apperrors.BadRequest("frame body is required")
	}
	if err := json.Unmarshal(f.Body, v); err != nil {
		return apperrors.BadRequest("malformed body: %v", err)
	}
	return nil
}
