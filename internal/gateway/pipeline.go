package gateway

import (
	"context"

	"messenger/internal/domain"
	"messenger/internal/service"
	"messenger/internal/session"
	apperrors "messenger/pkg/errors"
)

// Interceptor - шаг проверки входящего фрейма. Ошибка прерывает
// цепочку и уходит ERROR-фреймом только отправителю.
type Interceptor func(ctx context.Context, s *Session, f *Frame) error

type Pipeline struct {
	steps []Interceptor
}

func NewPipeline(steps ...Interceptor) *Pipeline {
	return &Pipeline{steps: steps}
}

func (p *Pipeline) Run(ctx context.Context, s *Session, f *Frame) error {
	for _, step := range p.steps {
		if err := step(ctx, s, f); err != nil {
			return err
		}
	}
	return nil
}

// PaceFrames ограничивает темп обработки фреймов одного соединения
func PaceFrames() Interceptor {
	return func(_ context.Context, s *Session, _ *Frame) error {
		s.pace()
		return nil
	}
}

// RequireIdentity пропускает без регистрации только CONNECT и DISCONNECT
func RequireIdentity(registry *session.Registry) Interceptor {
	return func(_ context.Context, s *Session, f *Frame) error {
		switch f.Command {
		case CommandConnect, CommandDisconnect:
			return nil
		}
		if _, ok := registry.Resolve(s.ID); !ok {
			return apperrors.ErrUnauthorized
		}
		return nil
	}
}

var sendDestinations = map[string]bool{
	DestinationSendMessage:   true,
	DestinationCallOffer:     true,
	DestinationCallAnswer:    true,
	DestinationCallCandidate: true,
	DestinationCallHeartbeat: true,
}

func ValidateDestination() Interceptor {
	return func(_ context.Context, _ *Session, f *Frame) error {
		switch f.Command {
		case CommandConnect, CommandDisconnect:
			return nil
		case CommandSubscribe:
			if _, _, ok := domain.ParseTopic(f.Destination); !ok {
				return apperrors.BadRequest("unknown topic %q", f.Destination)
			}
		case CommandUnsubscribe:
			if f.Destination == "" && f.Header(HeaderID) == "" {
				return apperrors.BadRequest("unsubscribe needs a destination or id")
			}
		case CommandSend:
			if !sendDestinations[f.Destination] {
				return apperrors.BadRequest("unknown destination %q", f.Destination)
			}
		default:
			return apperrors.BadRequest("unsupported command %q", f.Command)
		}
		return nil
	}
}

// AuthorizeSubscription: chat/{id} и call/{id} только участникам чата,
// messages/{userId} только самому пользователю. Членство проверяется
// на каждом SUBSCRIBE.
func AuthorizeSubscription(registry *session.Registry, chats service.ChatService) Interceptor {
	return func(ctx context.Context, s *Session, f *Frame) error {
		if f.Command != CommandSubscribe {
			return nil
		}
		cred, ok := registry.Resolve(s.ID)
		if !ok {
			return apperrors.ErrUnauthorized
		}

		kind, id, _ := domain.ParseTopic(f.Destination)
		switch kind {
		case domain.TopicChat, domain.TopicCall:
			return chats.RequireMember(ctx, id, cred.UserID)
		case domain.TopicMessages:
			if id != cred.UserID {
				return apperrors.ErrForbidden
			}
			return nil
		default:
			return apperrors.BadRequest("unknown topic %q", f.Destination)
		}
	}
}
