package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"messenger/internal/config"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/jwt"
	"messenger/pkg/logger"
)

const (
	AuthorizationHeader = "Authorization"
	AccessTokenParam    = "access_token"
	bearerPrefix        = "bearer "
)

// Identity - результат успешной проверки bearer-токена
type Identity struct {
	UserID    int64
	Username  string
	Token     string
	ExpiresAt time.Time
}

// Gatekeeper проверяет bearer-токены при апгрейде соединения,
// на CONNECT-фрейме и в HTTP API.
type Gatekeeper interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
	// Reverify повторно проверяет подпись и срок сохраненного токена
	Reverify(token string) (*Identity, error)
}

type gatekeeper struct {
	users  repository.UserRepository
	jwtCfg config.JWTConfig
	log    logger.Logger
}

func NewGatekeeper(users repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) Gatekeeper {
	return &gatekeeper{
		users:  users,
		jwtCfg: jwtCfg,
		log:    log,
	}
}

func (g *gatekeeper) Authenticate(ctx context.Context, token string) (*Identity, error) {
	identity, err := g.Reverify(token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetByUsername(ctx, identity.Username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			g.log.Warn("Token subject is unknown", "username", identity.Username)
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		g.log.Warn("Token subject is deactivated", "username", identity.Username)
		return nil, apperrors.ErrInvalidToken
	}
	if identity.UserID != 0 && identity.UserID != user.ID {
		g.log.Warn("Token user id does not match directory", "username", identity.Username)
		return nil, apperrors.ErrInvalidToken
	}

	identity.UserID = user.ID
	return identity, nil
}

func (g *gatekeeper) Reverify(token string) (*Identity, error) {
	if token == "" {
		return nil, apperrors.ErrUnauthorized
	}

	claims, err := jwt.ValidateToken(token, g.jwtCfg.AccessSecret, g.jwtCfg.Issuer)
	if err != nil {
		return nil, err
	}

	identity := &Identity{
		UserID:   claims.UserID,
		Username: claims.Username(),
		Token:    token,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	return identity, nil
}

// BearerFromHeader вырезает токен из значения "Bearer <token>".
// Значение без схемы считается самим токеном.
func BearerFromHeader(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(value[len(bearerPrefix):])
	}
	if strings.ContainsRune(value, ' ') {
		return ""
	}
	return value
}

// ExtractBearer ищет токен в заголовке Authorization, затем в query
// параметре access_token, затем в cookie access_token. Браузерный
// WebSocket не умеет слать заголовки, поэтому нужны запасные варианты.
func ExtractBearer(r *http.Request) string {
	if header := r.Header.Get(AuthorizationHeader); header != "" {
		return BearerFromHeader(header)
	}
	if token := r.URL.Query().Get(AccessTokenParam); token != "" {
		return token
	}
	if cookie, err := r.Cookie(AccessTokenParam); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
