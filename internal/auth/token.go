// Package auth проверяет JWT, выданные внешним сервисом аутентификации,
// и решает, может ли вызывающий действовать от имени пользователя.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

var (
	// ErrMissingToken: запрос без bearer-токена.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken: подпись, срок или claims токена не прошли проверку.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden: токен валиден, но не даёт прав на запрошенного пользователя.
	ErrForbidden = errors.New("forbidden")
)

// Identity: вызывающий, извлечённый из claims sub и role.
type Identity struct {
	Username string
	Role     domain.Role
}

// IsAdmin сообщает, есть ли у вызывающего административная роль.
func (i Identity) IsAdmin() bool {
	return i.Role == domain.RoleAdmin
}

// Verifier проверяет HS256-токены общим секретом.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier возвращает nil для пустого секрета: аутентификация выключена.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify разбирает токен и возвращает identity вызывающего.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, fmt.Errorf("%w: subject claim is required", ErrInvalidToken)
	}

	role := domain.RoleUser
	if claim, ok := claims["role"].(string); ok && claim != "" {
		role = domain.Role(claim)
	}
	return Identity{Username: subject, Role: role}, nil
}

// BearerToken извлекает токен из значения заголовка Authorization.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// SignToken выпускает HS256-токен. Используется в тестах и нагрузочном клиенте.
func SignToken(secret, username string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Authorize разрешает действовать от имени username владельцу или администратору.
func Authorize(identity Identity, username string) error {
	if identity.IsAdmin() || identity.Username == username {
		return nil
	}
	return fmt.Errorf("%w: %s cannot act for %s", ErrForbidden, identity.Username, username)
}

// RequireAdmin пропускает только администраторов.
func RequireAdmin(identity Identity) error {
	if identity.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%w: admin role required", ErrForbidden)
}

type identityKey struct{}

// WithIdentity кладёт identity в контекст запроса.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext достаёт identity, если запрос был аутентифицирован.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
