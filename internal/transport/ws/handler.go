package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/amittal/traderoom/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUnknownUser  = errors.New("unknown user")
)

// Identity is the result of a successful connection handshake.
type Identity struct {
	UserID      uuid.UUID
	Role        domain.Role
	Username    string
	DisplayName string
}

// Authenticator verifies a connection handshake before any event is
// accepted. A failure is fatal to the connection.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// JWTAuthenticator validates HMAC-signed tokens and resolves the subject
// against the user store.
type JWTAuthenticator struct {
	secret string
	users  repository.UserRepository
}

func NewJWTAuthenticator(secret string, users repository.UserRepository) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, users: users}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(a.secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}

	return &Identity{
		UserID:      user.ID,
		Role:        user.Role,
		Username:    user.Username,
		DisplayName: user.DisplayName,
	}, nil
}

// ServeWS returns an HTTP handler that upgrades to WebSocket. Auth is done
// via ?token=xxx query param before the upgrade; a connection that fails it
// is closed immediately and creates no relay state.
func ServeWS(relay *Relay, auth Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		identity, err := auth.Authenticate(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // origin checks handled by the edge proxy
		})
		if err != nil {
			relay.log.Warn("websocket accept", "err", err)
			return
		}

		client := NewClient(relay, conn, identity)
		relay.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
