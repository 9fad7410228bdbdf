// Package identity resolves authenticated sessions to chat identities.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Config holds token configuration.
type Config struct {
	SecretKey     string
	Issuer        string
	TokenDuration time.Duration
}

// Claims are the custom claims carried by session tokens.
type Claims struct {
	DisplayName string `json:"name"`
	Admin       bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and resolves session tokens.
type TokenManager struct {
	config Config
	now    func() time.Time
}

// NewTokenManager creates a new TokenManager with the given configuration.
func NewTokenManager(config Config) *TokenManager {
	return &TokenManager{
		config: config,
		now:    time.Now,
	}
}

// Issue signs a token for who.
func (m *TokenManager) Issue(who chat.Identity) (string, error) {
	if who.UserID <= 0 || who.DisplayName == "" {
		return "", fmt.Errorf("identity requires a user id and display name")
	}

	now := m.now()
	claims := Claims{
		DisplayName: who.DisplayName,
		Admin:       who.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   strconv.FormatInt(who.UserID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// Resolve validates tokenString and returns the identity it carries.
func (m *TokenManager) Resolve(tokenString string) (chat.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.SecretKey), nil
	},
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return chat.Identity{}, ErrExpiredToken
		}
		return chat.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return chat.Identity{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.DisplayName == "" {
		return chat.Identity{}, ErrInvalidToken
	}

	return chat.Identity{
		UserID:      userID,
		DisplayName: claims.DisplayName,
		Admin:       claims.Admin,
	}, nil
}
