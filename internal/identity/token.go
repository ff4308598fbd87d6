package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "crm"

// accessClaims are carried by the access token. The session ID links the token to its
// server-side session, so revoking the session revokes the token.
type accessClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type tokenSigner struct {
	secret []byte
}

func (s *tokenSigner) issue(userID, sessionID uuid.UUID, issuedAt, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// parse validates the signature, issuer and expiry and returns the user and session IDs.
func (s *tokenSigner) parse(tokenStr string) (userID, sessionID uuid.UUID, err error) {
	claims := &accessClaims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	userID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}

	sessionID, err = uuid.Parse(claims.SessionID)
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("invalid session claim")
	}

	return userID, sessionID, nil
}
