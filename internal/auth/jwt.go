package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "valorpoint"
	clockLeeway = 30 * time.Second
)

var ErrSubjectMismatch = errors.New("token subject does not match user_id")

// Claims identify the caller. IsAdmin is the admin privilege claim; it is a
// hint for the Gate, which re-verifies it against the account store.
type Claims struct {
	UserID  uuid.UUID
	Email   string
	IsAdmin bool
}

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Admin  bool   `json:"admin,omitempty"`
}

func GenerateToken(c Claims, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   c.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID: c.UserID.String(),
		Email:  c.Email,
		Admin:  c.IsAdmin,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

// ValidateToken accepts only HS256 tokens issued by this service whose
// subject and user_id agree.
func ValidateToken(tokenString string, secret string) (*Claims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &tc,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	userID, err := uuid.Parse(tc.UserID)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: user_id: %w", err)
	}
	if tc.Subject != tc.UserID {
		return nil, fmt.Errorf("ValidateToken: %w", ErrSubjectMismatch)
	}

	return &Claims{
		UserID:  userID,
		Email:   tc.Email,
		IsAdmin: tc.Admin,
	}, nil
}
