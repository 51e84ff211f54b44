package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userTokenAudience    = "tubekit-user"
	visitorTokenAudience = "tubekit-visitor"
	tokenIssuer          = "tubekit"
)

// ErrInvalidToken is returned for malformed, expired or foreign tokens.
var ErrInvalidToken = errors.New("invalid token")

// UserClaims is the payload of a user access token.
type UserClaims struct {
	UserID uint64 `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueUserToken signs an access token for userID.
func IssueUserToken(secret string, userID uint64, role string, expiry time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("security: empty jwt secret")
	}
	claims := UserClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{userTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseUserToken validates a user access token.
func ParseUserToken(secret, token string) (*UserClaims, error) {
	claims := &UserClaims{}
	if errParse := parseHS256(secret, token, userTokenAudience, claims); errParse != nil {
		return nil, errParse
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VisitorClaims identifies an anonymous browser across requests.
type VisitorClaims struct {
	VisitorID string `json:"vid"`
	jwt.RegisteredClaims
}

// NewVisitorID returns a fresh random visitor identifier.
func NewVisitorID() string {
	return uuid.NewString()
}

// IssueVisitorToken signs a visitor cookie value.
func IssueVisitorToken(secret, visitorID string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("security: empty visitor secret")
	}
	claims := VisitorClaims{
		VisitorID: visitorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{visitorTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseVisitorToken validates a visitor cookie value and returns the visitor ID.
func ParseVisitorToken(secret, token string) (string, error) {
	claims := &VisitorClaims{}
	if errParse := parseHS256(secret, token, visitorTokenAudience, claims); errParse != nil {
		return "", errParse
	}
	if _, errUUID := uuid.Parse(claims.VisitorID); errUUID != nil {
		return "", ErrInvalidToken
	}
	return claims.VisitorID, nil
}

func parseHS256(secret, token, audience string, claims jwt.Claims) error {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if errParse != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, errParse)
	}
	return nil
}
