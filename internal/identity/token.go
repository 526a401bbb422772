package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidCaller is returned when a token's subject is not an address.
var ErrInvalidCaller = errors.New("token subject is not an address")

// CallerClaims are the JWT claims of a caller token. The subject is the
// checksummed hex address the bearer acts as.
type CallerClaims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

// Caller returns the address the token is bound to.
func (c *CallerClaims) Caller() common.Address {
	return common.HexToAddress(c.Address)
}

// TokenIssuer issues and verifies caller tokens signed with HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	secret: HMAC key shared by every node that verifies tokens.
//	issuer: the "iss" claim value.
//	ttl:    token lifetime (default: 24 hours).
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue creates a signed caller token for address.
func (t *TokenIssuer) Issue(address common.Address) (string, error) {
	now := time.Now().UTC()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   address.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Address: address.Hex(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign caller token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a caller token, returning its claims on success.
func (t *TokenIssuer) Verify(tokenStr string) (*CallerClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CallerClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify caller token: %w", err)
	}

	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid caller token claims")
	}
	if !common.IsHexAddress(claims.Address) || claims.Subject != claims.Address {
		return nil, ErrInvalidCaller
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }
