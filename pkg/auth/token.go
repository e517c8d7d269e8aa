package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// ErrInvalidClaims is returned for a correctly signed token whose actor
// fields are unusable.
var ErrInvalidClaims = errors.New("invalid token claims")

// Codec signs and verifies HS256 access tokens for one issuer. Token
// issuance belongs to the identity service; Mint serves tests and tooling.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewCodec(cfg config.JWTConfig) (*Codec, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	case cfg.LeewaySeconds < 0:
		return nil, errors.New("jwt leeway must not be negative")
	}
	return &Codec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(time.Duration(cfg.LeewaySeconds)*time.Second),
		),
	}, nil
}

func (c *Codec) Mint(now time.Time, payload AccessTokenPayload) (string, error) {
	if err := payload.validate(); err != nil {
		return "", err
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry, then the actor claims.
func (c *Codec) Parse(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if _, err := c.parser.ParseWithClaims(tokenString, claims, c.key); err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidClaims)
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, claims.Role)
	}
	return claims, nil
}

func (c *Codec) key(token *jwt.Token) (any, error) {
	if token.Method != jwtSigningMethod {
		return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
	}
	return c.secret, nil
}

// MintAccessToken is a one-shot Mint for callers without a Codec.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	codec, err := NewCodec(cfg)
	if err != nil {
		return "", err
	}
	return codec.Mint(now, payload)
}
