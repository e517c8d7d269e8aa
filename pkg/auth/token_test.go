package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
)

func testCodec(t *testing.T, minutes int) *Codec {
	t.Helper()
	codec, err := NewCodec(config.JWTConfig{
		Secret:            "secret",
		Issuer:            "rfqmarket",
		ExpirationMinutes: minutes,
		LeewaySeconds:     5,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestMintAndParse(t *testing.T) {
	codec := testCodec(t, 30)
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := codec.Mint(now, AccessTokenPayload{UserID: userID, Role: enums.ActorRoleSupplier})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := codec.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if claims.UserID != userID || claims.Subject != userID.String() {
		t.Fatalf("unexpected subject %s / %s", claims.UserID, claims.Subject)
	}
	if claims.Role != enums.ActorRoleSupplier {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != "rfqmarket" || claims.ID == "" {
		t.Fatalf("unexpected registered claims %+v", claims.RegisteredClaims)
	}
	if got := claims.ExpiresAt.Sub(now.Add(30 * time.Minute)).Abs(); got >= time.Second {
		t.Fatalf("expiry off by %v", got)
	}
}

func TestParseRejectsTamperedOrForeignTokens(t *testing.T) {
	codec := testCodec(t, 10)
	token, err := codec.Mint(time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := codec.Parse(token + "x"); err == nil {
		t.Fatal("expected invalid signature error")
	}

	other, err := NewCodec(config.JWTConfig{Secret: "secret", Issuer: "someone-else", ExpirationMinutes: 10})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Parse(token); !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}
}

func TestParseExpiredBeyondLeeway(t *testing.T) {
	codec := testCodec(t, 15)
	token, err := codec.Mint(time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := codec.Parse(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expiration error, got %v", err)
	}
}

func TestParseWithinLeeway(t *testing.T) {
	codec := testCodec(t, 1)
	token, err := codec.Mint(time.Now().Add(-62*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := codec.Parse(token); err != nil {
		t.Fatalf("token two seconds past expiry should pass with leeway: %v", err)
	}
}

func TestParseRejectsUnknownRole(t *testing.T) {
	codec := testCodec(t, 15)
	now := time.Now()
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rfqmarket",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Parse(signed); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("expected invalid claims, got %v", err)
	}
}

func TestParseRejectsMissingExpiry(t *testing.T) {
	codec := testCodec(t, 15)
	claims := AccessTokenClaims{
		UserID:           uuid.New(),
		Role:             enums.ActorRoleBuyer,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "rfqmarket"},
	}
	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Parse(signed); err == nil {
		t.Fatal("expected missing exp to be rejected")
	}
}

func TestMintRejectsInvalidPayload(t *testing.T) {
	codec := testCodec(t, 5)
	now := time.Now()

	if _, err := codec.Mint(now, AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected invalid role error")
	}
	if _, err := codec.Mint(now, AccessTokenPayload{Role: enums.ActorRoleBuyer}); err == nil {
		t.Fatal("expected missing user error")
	}
}

func TestNewCodecValidatesConfig(t *testing.T) {
	cases := map[string]config.JWTConfig{
		"secret": {Issuer: "i", ExpirationMinutes: 1},
		"issuer": {Secret: "s", ExpirationMinutes: 1},
		"ttl":    {Secret: "s", Issuer: "i"},
		"leeway": {Secret: "s", Issuer: "i", ExpirationMinutes: 1, LeewaySeconds: -1},
	}
	for name, cfg := range cases {
		if _, err := NewCodec(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}
