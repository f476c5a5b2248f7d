package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMalformedToken is returned by TokenCodec.Parse for undecodable tokens.
var ErrMalformedToken = errors.New("malformed token")

// TokenClaims is what a token says about itself. The session table, not the
// claims, decides whether a token is valid.
type TokenClaims struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Nonce     string    `json:"nonce"`
}

// TokenCodec mints bearer tokens and reads them back.
type TokenCodec interface {
	Mint(userID string, expiresAt time.Time) (string, error)
	Parse(token string) (TokenClaims, error)
}

// OpaqueTokenCodec encodes claims as base64 JSON followed by a derived suffix.
//
// The suffix is base64(payload + "." + userID). It is reversible and anyone can
// forge it: this codec is NOT tamper-evident. Use SignedTokenCodec where the
// token itself must carry integrity.
type OpaqueTokenCodec struct{}

func (OpaqueTokenCodec) Mint(userID string, expiresAt time.Time) (string, error) {
	raw, err := json.Marshal(TokenClaims{
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		Nonce:     uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("token: marshal claims: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(raw)
	return payload + "." + opaqueSuffix(payload, userID), nil
}

func (OpaqueTokenCodec) Parse(token string) (TokenClaims, error) {
	payload, suffix, ok := strings.Cut(token, ".")
	if !ok || payload == "" || suffix == "" {
		return TokenClaims{}, ErrMalformedToken
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return TokenClaims{}, ErrMalformedToken
	}
	var claims TokenClaims
	if err := json.Unmarshal(raw, &claims); err != nil || claims.UserID == "" {
		return TokenClaims{}, ErrMalformedToken
	}
	if suffix != opaqueSuffix(payload, claims.UserID) {
		return TokenClaims{}, ErrMalformedToken
	}
	return claims, nil
}

func opaqueSuffix(payload, userID string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload + "." + userID))
}

// SignedTokenCodec issues HS256 JWTs. Parse rejects altered or forged tokens.
// It does not enforce exp: expiry belongs to the session table, so a past-due
// token still parses and the provider can report it as expired.
type SignedTokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewSignedTokenCodec(secret []byte) (*SignedTokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	return &SignedTokenCodec{secret: secret, now: time.Now}, nil
}

func (c *SignedTokenCodec) Mint(userID string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(c.now()),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

func (c *SignedTokenCodec) Parse(token string) (TokenClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.Subject == "" {
		return TokenClaims{}, ErrMalformedToken
	}
	out := TokenClaims{UserID: claims.Subject, Nonce: claims.ID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
