package talk

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidChannel is returned for channel names outside [A-Za-z0-9_-]+.
var ErrInvalidChannel = errors.New("invalid channel name")

var channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidChannel reports whether name is an acceptable channel name.
func ValidChannel(name string) bool {
	return channelNamePattern.MatchString(name)
}

// TokenIssuer mints HMAC-signed, time-boxed channel join tokens. It holds
// the signing secret server-side; clients only ever see issued tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs an issuer. ttl defaults to one hour.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("talk token secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// SetNow overrides the issuer's clock. Test hook.
func (t *TokenIssuer) SetNow(now func() time.Time) { t.now = now }

type channelClaims struct {
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	jwt.RegisteredClaims
}

// Issue mints a token granting uid entry to channel until the ttl elapses.
func (t *TokenIssuer) Issue(channel, uid string) (string, error) {
	if !ValidChannel(channel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	now := t.now().UTC()
	claims := channelClaims{
		Channel: channel,
		UID:     uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses a token and returns the channel and uid it grants. Expired
// or tampered tokens fail.
func (t *TokenIssuer) Verify(token string) (channel, uid string, err error) {
	claims := &channelClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now() }))
	if err != nil {
		return "", "", err
	}
	if !parsed.Valid {
		return "", "", errors.New("invalid token")
	}
	return claims.Channel, claims.UID, nil
}

// IssuerSource adapts a TokenIssuer into a CredentialSource for a fixed uid.
type IssuerSource struct {
	Issuer *TokenIssuer
	UID    string
}

// Token implements CredentialSource.
func (s IssuerSource) Token(_ context.Context, channel string) (string, error) {
	return s.Issuer.Issue(channel, s.UID)
}
