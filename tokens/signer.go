// Package tokens mints the short lived signed tokens embedded in tracking and delivery URLs.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rivalapexmediation/auction-server/errortypes"
)

// Purpose scopes a token to one use.
type Purpose string

const (
	PurposeImpression Purpose = "impression"
	PurposeClick      Purpose = "click"
	PurposeDelivery   Purpose = "delivery"
)

// Claims are carried by every token. CreativeURL is only set on delivery tokens.
type Claims struct {
	BidID       string  `json:"bidId"`
	PlacementID string  `json:"placementId"`
	Adapter     string  `json:"adapter"`
	CPM         float64 `json:"cpm"`
	Currency    string  `json:"currency"`
	Purpose     Purpose `json:"purpose"`
	Nonce       string  `json:"nonce"`
	CreativeURL string  `json:"creativeUrl,omitempty"`
	jwt.RegisteredClaims
}

// Signer turns claims into an opaque token string.
type Signer interface {
	Sign(claims Claims, ttl time.Duration) (string, error)
}

// JWTSigner signs HS256 JSON web tokens.
type JWTSigner struct {
	key    []byte
	issuer string
	clock  clock.Clock
}

func NewJWTSigner(key string, issuer string, clk clock.Clock) (*JWTSigner, error) {
	if key == "" {
		return nil, errors.New("signing key must not be empty")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &JWTSigner{
		key:    []byte(key),
		issuer: issuer,
		clock:  clk,
	}, nil
}

func (s *JWTSigner) Sign(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", &errortypes.FailedToSign{Message: fmt.Sprintf("token ttl must be positive, got %v", ttl)}
	}
	now := s.clock.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   claims.BidID,
		ID:        claims.Nonce,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", &errortypes.FailedToSign{Message: fmt.Sprintf("sign %s token: %v", claims.Purpose, err)}
	}
	return signed, nil
}

// Verify parses a token and checks its signature, expiry, issuer and purpose.
func (s *JWTSigner) Verify(token string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("token purpose is %q, expected %q", claims.Purpose, purpose)
	}
	return claims, nil
}
