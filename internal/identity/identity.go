package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for any credential the resolver rejects:
// malformed, bad signature, wrong issuer, expired, or missing user ID.
// Callers must treat all of these the same way (close the connection or
// answer 401); the reason is not exposed to the peer.
var ErrTokenInvalid = errors.New("invalid credential token")

// Claims is the payload the marketplace backend signs into user tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Resolver verifies connection-time credentials and extracts the user
// identity bound to them.
type Resolver struct {
	secret []byte
	issuer string
}

// NewResolver creates a resolver for HS256 tokens signed with secret.
func NewResolver(secret, issuer string) *Resolver {
	return &Resolver{secret: []byte(secret), issuer: issuer}
}

// Verify checks the token's signature, expiry and issuer, and returns the
// user ID it carries.
func (r *Resolver) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return r.secret, nil
	}, jwt.WithIssuer(r.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrTokenInvalid
	}
	return claims.UserID, nil
}

// Issue creates a signed token for userID valid for ttl. The rest of the
// marketplace backend shares the secret and issues tokens the same way;
// courier itself uses this in tests and tooling.
func (r *Resolver) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    r.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}
