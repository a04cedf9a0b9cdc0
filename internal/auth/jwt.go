package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/golang-jwt/jwt/v4"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims carries the actor identity in `sub` and its role in `role`.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver turns HS256 bearer tokens into actors.
type JWTResolver struct {
	Secret []byte
	Issuer string
}

func (r *JWTResolver) ResolveActor(token string) (orders.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return orders.Actor{}, fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.Secret, nil
	})
	if err != nil {
		return orders.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if r.Issuer != "" && !c.VerifyIssuer(r.Issuer, true) {
		return orders.Actor{}, fmt.Errorf("%w: unexpected issuer %q", ErrUnauthenticated, c.Issuer)
	}
	if c.Subject == "" {
		return orders.Actor{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	role, err := orders.ParseRole(c.Role)
	if err != nil {
		return orders.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return orders.Actor{ID: c.Subject, Role: role}, nil
}

// Issue signs a token for actor. The API never issues tokens; operators and
// tests do.
func (r *JWTResolver) Issue(actor orders.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    r.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(r.Secret)
}
