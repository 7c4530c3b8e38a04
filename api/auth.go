/*
auth.go - Actor resolution for HTTP requests

PURPOSE:
  Every mutation in the engine runs on behalf of a flexitime.Actor. This
  middleware turns the request credentials into that actor and stores it
  in the request context.

MODES:
  Required:   "Authorization: Bearer <jwt>" (HS256). Subject is the actor
              id; the "role" claim equal to the privileged role (HR)
              makes the actor privileged.
  Demo:       Without a token, X-Employee-ID and X-Role headers are
              trusted. No headers at all yields a privileged "demo"
              actor so the bundled scenarios stay explorable.

SEE ALSO:
  - pkg/config/config.go: AuthConfig
  - flexitime/types.go: Actor
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/warp/flexitime-engine/flexitime"
)

// Claims carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Authenticator validates tokens and resolves actors.
type Authenticator struct {
	Secret         []byte
	Issuer         string
	Required       bool
	PrivilegedRole string
}

// DemoActor is used when auth is optional and the request names nobody.
var DemoActor = flexitime.Actor{ID: "demo", Privileged: true}

var errUnauthorized = errors.New("unauthorized")

type actorKey struct{}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor flexitime.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor of the request. Requests that bypassed the
// middleware act as the system.
func ActorFrom(ctx context.Context) flexitime.Actor {
	if a, ok := ctx.Value(actorKey{}).(flexitime.Actor); ok {
		return a
	}
	return flexitime.SystemActor
}

// Sign issues an access token for subject with role.
func (a *Authenticator) Sign(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// Parse validates tokenString and returns its claims.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token", errUnauthorized)
	}
	return claims, nil
}

// Resolve determines the actor of r.
func (a *Authenticator) Resolve(r *http.Request) (flexitime.Actor, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return flexitime.Actor{}, fmt.Errorf("%w: expected bearer token", errUnauthorized)
		}
		claims, err := a.Parse(tokenString)
		if err != nil {
			return flexitime.Actor{}, err
		}
		return flexitime.Actor{ID: claims.Subject, Privileged: claims.Role == a.PrivilegedRole}, nil
	}
	if a.Required {
		return flexitime.Actor{}, fmt.Errorf("%w: missing bearer token", errUnauthorized)
	}

	id := r.Header.Get("X-Employee-ID")
	if id == "" {
		return DemoActor, nil
	}
	return flexitime.Actor{ID: id, Privileged: r.Header.Get("X-Role") == a.PrivilegedRole}, nil
}

// Middleware stores the resolved actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Resolve(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
