// Package auth verifies bearer tokens and subscription entitlement.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-cycle-planner/internal/health"
	"ai-cycle-planner/internal/shared"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the caller an operation runs for.
type Principal struct {
	UserID string
	// System marks trusted in-process callers such as the scheduler.
	System bool
}

// SystemPrincipal acts for userID without a token.
func SystemPrincipal(userID string) Principal {
	return Principal{UserID: userID, System: true}
}

// Claims are the token claims the engine reads. The user id is taken from
// user_id, falling back to the standard subject.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens issued by the identity provider.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses token and returns its principal. Any failure is an
// authentication error.
func (v *Verifier) Verify(token string) (Principal, error) {
	const op = "auth.Verify"

	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Principal{}, shared.E(shared.KindAuthentication, op, errors.New("missing token"))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, shared.E(shared.KindAuthentication, op, fmt.Errorf("invalid token: %w", err))
	}
	if !parsed.Valid {
		return Principal{}, shared.E(shared.KindAuthentication, op, errors.New("invalid token"))
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Principal{}, shared.E(shared.KindAuthentication, op, errors.New("token has no subject"))
	}
	return Principal{UserID: userID}, nil
}

// SubscriptionSource looks up a user's subscription.
type SubscriptionSource interface {
	Subscription(ctx context.Context, userID string) (*health.Subscription, error)
}

// Entitlements gates generation on an active subscription.
type Entitlements struct {
	subs SubscriptionSource
	now  func() time.Time
}

// NewEntitlements creates an entitlement checker.
func NewEntitlements(subs SubscriptionSource) *Entitlements {
	return &Entitlements{subs: subs, now: time.Now}
}

// Check returns an entitlement error unless userID has an active subscription.
func (e *Entitlements) Check(ctx context.Context, userID string) error {
	const op = "auth.Entitlements"

	sub, err := e.subs.Subscription(ctx, userID)
	if err != nil {
		return shared.E(shared.KindInternal, op, fmt.Errorf("failed to load subscription: %w", err))
	}
	if !sub.Active(e.now()) {
		return shared.E(shared.KindEntitlement, op, errors.New("an active subscription is required"))
	}
	return nil
}
