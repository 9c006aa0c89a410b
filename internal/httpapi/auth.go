package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"petpos/terminal/internal/domain"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Authenticator is the slice of the remote client the auth manager uses.
type Authenticator interface {
	Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error)
	Me(ctx context.Context, token string) (domain.Operator, error)
}

// AuthManager fronts the remote auth service. The terminal never verifies
// token signatures (it has no key material); it caches who a token belongs to
// for a short window and lets the remote service be the authority. Tokens
// that carry a readable expiry are rejected locally once expired, saving the
// round trip.
type AuthManager struct {
	remote Authenticator
	ttl    time.Duration

	mu         sync.Mutex
	identities map[string]cachedIdentity
}

type cachedIdentity struct {
	operator domain.Operator
	cachedAt time.Time
}

// identityCacheMax bounds the identity cache; a terminal serves a handful of
// operators, so hitting this means token churn, not load.
const identityCacheMax = 256

func NewAuthManager(remote Authenticator, identityTTL time.Duration) *AuthManager {
	if identityTTL <= 0 {
		identityTTL = 5 * time.Minute
	}
	return &AuthManager{
		remote:     remote,
		ttl:        identityTTL,
		identities: make(map[string]cachedIdentity),
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return domain.LoginResponse{}, errors.New("username and password are required")
	}
	return a.remote.Login(ctx, req)
}

// Identify resolves a bearer token to its operator, preferring the cache.
func (a *AuthManager) Identify(ctx context.Context, token string) (domain.Operator, error) {
	if token == "" {
		return domain.Operator{}, ErrInvalidToken
	}
	if tokenExpired(token, time.Now()) {
		a.forget(token)
		return domain.Operator{}, ErrInvalidToken
	}

	now := time.Now()
	a.mu.Lock()
	cached, ok := a.identities[token]
	a.mu.Unlock()
	if ok && now.Sub(cached.cachedAt) < a.ttl {
		return cached.operator, nil
	}

	operator, err := a.remote.Me(ctx, token)
	if err != nil {
		a.forget(token)
		return domain.Operator{}, err
	}
	if !operator.Active {
		a.forget(token)
		return domain.Operator{}, errors.New("account is inactive")
	}

	a.mu.Lock()
	if len(a.identities) >= identityCacheMax {
		a.evictStaleLocked(now)
	}
	a.identities[token] = cachedIdentity{operator: operator, cachedAt: now}
	a.mu.Unlock()
	return operator, nil
}

func (a *AuthManager) forget(token string) {
	a.mu.Lock()
	delete(a.identities, token)
	a.mu.Unlock()
}

func (a *AuthManager) evictStaleLocked(now time.Time) {
	for token, cached := range a.identities {
		if now.Sub(cached.cachedAt) >= a.ttl {
			delete(a.identities, token)
		}
	}
	// Still full after dropping stale entries: reset rather than grow.
	if len(a.identities) >= identityCacheMax {
		a.identities = make(map[string]cachedIdentity)
	}
}

// tokenExpired reports whether the token carries an exp claim in the past.
// Signature validity is not checked here; an unreadable token is passed
// through for the remote service to judge.
func tokenExpired(tokenStr string, now time.Time) bool {
	claims := &jwtlib.RegisteredClaims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
