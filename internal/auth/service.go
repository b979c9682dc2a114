package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service ties credential lookup, password verification, and session
// tokens together. Sign-out is tracked in-process with a revocation
// set, pruned as revoked tokens would have expired anyway.
type Service struct {
	creds  CredentialSource
	tokens *TokenService
	ttl    time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewService creates an auth service. ttl must match the token
// service's session lifetime so revocations can be pruned.
func NewService(creds CredentialSource, tokens *TokenService, ttl time.Duration) *Service {
	return &Service{
		creds:   creds,
		tokens:  tokens,
		ttl:     ttl,
		revoked: make(map[string]time.Time),
	}
}

// SignIn verifies the credentials and returns a session token. Unknown
// email and wrong password both return ErrInvalidCredentials; any other
// failure (e.g. the credential backend being unreachable) passes
// through unchanged.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, Admin, error) {
	admin, err := s.creds.FindAdmin(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return "", Admin{}, ErrInvalidCredentials
		}
		return "", Admin{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", Admin{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(admin)
	if err != nil {
		return "", Admin{}, err
	}
	return token, admin, nil
}

// SignOut revokes the session token for the remainder of its lifetime.
func (s *Service) SignOut(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.revoked[token] = now.Add(s.ttl)

	for t, expiry := range s.revoked {
		if expiry.Before(now) {
			delete(s.revoked, t)
		}
	}
}

// Validate checks a session token and returns its claims, rejecting
// tokens revoked by SignOut.
func (s *Service) Validate(token string) (*Claims, error) {
	s.mu.Lock()
	_, isRevoked := s.revoked[token]
	s.mu.Unlock()
	if isRevoked {
		return nil, ErrInvalidToken
	}
	return s.tokens.Validate(token)
}

// LookupRole resolves the caller's role from the credential backend.
// A circular access policy is reported as a misconfigured backend so
// the caller can show a blocking diagnostic instead of an ordinary
// error banner.
func (s *Service) LookupRole(ctx context.Context, userID string) (Role, error) {
	role, err := s.creds.AdminRole(ctx, userID)
	if err != nil {
		return "", &RoleLookupError{
			UserID:        userID,
			Err:           err,
			Misconfigured: errors.Is(err, ErrPolicyRecursion),
		}
	}
	if !role.Valid() {
		return "", &RoleLookupError{UserID: userID, Err: errors.New("unknown role " + string(role))}
	}
	return role, nil
}

// StaticAdmins is a fixed, in-memory credential source for the
// static-file deployment, where no account backend exists. Accounts
// come from configuration at startup.
type StaticAdmins []Admin

func (a StaticAdmins) FindAdmin(_ context.Context, email string) (Admin, error) {
	for _, admin := range a {
		if admin.Email == email {
			return admin, nil
		}
	}
	return Admin{}, ErrAdminNotFound
}

func (a StaticAdmins) AdminRole(_ context.Context, userID string) (Role, error) {
	for _, admin := range a {
		if admin.ID == userID {
			return admin.Role, nil
		}
	}
	return "", ErrAdminNotFound
}
