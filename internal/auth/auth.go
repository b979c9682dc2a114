// Package auth handles admin sign-in, session tokens, and role-based
// capability checks. Passwords are verified against bcrypt hashes and
// sessions are JWT bearer tokens; the admin account records themselves
// live behind the CredentialSource seam.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// Role is an admin's authorization level.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleDataAdmin  Role = "data_admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleDataAdmin
}

// Capability is a named permission. Handlers check capabilities against
// the caller's role instead of comparing role strings in place.
type Capability int

const (
	// CapEditTrials allows creating and updating trial records.
	CapEditTrials Capability = iota
	// CapImport allows bulk CSV import.
	CapImport
	// CapViewAudit allows reading the audit trail.
	CapViewAudit
)

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	switch c {
	case CapEditTrials, CapImport:
		return r == RoleSuperAdmin || r == RoleDataAdmin
	case CapViewAudit:
		return r == RoleSuperAdmin
	}
	return false
}

// Admin is an administrator account.
type Admin struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
}

// CredentialSource looks up admin accounts and roles. Implemented by
// the Postgres store and, for the static deployment, by a fixed list
// configured through the environment.
type CredentialSource interface {
	// FindAdmin returns the admin with the given email, or
	// ErrAdminNotFound.
	FindAdmin(ctx context.Context, email string) (Admin, error)

	// AdminRole returns the role for a user ID. A backend whose access
	// policies recurse returns an error wrapping ErrPolicyRecursion.
	AdminRole(ctx context.Context, userID string) (Role, error)
}

// ErrAdminNotFound is returned by FindAdmin for unknown emails.
var ErrAdminNotFound = errors.New("admin not found")

// ErrInvalidCredentials is the normalized sign-in failure. Unknown
// email and wrong password both collapse to this one message so the
// response does not reveal which part was wrong.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// ErrPolicyRecursion marks a role lookup that failed because the
// backend's access policies reference each other in a cycle.
var ErrPolicyRecursion = errors.New("circular access policy detected")

// RoleLookupError reports that an admin's role could not be resolved.
// Misconfigured is set when the failure indicates the backend itself is
// unusable (e.g. a circular access policy) rather than a single failed
// query; callers surface that case as a blocking diagnostic.
type RoleLookupError struct {
	UserID        string
	Err           error
	Misconfigured bool
}

func (e *RoleLookupError) Error() string {
	if e.Misconfigured {
		return fmt.Sprintf("role lookup for %s: backend misconfigured: %v", e.UserID, e.Err)
	}
	return fmt.Sprintf("role lookup for %s: %v", e.UserID, e.Err)
}

func (e *RoleLookupError) Unwrap() error { return e.Err }
