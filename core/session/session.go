package session

import (
	"context"

	"github.com/welfareschool/backend/core"
)

// Identity is the signed-in principal as reported by the identity provider.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// State is what the resolver knows about the current session.
type State struct {
	Identity  *Identity `json:"identity"`
	IsAdmin   bool      `json:"isAdmin"`
	Resolving bool      `json:"resolving"` // true until the first role resolution completes
}

// UID is the identity uid, or "" when signed out.
func (s State) UID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.UID
}

// SignedIn reports whether there is an identity whose role has been resolved.
func (s State) SignedIn() bool {
	return s.Identity != nil && !s.Resolving
}

type (
	Credentials struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	Registration struct {
		Name            string `json:"name" validate:"required"`
		Email           string `json:"email" validate:"required,email"`
		Phone           string `json:"phone"`
		Password        string `json:"password" validate:"required"`
		PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
	}

	// Provider signs identities in and registers new ones.
	Provider interface {
		SignIn(ctx context.Context, creds Credentials) (Identity, error)
		Register(ctx context.Context, reg Registration) (Identity, error)
	}

	// IdentityStream reports identity changes. OnChange calls fn with the current
	// identity (nil when signed out), then after every sign-in and sign-out.
	IdentityStream interface {
		OnChange(fn func(*Identity)) core.Unsubscribe
	}

	// RoleLookup answers whether an identity holds the admin flag.
	RoleLookup interface {
		IsAdmin(ctx context.Context, uid string) (bool, error)
	}
)
