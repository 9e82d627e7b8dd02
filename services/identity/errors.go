package identity

import "github.com/pkg/errors"

var (
	ErrUserNotFound  = errors.New("identity: user not found")
	ErrWrongPassword = errors.New("identity: wrong password")
	ErrEmailInUse    = errors.New("identity: email already in use")
	ErrWeakPassword  = errors.New("identity: weak password")
	ErrInvalidEmail  = errors.New("identity: invalid email")
)

var messages = map[error]string{
	ErrUserNotFound:  "No account found with this email",
	ErrWrongPassword: "Incorrect password",
	ErrEmailInUse:    "Email is already registered",
	ErrWeakPassword:  "Password is too weak",
	ErrInvalidEmail:  "Invalid email address",
}

// DefaultMessage is shown for authentication failures without a specific message.
const DefaultMessage = "Authentication failed"

// Message returns the user-facing message for an authentication error.
func Message(err error) string {
	if msg, ok := messages[errors.Cause(err)]; ok {
		return msg
	}
	return DefaultMessage
}

// IsAuthError reports whether err is one of the provider's known failures.
func IsAuthError(err error) bool {
	_, ok := messages[errors.Cause(err)]
	return ok
}
