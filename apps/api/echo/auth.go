package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/session"
)

const contextTokenKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the identity uid. Roles are never part of the token: they are
// looked up on every request.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

func (c Claims) Identity() session.Identity {
	return session.Identity{UID: c.Subject, Email: c.Email}
}

type authenticator struct {
	issuer     string
	signingKey []byte
	expiration time.Duration
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		issuer:     conf.AppName,
		signingKey: []byte(conf.SecretKey),
		expiration: conf.Server.JWTExpirationDelta,
	}
}

func (a *authenticator) jwtConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    a.signingKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func (a *authenticator) claims(id session.Identity) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   id.UID,
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: id.Email,
	}
}

// GenerateToken generates a signed JWT token string for the identity.
func (a *authenticator) GenerateToken(id session.Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, a.claims(id))
	ss, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// ParseToken validates a token string outside of the JWT middleware.
func (a *authenticator) ParseToken(tokenString string) (session.Identity, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil || !token.Valid {
		return session.Identity{}, errInvalidToken
	}
	return claims.Identity(), nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextIdentity returns the identity of an authenticated request.
func contextIdentity(ctx echo.Context) (session.Identity, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	return claims.Identity(), nil
}
