package identity

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/session"
)

// Collection holds one credential record per identity, keyed by the lowercased email.
const Collection = "identities"

var hashCost = bcrypt.DefaultCost // mockable

// Service is the identity provider: it checks credentials and registers identities.
// Every identity it signs in owns an account document.
type Service struct {
	store    core.DocStore
	accounts *account.Service
	validate *validator.Validate
}

var _ session.Provider = (*Service)(nil)

func NewService(store core.DocStore, accounts *account.Service, validate *validator.Validate) *Service {
	return &Service{store: store, accounts: accounts, validate: validate}
}

// SignIn checks the credentials and makes sure the identity has an account.
func (svc *Service) SignIn(ctx context.Context, creds session.Credentials) (session.Identity, error) {
	email := core.CleanString(creds.Email, true /* lower */)
	if err := svc.validate.Var(email, "required,email"); err != nil {
		return session.Identity{}, ErrInvalidEmail
	}

	doc, err := svc.store.Get(ctx, Collection, email)
	if err != nil {
		if core.IsNotFound(err) {
			return session.Identity{}, ErrUserNotFound
		}
		return session.Identity{}, errors.Wrap(err, "getting identity")
	}
	hash := core.AsString(doc.Data["passwordHash"])
	if err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return session.Identity{}, ErrWrongPassword
	}

	id := session.Identity{UID: core.AsString(doc.Data["uid"]), Email: email}
	if _, err = svc.accounts.Ensure(ctx, id.UID, id.Email); err != nil {
		return session.Identity{}, errors.Wrap(err, "ensuring account")
	}
	return id, nil
}

// Register creates a new identity along with its (non admin) account.
func (svc *Service) Register(ctx context.Context, reg session.Registration) (session.Identity, error) {
	reg.Name = core.CleanString(reg.Name)
	reg.Email = core.CleanString(reg.Email, true /* lower */)
	reg.Phone = core.CleanString(reg.Phone)
	if err := svc.validate.Struct(reg); err != nil {
		return session.Identity{}, classify(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), hashCost)
	if err != nil {
		return session.Identity{}, errors.Wrap(err, "hashing password")
	}
	id := session.Identity{UID: uuid.New().String(), Email: reg.Email}
	data := core.Data{
		"uid":          id.UID,
		"email":        id.Email,
		"passwordHash": string(hash),
		"createdAt":    core.ServerTimestamp,
		"updatedAt":    core.ServerTimestamp,
	}
	if _, err = svc.store.Create(ctx, Collection, id.Email, data); err != nil {
		if core.IsAlreadyExists(err) {
			return session.Identity{}, ErrEmailInUse
		}
		return session.Identity{}, errors.Wrap(err, "inserting identity")
	}

	na := account.NewAccount{Name: reg.Name, Email: reg.Email, Phone: reg.Phone}
	if _, err = svc.accounts.CreateWithID(ctx, id.UID, na); err != nil {
		_ = svc.store.Delete(ctx, Collection, id.Email)
		return session.Identity{}, err
	}
	return id, nil
}

// SetPassword replaces the password of the identity registered with email.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	email = core.CleanString(email, true /* lower */)
	if passwordPolicy(pwd, email) != "" || pwd == "" {
		return ErrWeakPassword
	}
	if _, err := svc.store.Get(ctx, Collection, email); err != nil {
		if core.IsNotFound(err) {
			return ErrUserNotFound
		}
		return errors.Wrap(err, "getting identity")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), hashCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	data := core.Data{"passwordHash": string(hash), "updatedAt": core.ServerTimestamp}
	if err = svc.store.Update(ctx, Collection, email, data); err != nil {
		return errors.Wrap(err, "updating identity")
	}
	return nil
}

// classify maps registration validation failures onto provider errors.
// Other validation errors are returned as is.
func classify(err error) error {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, fe := range vErrs {
		if fe.Field() == "email" {
			return ErrInvalidEmail
		}
		if fe.Field() == "password" && passwordTags[fe.Tag()] {
			return ErrWeakPassword
		}
	}
	return err
}
