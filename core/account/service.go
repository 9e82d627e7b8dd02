package account

import (
	"context"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
)

type Service struct {
	store       core.DocStore
	scopeByRole bool
}

func NewService(store core.DocStore, conf *core.Config) *Service {
	return &Service{store: store, scopeByRole: conf.Access.ScopeQueriesByRole}
}

// ScopesByRole reports whether non-admin queries are restricted to the caller's own account.
func (svc *Service) ScopesByRole() bool {
	return svc.scopeByRole
}

// liveQuery shapes the account query for the caller. With role scoping enabled,
// a non-admin only sees their own account.
func (svc *Service) liveQuery(uid string, isAdmin bool) core.Query {
	q := core.NewQuery(Collection)
	if svc.scopeByRole && !isAdmin {
		q = q.WhereEqual(core.IDField, uid)
	}
	return q.OrderedBy(core.DBOrdering{Field: "createdAt"})
}

// IsAdmin reports whether the account uid holds the admin flag.
// A missing account is not an admin. Lookup failures return false and the error.
func (svc *Service) IsAdmin(ctx context.Context, uid string) (bool, error) {
	doc, err := svc.store.Get(ctx, Collection, uid)
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "looking up account role")
	}
	return core.AsBool(doc.Data["isAdmin"]), nil
}

// Create stores a new account under a generated id.
func (svc *Service) Create(ctx context.Context, na NewAccount) (string, error) {
	return svc.CreateWithID(ctx, "", na)
}

// CreateWithID stores a new account keyed by the identity uid.
// Returns core.ErrAlreadyExists if the identity already has one.
func (svc *Service) CreateWithID(ctx context.Context, uid string, na NewAccount) (string, error) {
	id, err := svc.store.Create(ctx, Collection, uid, na.data())
	if err != nil {
		return "", errors.Wrap(err, "inserting account")
	}
	return id, nil
}

// Ensure creates a regular account for the identity unless one exists.
// The display name defaults to the email local part.
func (svc *Service) Ensure(ctx context.Context, uid, email string) (created bool, err error) {
	if _, err = svc.store.Get(ctx, Collection, uid); err == nil {
		return false, nil
	} else if !core.IsNotFound(err) {
		return false, errors.Wrap(err, "getting account")
	}

	na := NewAccount{Name: NameFromEmail(email), Email: email}
	if _, err = svc.CreateWithID(ctx, uid, na); err != nil {
		if core.IsAlreadyExists(err) { // created meanwhile
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *Service) Update(ctx context.Context, id string, ua UpdateAccount) error {
	if err := svc.store.Update(ctx, Collection, id, ua.data()); err != nil {
		return errors.Wrap(err, "updating account")
	}
	return nil
}

// SetAdmin grants or revokes the admin flag.
func (svc *Service) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	return svc.Update(ctx, id, UpdateAccount{IsAdmin: &isAdmin})
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.store.Delete(ctx, Collection, id); err != nil {
		return errors.Wrap(err, "deleting account")
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Account, error) {
	doc, err := svc.store.Get(ctx, Collection, id)
	if err != nil {
		return Account{}, errors.Wrap(err, "getting account")
	}
	return FromDocument(doc), nil
}

// GetByEmail returns the first account registered with email.
func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	q := core.NewQuery(Collection).WhereEqual("email", core.CleanString(email, true /* lower */))
	docs, err := svc.store.Query(ctx, q)
	if err != nil {
		return Account{}, errors.Wrap(err, "querying accounts")
	}
	if len(docs) == 0 {
		return Account{}, errors.Wrap(core.ErrNotFound, "getting account")
	}
	return FromDocument(docs[0]), nil
}

// Query returns the accounts visible to the caller.
func (svc *Service) Query(ctx context.Context, uid string, isAdmin bool) ([]Account, error) {
	docs, err := svc.store.Query(ctx, svc.liveQuery(uid, isAdmin))
	if err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}
	return core.DecodeAll(docs, FromDocument), nil
}

func (svc *Service) Subscribe(uid string, isAdmin bool, onChange func([]Account)) (core.Unsubscribe, error) {
	unsub, err := core.SubscribeAs(svc.store, svc.liveQuery(uid, isAdmin), FromDocument, onChange)
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to accounts")
	}
	return unsub, nil
}
