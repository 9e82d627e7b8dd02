package transaction

import (
	"context"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
)

type Service struct {
	store core.DocStore
}

func NewService(store core.DocStore) *Service {
	return &Service{store: store}
}

func (svc *Service) liveQuery() core.Query {
	return core.NewQuery(Collection).OrderedBy(core.DBOrdering{Field: "date"})
}

// Create records a new transaction entered by the account uid.
func (svc *Service) Create(ctx context.Context, uid string, nt NewTransaction) (string, error) {
	id, err := svc.store.Create(ctx, Collection, "", nt.data(uid))
	if err != nil {
		return "", errors.Wrap(err, "inserting transaction")
	}
	return id, nil
}

// Update applies a partial update. A category change is checked against the resulting type.
func (svc *Service) Update(ctx context.Context, id string, upd UpdateTransaction) error {
	if upd.Type != nil || upd.Category != nil {
		current, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		txType, category := current.Type, current.Category
		if upd.Type != nil {
			txType = *upd.Type
		}
		if upd.Category != nil {
			category = *upd.Category
		}
		if !ValidCategory(txType, category) {
			return core.NewValidationError(nil, core.FieldError{Field: "category", Error: categoryText})
		}
	}

	if err := svc.store.Update(ctx, Collection, id, upd.data()); err != nil {
		return errors.Wrap(err, "updating transaction")
	}
	return nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.store.Delete(ctx, Collection, id); err != nil {
		return errors.Wrap(err, "deleting transaction")
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Transaction, error) {
	doc, err := svc.store.Get(ctx, Collection, id)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "getting transaction")
	}
	return FromDocument(doc), nil
}

// Query returns all transactions, most recent date first.
func (svc *Service) Query(ctx context.Context) ([]Transaction, error) {
	docs, err := svc.store.Query(ctx, svc.liveQuery())
	if err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	return core.DecodeAll(docs, FromDocument), nil
}

func (svc *Service) Subscribe(onChange func([]Transaction)) (core.Unsubscribe, error) {
	unsub, err := core.SubscribeAs(svc.store, svc.liveQuery(), FromDocument, onChange)
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to transactions")
	}
	return unsub, nil
}
