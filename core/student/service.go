package student

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

// liveQuery shapes the student query for the caller. Unless role scoping is enabled,
// every caller gets the whole collection, newest first.
func (svc *Service) liveQuery(uid string, isAdmin bool) core.Query {
	q := core.NewQuery(Collection)
	if svc.scopeByRole && !isAdmin {
		q = q.WhereEqual("createdBy", uid)
	}
	return q.OrderedBy(core.DBOrdering{Field: "createdAt"})
}

// Create stores a new student created by the account uid.
func (svc *Service) Create(ctx context.Context, uid string, ns NewStudent) (string, error) {
	id, err := svc.store.Create(ctx, Collection, "", ns.data(uid))
	if err != nil {
		return "", errors.Wrap(err, "inserting student")
	}
	return id, nil
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) error {
	if err := svc.store.Update(ctx, Collection, id, us.data()); err != nil {
		return errors.Wrap(err, "updating student")
	}
	return nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.store.Delete(ctx, Collection, id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	doc, err := svc.store.Get(ctx, Collection, id)
	if err != nil {
		return Student{}, errors.Wrap(err, "getting student")
	}
	return FromDocument(doc), nil
}

// Query returns the students visible to the caller.
func (svc *Service) Query(ctx context.Context, uid string, isAdmin bool) ([]Student, error) {
	docs, err := svc.store.Query(ctx, svc.liveQuery(uid, isAdmin))
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return core.DecodeAll(docs, FromDocument), nil
}

// Subscribe delivers the students visible to the caller on every change.
func (svc *Service) Subscribe(uid string, isAdmin bool, onChange func([]Student)) (core.Unsubscribe, error) {
	unsub, err := core.SubscribeAs(svc.store, svc.liveQuery(uid, isAdmin), FromDocument, onChange)
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to students")
	}
	return unsub, nil
}

// BackfillCreatedAt stamps a creation time on every student missing one.
// Returns the number of students updated; a second run updates none.
func (svc *Service) BackfillCreatedAt(ctx context.Context) (int, error) {
	docs, err := svc.store.Query(ctx, core.NewQuery(Collection))
	if err != nil {
		return 0, errors.Wrap(err, "querying students")
	}

	var n int
	for _, doc := range docs {
		if core.HasTime(doc.Data["createdAt"]) {
			continue
		}
		data := core.Data{"createdAt": core.ServerTimestamp}
		if !core.HasTime(doc.Data["updatedAt"]) {
			data["updatedAt"] = core.ServerTimestamp
		}
		if err = svc.store.Update(ctx, Collection, doc.ID, data); err != nil {
			if core.IsNotFound(err) { // deleted meanwhile
				continue
			}
			return n, errors.Wrapf(err, "backfilling student %s", doc.ID)
		}
		n++
	}
	return n, nil
}
