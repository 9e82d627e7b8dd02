package attendance

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

// Get returns the attendance for date. A day nobody marked yet is empty.
func (svc *Service) Get(ctx context.Context, date string) (Day, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	doc, err := svc.store.Get(ctx, Collection, date)
	if err != nil {
		if core.IsNotFound(err) {
			return Day{}, nil
		}
		return nil, errors.Wrap(err, "getting attendance")
	}
	return DayFromDocument(doc), nil
}

// Query returns every recorded day.
func (svc *Service) Query(ctx context.Context) (Register, error) {
	docs, err := svc.store.Query(ctx, core.NewQuery(Collection))
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return RegisterFromDocuments(docs), nil
}

// Update records day for date on behalf of uid. Flags are merged into the stored day.
// The first write of a date creates its document. Any other failure, including a
// concurrent create of the same date, is returned.
func (svc *Service) Update(ctx context.Context, uid, date string, day Day) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}
	if err := day.Validate(); err != nil {
		return err
	}

	data := day.data(uid)
	err := svc.store.Update(ctx, Collection, date, data)
	if core.IsNotFound(err) {
		_, err = svc.store.Create(ctx, Collection, date, data)
	}
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return nil
}

// Toggle flips one student's flag for date and returns the resulting day.
func (svc *Service) Toggle(ctx context.Context, uid, date, studentID string) (Day, error) {
	day, err := svc.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	next := Toggle(day, studentID)
	if err = svc.Update(ctx, uid, date, next); err != nil {
		return nil, err
	}
	return next, nil
}

// MarkAll sets every student in ids to present for date and returns the resulting day.
func (svc *Service) MarkAll(ctx context.Context, uid, date string, ids []string, present bool) (Day, error) {
	day, err := svc.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	next := MarkAll(day, ids, present)
	if err = svc.Update(ctx, uid, date, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (svc *Service) Subscribe(onChange func(Register)) (core.Unsubscribe, error) {
	unsub, err := svc.store.Subscribe(core.NewQuery(Collection), func(docs []core.Document) {
		onChange(RegisterFromDocuments(docs))
	})
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to attendance")
	}
	return unsub, nil
}
