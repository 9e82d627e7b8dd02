package core

import (
	"context"
	"reflect"
	"sort"
	"time"
)

// IDField addresses the document id in a Query filter or ordering.
const IDField = "__name__"

type (
	// Data is the field map of a stored document.
	Data map[string]interface{}

	Document struct {
		ID   string
		Data Data
	}

	// Filter is an equality constraint on a document field.
	Filter struct {
		Field string
		Value interface{}
	}

	Query struct {
		Collection string
		Where      []Filter
		OrderBy    []DBOrdering
	}

	// SnapshotFunc receives the full, ordered result set of a live query.
	SnapshotFunc func(docs []Document)

	// Unsubscribe stops a live query. Calling it more than once is a no-op.
	Unsubscribe func()

	// DocStore is a schemaless document database with live queries.
	DocStore interface {
		// Create stores a new document. An empty id asks the store to generate one.
		// Returns ErrAlreadyExists if id is taken.
		Create(ctx context.Context, collection, id string, data Data) (string, error)
		// Update merges data into an existing document. Returns ErrNotFound if it does not exist.
		Update(ctx context.Context, collection, id string, data Data) error
		Delete(ctx context.Context, collection, id string) error
		Get(ctx context.Context, collection, id string) (Document, error)
		Query(ctx context.Context, q Query) ([]Document, error)
		// Subscribe delivers the current result set of q, then again after every change
		// to the collection. Snapshots of one subscription are delivered in order.
		Subscribe(q Query, onSnapshot SnapshotFunc) (Unsubscribe, error)
		Close() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// WhereEqual returns a copy of q with an extra equality filter.
func (q Query) WhereEqual(field string, value interface{}) Query {
	where := make([]Filter, len(q.Where), len(q.Where)+1)
	copy(where, q.Where)
	q.Where = append(where, Filter{Field: field, Value: value})
	return q
}

// OrderedBy returns a copy of q with the given orderings appended.
func (q Query) OrderedBy(ords ...DBOrdering) Query {
	orderBy := make([]DBOrdering, len(q.OrderBy), len(q.OrderBy)+len(ords))
	copy(orderBy, q.OrderBy)
	q.OrderBy = append(orderBy, ords...)
	return q
}

func (doc Document) Value(field string) interface{} {
	if field == IDField {
		return doc.ID
	}
	return doc.Data[field]
}

// Matches reports whether doc satisfies every filter of q.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Where {
		v, ok := doc.Data[f.Field]
		if f.Field == IDField {
			v, ok = doc.ID, true
		}
		if !ok || !valuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// Sort orders docs per q.OrderBy, ties broken by id.
// Documents missing an ordering field sort as the lowest value.
func (q Query) Sort(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, ord := range q.OrderBy {
			c := compareValues(docs[i].Value(ord.Field), docs[j].Value(ord.Field))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return docs[i].ID < docs[j].ID
	})
}

type serverTimestamp struct{}

// ServerTimestamp is a placeholder value replaced by the store's clock on write.
var ServerTimestamp interface{} = serverTimestamp{}

var NowFunc = time.Now // mockable

// ResolveServerTimestamps replaces ServerTimestamp placeholders in data with now.
func ResolveServerTimestamps(data Data, now time.Time) Data {
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			data[k] = now.UTC()
		}
	}
	return data
}

// CopyData deep copies maps and slices so callers never share state with a store.
func CopyData(data Data) Data {
	if data == nil {
		return nil
	}
	cp := make(Data, len(data))
	for k, v := range data {
		cp[k] = copyValue(v)
	}
	return cp
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Data:
		return CopyData(val)
	case map[string]interface{}:
		return map[string]interface{}(CopyData(val))
	case map[string]bool:
		cp := make(map[string]bool, len(val))
		for k, b := range val {
			cp[k] = b
		}
		return cp
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, item := range val {
			cp[i] = copyValue(item)
		}
		return cp
	case []map[string]interface{}:
		cp := make([]interface{}, len(val))
		for i, item := range val {
			cp[i] = map[string]interface{}(CopyData(item))
		}
		return cp
	default:
		return v
	}
}

func valuesEqual(a, b interface{}) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if at, ok := timeValue(a); ok {
		if bt, ok := timeValue(b); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	as, bs := AsString(a), AsString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// DecodeAll maps docs to typed values.
func DecodeAll[T any](docs []Document, decode func(Document) T) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decode(doc))
	}
	return out
}

// SubscribeAs runs a live query and hands decoded snapshots to onChange.
func SubscribeAs[T any](store DocStore, q Query, decode func(Document) T, onChange func([]T)) (Unsubscribe, error) {
	return store.Subscribe(q, func(docs []Document) {
		onChange(DecodeAll(docs, decode))
	})
}
