// Package docstore is the document store adapter used by the listing pipeline.
// It exposes count, find and insert over a posts collection, with optional
// resolution of the category relation, behind one Store interface implemented
// for MongoDB and for a local SQLite JSON-document database.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Document is a raw stored document. Its shape is not guaranteed: fields may be
// missing and the relation field may hold a resolved object, a bare reference
// or nothing at all.
type Document map[string]any

// Collection names a logical collection. Adapters map these to physical names.
type Collection string

const (
	CollectionPosts      Collection = "posts"
	CollectionCategories Collection = "categories"
)

// RelationField is the post field that references a category document.
const RelationField = "category"

var (
	// ErrPopulate wraps failures of relation resolution. Callers may retry the
	// same query with Populate disabled.
	ErrPopulate = errors.New("docstore: relation resolution failed")

	// ErrInvalidField is returned when a filter or sort names an unsafe field.
	ErrInvalidField = errors.New("docstore: invalid field name")

	// ErrNotConnected is returned by Lazy when no opener was configured.
	ErrNotConnected = errors.New("docstore: not connected")
)

// Op is a condition operator.
type Op int

const (
	// OpEq matches documents whose field equals Value.
	OpEq Op = iota
	// OpNonEmpty matches documents whose field exists and is not null or "".
	OpNonEmpty
	// OpIn matches documents whose field equals one of Values.
	OpIn
)

// Condition is a single field predicate.
type Condition struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Filter is a conjunction of conditions. A nil Filter matches every document.
type Filter []Condition

// Eq returns an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// NonEmpty returns a condition matching a present, non-empty field.
func NonEmpty(field string) Condition {
	return Condition{Field: field, Op: OpNonEmpty}
}

// In returns a membership condition.
func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Values: values}
}

// Query describes one find call.
type Query struct {
	Filter    Filter
	SortDesc  string        // field sorted newest first; empty means natural order
	Limit     int           // 0 means no limit
	TimeLimit time.Duration // server-side limit; 0 means none
	Populate  bool          // resolve the category relation
}

// Store is the contract the listing pipeline and the authoring handlers use.
type Store interface {
	// Count returns the number of posts matching f.
	Count(ctx context.Context, f Filter) (int64, error)
	// Find returns posts matching q. Populate failures are wrapped in ErrPopulate.
	Find(ctx context.Context, q Query) ([]Document, error)
	// Insert stores doc in coll and returns its identifier.
	Insert(ctx context.Context, coll Collection, doc Document) (string, error)
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Connector hands out a connected Store.
type Connector interface {
	Connect(ctx context.Context) (Store, error)
}

// OpenFunc opens a new Store.
type OpenFunc func(ctx context.Context) (Store, error)

// Lazy opens a Store on first use and reuses it afterwards. A failed open is
// not remembered, so the next call tries again.
type Lazy struct {
	mu    sync.Mutex
	open  OpenFunc
	store Store
}

// NewLazy returns a Lazy connector backed by open.
func NewLazy(open OpenFunc) *Lazy {
	return &Lazy{open: open}
}

// Connect returns the cached Store, opening it if needed.
func (l *Lazy) Connect(ctx context.Context) (Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store != nil {
		return l.store, nil
	}
	if l.open == nil {
		return nil, ErrNotConnected
	}
	s, err := l.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	l.store = s
	return s, nil
}

// Close closes the cached Store, if any.
func (l *Lazy) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	err := l.store.Close(ctx)
	l.store = nil
	return err
}

// Static is a Connector that always returns the same Store.
type Static struct{ Store Store }

// Connect returns s.Store.
func (s Static) Connect(context.Context) (Store, error) {
	if s.Store == nil {
		return nil, ErrNotConnected
	}
	return s.Store, nil
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidField reports whether name is safe to embed in a backend query.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

func (f Filter) validate() error {
	for _, c := range f {
		if !ValidField(c.Field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, c.Field)
		}
	}
	return nil
}

// Copy returns a shallow copy of d so callers can replace fields without
// touching the original.
func (d Document) Copy() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
