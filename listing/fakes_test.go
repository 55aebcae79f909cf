package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eringen/frontpage/docstore"
)

// mockStore implements docstore.Store with overridable functions and records
// every Find call.
type mockStore struct {
	mu        sync.Mutex
	CountFunc func(ctx context.Context, f docstore.Filter) (int64, error)
	FindFunc  func(ctx context.Context, q docstore.Query) ([]docstore.Document, error)
	finds     []docstore.Query
}

func (m *mockStore) Count(ctx context.Context, f docstore.Filter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, f)
	}
	return 1, nil
}

func (m *mockStore) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	m.mu.Lock()
	m.finds = append(m.finds, q)
	m.mu.Unlock()
	if m.FindFunc != nil {
		return m.FindFunc(ctx, q)
	}
	return nil, nil
}

func (m *mockStore) Insert(context.Context, docstore.Collection, docstore.Document) (string, error) {
	return "", errors.New("read-only")
}

func (m *mockStore) Close(context.Context) error { return nil }

func (m *mockStore) findCalls() []docstore.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]docstore.Query(nil), m.finds...)
}

// memStore evaluates filters over in-memory documents.
type memStore struct {
	mockStore
	posts      []docstore.Document
	categories map[string]docstore.Document
	// unresolvable lists post ids whose category lookup fails.
	unresolvable map[string]bool
	// populateErr makes every populated find fail.
	populateErr error
}

func newMemStore(posts ...docstore.Document) *memStore {
	m := &memStore{posts: posts, categories: map[string]docstore.Document{}}
	m.CountFunc = func(_ context.Context, f docstore.Filter) (int64, error) {
		var n int64
		for _, p := range m.posts {
			if matches(p, f) {
				n++
			}
		}
		return n, nil
	}
	m.FindFunc = func(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
		if q.Populate && m.populateErr != nil {
			return nil, fmt.Errorf("%w: %v", docstore.ErrPopulate, m.populateErr)
		}
		var out []docstore.Document
		for _, p := range m.posts {
			if matches(p, q.Filter) {
				out = append(out, p)
			}
		}
		if q.SortDesc != "" {
			sort.SliceStable(out, func(i, j int) bool {
				ti, _ := out[i][q.SortDesc].(time.Time)
				tj, _ := out[j][q.SortDesc].(time.Time)
				return ti.After(tj)
			})
		}
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[:q.Limit]
		}
		if q.Populate {
			for i, p := range out {
				ref, ok := p[docstore.RelationField].(string)
				if !ok || m.unresolvable[fmt.Sprint(p["_id"])] {
					continue
				}
				if cat, ok := m.categories[ref]; ok {
					cp := p.Copy()
					cp[docstore.RelationField] = map[string]any(cat)
					out[i] = cp
				}
			}
		}
		return out, nil
	}
	return m
}

func matches(doc docstore.Document, f docstore.Filter) bool {
	for _, c := range f {
		v, ok := doc[c.Field]
		switch c.Op {
		case docstore.OpEq:
			if !ok || v != c.Value {
				return false
			}
		case docstore.OpNonEmpty:
			if !ok || v == nil || v == "" {
				return false
			}
		case docstore.OpIn:
			found := false
			for _, want := range c.Values {
				if v == want {
					found = true
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// blockingConnector never returns until release is closed, ignoring ctx.
type blockingConnector struct {
	release chan struct{}
	store   docstore.Store
}

func (b *blockingConnector) Connect(context.Context) (docstore.Store, error) {
	<-b.release
	return b.store, nil
}

type connectorFunc func(ctx context.Context) (docstore.Store, error)

func (f connectorFunc) Connect(ctx context.Context) (docstore.Store, error) { return f(ctx) }

func post(id string, created time.Time, fields map[string]any) docstore.Document {
	d := docstore.Document{"_id": id, "title": "Post " + id, "slug": "post-" + id, "createdAt": created}
	for k, v := range fields {
		d[k] = v
	}
	return d
}
