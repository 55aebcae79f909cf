package docstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func mustInsert(t *testing.T, s *SQLiteStore, coll Collection, doc Document) string {
	t.Helper()
	id, err := s.Insert(context.Background(), coll, doc)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return id
}

func TestOpenSQLite(t *testing.T) {
	s := setupTestStore(t)
	if s.db == nil {
		t.Fatal("db should not be nil")
	}
}

func TestInsertGeneratesID(t *testing.T) {
	s := setupTestStore(t)
	id := mustInsert(t, s, CollectionPosts, Document{"title": "Hello"})
	if id == "" {
		t.Fatal("expected generated id")
	}
	docs, err := s.Find(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 1 || docs[0]["_id"] != id {
		t.Fatalf("docs = %v, want one document with _id %q", docs, id)
	}
}

func TestInsertKeepsExplicitID(t *testing.T) {
	s := setupTestStore(t)
	id := mustInsert(t, s, CollectionPosts, Document{"_id": "post-1", "title": "Hello"})
	if id != "post-1" {
		t.Errorf("id = %q, want post-1", id)
	}
	if _, err := s.Insert(context.Background(), CollectionPosts, Document{"_id": "post-1"}); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestInsertDoesNotMutateInput(t *testing.T) {
	s := setupTestStore(t)
	doc := Document{"title": "Hello"}
	mustInsert(t, s, CollectionPosts, doc)
	if _, ok := doc["_id"]; ok {
		t.Error("Insert must not add _id to the caller's document")
	}
}

func TestCountWithFilters(t *testing.T) {
	s := setupTestStore(t)
	mustInsert(t, s, CollectionPosts, Document{"title": "A", "isPublished": true, "visibility": "public", "language": "en"})
	mustInsert(t, s, CollectionPosts, Document{"title": "B", "isPublished": true, "visibility": "private", "language": "en"})
	mustInsert(t, s, CollectionPosts, Document{"title": "C", "isPublished": false, "language": "fr"})
	mustInsert(t, s, CollectionPosts, Document{"title": ""})
	mustInsert(t, s, CollectionCategories, Document{"name": "not a post"})

	tests := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{"all posts", nil, 4},
		{"published", Filter{Eq("isPublished", true)}, 2},
		{"unpublished", Filter{Eq("isPublished", false)}, 1},
		{"published public en", Filter{Eq("isPublished", true), Eq("visibility", "public"), Eq("language", "en")}, 1},
		{"titled", Filter{NonEmpty("title")}, 3},
		{"language in", Filter{In("language", "fr", "de")}, 1},
		{"empty in", Filter{In("language")}, 0},
	}
	for _, tt := range tests {
		got, err := s.Count(context.Background(), tt.filter)
		if err != nil {
			t.Fatalf("%s: Count failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Count = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestCountRejectsUnsafeField(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Count(context.Background(), Filter{Eq("title') OR 1=1 --", "x")})
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
}

func TestFindSortsNewestFirstAndLimits(t *testing.T) {
	s := setupTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		mustInsert(t, s, CollectionPosts, Document{
			"_id":       fmt.Sprintf("p%d", i),
			"title":     fmt.Sprintf("Post %d", i),
			"createdAt": base.Add(time.Duration(i) * time.Hour),
		})
	}
	docs, err := s.Find(context.Background(), Query{SortDesc: "createdAt", Limit: 3})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len = %d, want 3", len(docs))
	}
	for i, want := range []string{"p4", "p3", "p2"} {
		if docs[i]["_id"] != want {
			t.Errorf("docs[%d]._id = %v, want %s", i, docs[i]["_id"], want)
		}
	}
}

func TestFindPopulatesCategory(t *testing.T) {
	s := setupTestStore(t)
	catID := mustInsert(t, s, CollectionCategories, Document{"name": "World"})
	mustInsert(t, s, CollectionPosts, Document{"_id": "resolved", "title": "A", "category": catID})
	mustInsert(t, s, CollectionPosts, Document{"_id": "dangling", "title": "B", "category": "missing-category"})
	mustInsert(t, s, CollectionPosts, Document{"_id": "none", "title": "C"})

	docs, err := s.Find(context.Background(), Query{Populate: true})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	byID := map[any]Document{}
	for _, d := range docs {
		byID[d["_id"]] = d
	}
	cat, ok := byID["resolved"]["category"].(map[string]any)
	if !ok {
		t.Fatalf("category = %#v, want resolved object", byID["resolved"]["category"])
	}
	if cat["name"] != "World" || cat["_id"] != catID {
		t.Errorf("category = %v, want World/%s", cat, catID)
	}
	if byID["dangling"]["category"] != "missing-category" {
		t.Errorf("dangling category = %v, want raw reference", byID["dangling"]["category"])
	}
	if _, ok := byID["none"]["category"]; ok {
		t.Error("post without category should stay without category")
	}
}

func TestFindWithoutPopulateKeepsReference(t *testing.T) {
	s := setupTestStore(t)
	catID := mustInsert(t, s, CollectionCategories, Document{"name": "World"})
	mustInsert(t, s, CollectionPosts, Document{"title": "A", "category": catID})

	docs, err := s.Find(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if docs[0]["category"] != catID {
		t.Errorf("category = %v, want raw id %s", docs[0]["category"], catID)
	}
}

func TestFindHonorsContextCancel(t *testing.T) {
	s := setupTestStore(t)
	mustInsert(t, s, CollectionPosts, Document{"title": "A"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Find(ctx, Query{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestLazyReusesStore(t *testing.T) {
	opens := 0
	lazy := NewLazy(func(ctx context.Context) (Store, error) {
		opens++
		if opens == 1 {
			return nil, errors.New("boom")
		}
		return setupTestStore(t), nil
	})
	if _, err := lazy.Connect(context.Background()); err == nil {
		t.Fatal("expected first connect to fail")
	}
	first, err := lazy.Connect(context.Background())
	if err != nil {
		t.Fatalf("second connect failed: %v", err)
	}
	second, err := lazy.Connect(context.Background())
	if err != nil {
		t.Fatalf("third connect failed: %v", err)
	}
	if first != second {
		t.Error("expected the same store to be reused")
	}
	if opens != 2 {
		t.Errorf("opens = %d, want 2", opens)
	}
}

func TestStaticWithoutStore(t *testing.T) {
	if _, err := (Static{}).Connect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
