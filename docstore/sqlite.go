package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents as JSON bodies in a single SQLite table. It is
// the local backend for development and small deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the documents table.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed while the authoring endpoint writes; the busy
	// timeout makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_created
    ON documents(collection, json_extract(body, '$.createdAt'));
`)
	return err
}

// Count returns the number of posts matching f.
func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args, err := sqliteWhere(CollectionPosts, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("docstore: count: %w", err)
	}
	return n, nil
}

// Find returns posts matching q.
func (s *SQLiteStore) Find(ctx context.Context, q Query) ([]Document, error) {
	if q.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.TimeLimit)
		defer cancel()
	}
	where, args, err := sqliteWhere(CollectionPosts, q.Filter)
	if err != nil {
		return nil, err
	}
	stmt := `SELECT id, body FROM documents WHERE ` + where
	if q.SortDesc != "" {
		if !ValidField(q.SortDesc) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, q.SortDesc)
		}
		stmt += ` ORDER BY json_extract(body, ?) DESC`
		args = append(args, "$."+q.SortDesc)
	}
	if q.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	docs, err := s.query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: find: %w", err)
	}
	if q.Populate {
		return s.populate(ctx, docs)
	}
	return docs, nil
}

func (s *SQLiteStore) query(ctx context.Context, stmt string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		doc := Document{}
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			// Keep undecodable rows visible; the normalizer stubs them.
			doc = Document{"_id": id}
		}
		if _, ok := doc["_id"]; !ok {
			doc["_id"] = id
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// populate replaces string category references with the referenced category
// document. References that do not resolve are left as they are.
func (s *SQLiteStore) populate(ctx context.Context, docs []Document) ([]Document, error) {
	seen := make(map[string]struct{})
	var ids []any
	for _, d := range docs {
		ref, ok := d[RelationField].(string)
		if !ok || ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		ids = append(ids, ref)
	}
	if len(ids) == 0 {
		return docs, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := append([]any{string(CollectionCategories)}, ids...)
	cats, err := s.query(ctx, `SELECT id, body FROM documents WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPopulate, err)
	}
	byID := make(map[string]Document, len(cats))
	for _, c := range cats {
		if id, ok := c["_id"].(string); ok {
			byID[id] = c
		}
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		ref, _ := d[RelationField].(string)
		cat, ok := byID[ref]
		if !ok {
			out[i] = d
			continue
		}
		cp := d.Copy()
		cp[RelationField] = map[string]any(cat)
		out[i] = cp
	}
	return out, nil
}

// Insert stores doc in coll. A missing _id is generated.
func (s *SQLiteStore) Insert(ctx context.Context, coll Collection, doc Document) (string, error) {
	cp := doc.Copy()
	id := ""
	switch v := cp["_id"].(type) {
	case string:
		id = v
	case nil:
	default:
		id = fmt.Sprint(v)
	}
	if id == "" {
		id = uuid.NewString()
	}
	cp["_id"] = id
	body, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("docstore: encode document: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`,
		string(coll), id, string(body)); err != nil {
		return "", fmt.Errorf("docstore: insert: %w", err)
	}
	return id, nil
}

// sqliteWhere renders f as a WHERE clause scoped to coll.
func sqliteWhere(coll Collection, f Filter) (string, []any, error) {
	if err := f.validate(); err != nil {
		return "", nil, err
	}
	clauses := []string{"collection = ?"}
	args := []any{string(coll)}
	for _, c := range f {
		path := "$." + c.Field
		switch c.Op {
		case OpEq:
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, path, sqliteValue(c.Value))
		case OpNonEmpty:
			clauses = append(clauses, "(json_extract(body, ?) IS NOT NULL AND json_extract(body, ?) != '')")
			args = append(args, path, path)
		case OpIn:
			if len(c.Values) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			clauses = append(clauses, "json_extract(body, ?) IN ("+strings.TrimSuffix(strings.Repeat("?,", len(c.Values)), ",")+")")
			args = append(args, path)
			for _, v := range c.Values {
				args = append(args, sqliteValue(v))
			}
		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %d", c.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

// sqliteValue maps Go values to what json_extract yields for them.
func sqliteValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
