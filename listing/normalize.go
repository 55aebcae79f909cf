package listing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eringen/frontpage/docstore"
)

// isoLayout matches JavaScript's Date.toISOString for UTC times.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var errNoID = errors.New("document has no usable _id")

type relationKind int

const (
	relationAbsent relationKind = iota
	relationResolved
	relationReference
)

// relation is the detected shape of a post's category field.
type relation struct {
	kind relationKind
	ref  CategoryRef
}

func detectRelation(v any) relation {
	switch t := v.(type) {
	case nil:
		return relation{kind: relationAbsent}
	case docstore.Document:
		return detectRelation(map[string]any(t))
	case map[string]any:
		id, ok := coerceID(t["_id"])
		if !ok {
			return relation{kind: relationAbsent}
		}
		name := strings.TrimSpace(coerceString(t["name"]))
		if name == "" {
			name = placeholderCategory
		}
		return relation{kind: relationResolved, ref: CategoryRef{ID: id, Name: name}}
	default:
		id, ok := coerceID(v)
		if !ok {
			return relation{kind: relationAbsent}
		}
		return relation{kind: relationReference, ref: CategoryRef{ID: id, Name: placeholderCategory}}
	}
}

func (r relation) category() *CategoryRef {
	switch r.kind {
	case relationResolved, relationReference:
		ref := r.ref
		return &ref
	default:
		return nil
	}
}

// Normalize maps raw documents to ContentRecords. It never fails; a document
// that cannot be converted becomes a stub record.
func Normalize(docs []docstore.Document) []ContentRecord {
	out := make([]ContentRecord, 0, len(docs))
	for i, d := range docs {
		rec, stub := NormalizeOne(d, i)
		if stub {
			normalizeStubs.Inc()
		}
		out = append(out, rec)
	}
	return out
}

// NormalizeOne converts a single document. index is only used to name stubs.
// The second result reports whether the record is a stub.
func NormalizeOne(doc docstore.Document, index int) (rec ContentRecord, stub bool) {
	defer func() {
		if r := recover(); r != nil {
			rec, stub = stubRecord(doc, index), true
		}
	}()
	rec, err := convert(doc)
	if err != nil {
		return stubRecord(doc, index), true
	}
	return rec, false
}

func convert(doc docstore.Document) (ContentRecord, error) {
	if doc == nil {
		return ContentRecord{}, errNoID
	}
	id, ok := coerceID(doc["_id"])
	if !ok {
		return ContentRecord{}, errNoID
	}
	title := strings.TrimSpace(coerceString(doc["title"]))
	if title == "" {
		title = placeholderTitle
	}
	return ContentRecord{
		ID:          id,
		Title:       title,
		Slug:        coerceString(doc["slug"]),
		Content:     firstString(doc, "content", "body"),
		BannerImage: firstString(doc, "bannerImage", "banner", "image"),
		CreatedAt:   coerceTime(doc["createdAt"]),
		UpdatedAt:   coerceTime(doc["updatedAt"]),
		Category:    detectRelation(doc[docstore.RelationField]).category(),
	}, nil
}

func stubRecord(doc docstore.Document, index int) (rec ContentRecord) {
	rec = ContentRecord{ID: fmt.Sprintf("unavailable-%d", index), Title: placeholderTitle}
	defer func() { recover() }()
	if doc != nil {
		if id, ok := coerceID(doc["_id"]); ok {
			rec.ID = id
		}
	}
	return rec
}

func firstString(doc docstore.Document, keys ...string) string {
	for _, k := range keys {
		if s := coerceString(doc[k]); s != "" {
			return s
		}
	}
	return ""
}

// coerceID turns stored identifiers (strings, ObjectIDs, numbers) into
// strings. Empty and non-scalar values are rejected.
func coerceID(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case interface{ Hex() string }:
		s = t.Hex()
	case int:
		s = strconv.Itoa(t)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, int, int32, int64, float64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// coerceTime renders stored dates as ISO-8601 UTC. Unparseable strings are
// passed through unchanged.
func coerceTime(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(isoLayout)
	case interface{ Time() time.Time }:
		return t.Time().UTC().Format(isoLayout)
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC().Format(isoLayout)
			}
		}
		return t
	case int64:
		return time.UnixMilli(t).UTC().Format(isoLayout)
	case int:
		return time.UnixMilli(int64(t)).UTC().Format(isoLayout)
	case float64:
		return time.UnixMilli(int64(t)).UTC().Format(isoLayout)
	default:
		return ""
	}
}
