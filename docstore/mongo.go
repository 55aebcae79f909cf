package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds connection settings for MongoStore.
type MongoConfig struct {
	URI                  string
	Database             string
	PostsCollection      string        // default "posts"
	CategoriesCollection string        // default "categories"
	ConnectTimeout       time.Duration // default 10s
}

func (c *MongoConfig) setDefaults() {
	if c.PostsCollection == "" {
		c.PostsCollection = string(CollectionPosts)
	}
	if c.CategoriesCollection == "" {
		c.CategoriesCollection = string(CollectionCategories)
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// MongoStore is the MongoDB Store.
type MongoStore struct {
	client     *mongo.Client
	posts      *mongo.Collection
	categories *mongo.Collection
}

// OpenMongo connects to MongoDB and verifies the connection with a ping.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	cfg.setDefaults()
	if cfg.URI == "" {
		return nil, fmt.Errorf("docstore: mongo URI is empty")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("docstore: mongo database is empty")
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetConnectTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("docstore: mongo ping: %w", err)
	}
	db := client.Database(cfg.Database)
	return &MongoStore{
		client:     client,
		posts:      db.Collection(cfg.PostsCollection),
		categories: db.Collection(cfg.CategoriesCollection),
	}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Count returns the number of posts matching f.
func (s *MongoStore) Count(ctx context.Context, f Filter) (int64, error) {
	filter, err := mongoFilter(f)
	if err != nil {
		return 0, err
	}
	n, err := s.posts.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("docstore: count: %w", err)
	}
	return n, nil
}

// Find returns posts matching q.
func (s *MongoStore) Find(ctx context.Context, q Query) ([]Document, error) {
	filter, err := mongoFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.SortDesc != "" {
		if !ValidField(q.SortDesc) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, q.SortDesc)
		}
		opts.SetSort(bson.D{{Key: q.SortDesc, Value: -1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.TimeLimit > 0 {
		opts.SetMaxTime(q.TimeLimit)
	}
	cur, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: find: %w", err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("docstore: decode: %w", err)
	}
	docs := make([]Document, len(raw))
	for i, m := range raw {
		docs[i] = Document(plainMap(m))
	}
	if q.Populate {
		return s.populate(ctx, docs, q.TimeLimit)
	}
	return docs, nil
}

// populate resolves category references the way a second lookup query would:
// every distinct ObjectID is fetched in one $in query and swapped in.
func (s *MongoStore) populate(ctx context.Context, docs []Document, limit time.Duration) ([]Document, error) {
	seen := make(map[primitive.ObjectID]struct{})
	var ids []primitive.ObjectID
	for _, d := range docs {
		id, ok := objectID(d[RelationField])
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return docs, nil
	}
	opts := options.Find()
	if limit > 0 {
		opts.SetMaxTime(limit)
	}
	cur, err := s.categories.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPopulate, err)
	}
	var cats []bson.M
	if err := cur.All(ctx, &cats); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPopulate, err)
	}
	byID := make(map[primitive.ObjectID]map[string]any, len(cats))
	for _, c := range cats {
		if id, ok := c["_id"].(primitive.ObjectID); ok {
			byID[id] = plainMap(c)
		}
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		id, ok := objectID(d[RelationField])
		cat, found := byID[id]
		if !ok || !found {
			out[i] = d
			continue
		}
		cp := d.Copy()
		cp[RelationField] = cat
		out[i] = cp
	}
	return out, nil
}

// Insert stores doc in coll. Hex string references in the relation field are
// stored as ObjectIDs so that population can resolve them.
func (s *MongoStore) Insert(ctx context.Context, coll Collection, doc Document) (string, error) {
	target := s.posts
	if coll == CollectionCategories {
		target = s.categories
	}
	cp := doc.Copy()
	if ref, ok := cp[RelationField].(string); ok {
		if id, err := primitive.ObjectIDFromHex(ref); err == nil {
			cp[RelationField] = id
		}
	}
	if hex, ok := cp["_id"].(string); ok {
		if id, err := primitive.ObjectIDFromHex(hex); err == nil {
			cp["_id"] = id
		}
	}
	res, err := target.InsertOne(ctx, bson.M(cp))
	if err != nil {
		return "", fmt.Errorf("docstore: insert: %w", err)
	}
	switch id := res.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	default:
		return fmt.Sprint(id), nil
	}
}

// mongoFilter translates f into a BSON filter document.
func mongoFilter(f Filter) (bson.D, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	out := bson.D{}
	for _, c := range f {
		switch c.Op {
		case OpEq:
			out = append(out, bson.E{Key: c.Field, Value: c.Value})
		case OpNonEmpty:
			out = append(out, bson.E{Key: c.Field, Value: bson.D{
				{Key: "$exists", Value: true},
				{Key: "$nin", Value: bson.A{nil, ""}},
			}})
		case OpIn:
			out = append(out, bson.E{Key: c.Field, Value: bson.D{{Key: "$in", Value: bson.A(c.Values)}}})
		default:
			return nil, fmt.Errorf("docstore: unsupported operator %d", c.Op)
		}
	}
	return out, nil
}

func objectID(v any) (primitive.ObjectID, bool) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id, true
	case string:
		oid, err := primitive.ObjectIDFromHex(id)
		return oid, err == nil
	}
	return primitive.NilObjectID, false
}

// plainMap converts driver container types (primitive.M, primitive.D,
// primitive.A) into plain maps and slices. Scalars such as ObjectID and
// DateTime are kept; the normalizer knows how to read them.
func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case primitive.M:
		return plainMap(t)
	case map[string]any:
		return plainMap(t)
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
