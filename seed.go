package frontpage

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eringen/frontpage/docstore"
)

// Fixtures is the YAML document accepted by the seed command. Posts refer to
// categories by Key; a key with no matching category is stored as a dangling
// reference.
type Fixtures struct {
	Categories []CategoryFixture `yaml:"categories"`
	Posts      []PostFixture     `yaml:"posts"`
}

// CategoryFixture is one category to insert.
type CategoryFixture struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// PostFixture is one post to insert. Fields left out stay absent in the
// stored document.
type PostFixture struct {
	Title       string     `yaml:"title"`
	Slug        string     `yaml:"slug"`
	Content     string     `yaml:"content"`
	BannerImage string     `yaml:"bannerImage"`
	Category    string     `yaml:"category"`
	Language    string     `yaml:"language"`
	Location    string     `yaml:"location"`
	Visibility  string     `yaml:"visibility"`
	Published   *bool      `yaml:"isPublished"`
	CreatedAt   *time.Time `yaml:"createdAt"`
}

// LoadFixtures reads a fixtures file.
func LoadFixtures(path string) (Fixtures, error) {
	var f Fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("frontpage: read fixtures: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("frontpage: parse fixtures %s: %w", path, err)
	}
	return f, nil
}

// SeedResult counts inserted documents.
type SeedResult struct {
	Categories int
	Posts      int
}

// Seed inserts fixtures into store. Posts without createdAt are spaced one
// minute apart, newest first, ending at now.
func Seed(ctx context.Context, store docstore.Store, f Fixtures, now time.Time) (SeedResult, error) {
	var res SeedResult
	ids := make(map[string]string, len(f.Categories))
	for _, c := range f.Categories {
		id, err := store.Insert(ctx, docstore.CollectionCategories, docstore.Document{"name": c.Name})
		if err != nil {
			return res, fmt.Errorf("frontpage: seed category %q: %w", c.Name, err)
		}
		key := c.Key
		if key == "" {
			key = c.Name
		}
		ids[key] = id
		res.Categories++
	}

	for i, p := range f.Posts {
		doc := docstore.Document{}
		setNonEmpty(doc, "title", p.Title)
		setNonEmpty(doc, "slug", p.Slug)
		if p.Slug == "" && p.Title != "" {
			doc["slug"] = Slugify(p.Title)
		}
		setNonEmpty(doc, "content", p.Content)
		setNonEmpty(doc, "bannerImage", p.BannerImage)
		setNonEmpty(doc, "language", p.Language)
		setNonEmpty(doc, "location", p.Location)
		setNonEmpty(doc, "visibility", p.Visibility)
		if p.Published != nil {
			doc["isPublished"] = *p.Published
		}
		if p.Category != "" {
			if id, ok := ids[p.Category]; ok {
				doc[docstore.RelationField] = id
			} else {
				doc[docstore.RelationField] = p.Category
			}
		}
		created := now.Add(-time.Duration(i) * time.Minute)
		if p.CreatedAt != nil {
			created = *p.CreatedAt
		}
		doc["createdAt"] = created.UTC()
		doc["updatedAt"] = created.UTC()

		if _, err := store.Insert(ctx, docstore.CollectionPosts, doc); err != nil {
			return res, fmt.Errorf("frontpage: seed post %d: %w", i, err)
		}
		res.Posts++
	}
	return res, nil
}

func setNonEmpty(doc docstore.Document, key, value string) {
	if value != "" {
		doc[key] = value
	}
}
