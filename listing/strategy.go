package listing

import (
	"strings"

	"github.com/eringen/frontpage/docstore"
)

// Ranks outside the strategy list.
const (
	RankLatest = 0  // unfiltered most-recent-first probe
	RankSample = -1 // no strategy matched; raw sample
	RankNone   = -2 // nothing returned at all
)

// Stored field names the strategies filter on.
const (
	fieldPublished  = "isPublished"
	fieldVisibility = "visibility"
	fieldLanguage   = "language"
	fieldLocation   = "location"
	fieldTitle      = "title"
	fieldCreatedAt  = "createdAt"
)

// Request carries the listing query parameters.
type Request struct {
	Lang     string
	Location string
}

// Defaults for Request fields.
const (
	DefaultLang     = "en"
	DefaultLocation = "all"
)

func (r Request) normalized() Request {
	r.Lang = strings.ToLower(strings.TrimSpace(r.Lang))
	if r.Lang == "" {
		r.Lang = DefaultLang
	}
	r.Location = strings.TrimSpace(r.Location)
	if r.Location == "" {
		r.Location = DefaultLocation
	}
	return r
}

// Strategy is one entry of the cascade.
type Strategy struct {
	Rank   int
	Name   string
	Filter docstore.Filter
}

// Strategies returns the cascade for req, strictest first. Ranks start at 1.
func Strategies(req Request) []Strategy {
	req = req.normalized()
	var specs []Strategy
	if !strings.EqualFold(req.Location, DefaultLocation) {
		specs = append(specs, Strategy{
			Name: "published-public-lang-location",
			Filter: docstore.Filter{
				docstore.Eq(fieldPublished, true),
				docstore.Eq(fieldVisibility, "public"),
				docstore.Eq(fieldLanguage, req.Lang),
				docstore.Eq(fieldLocation, req.Location),
			},
		})
	}
	specs = append(specs,
		Strategy{
			Name: "published-public-lang",
			Filter: docstore.Filter{
				docstore.Eq(fieldPublished, true),
				docstore.Eq(fieldVisibility, "public"),
				docstore.Eq(fieldLanguage, req.Lang),
			},
		},
		Strategy{
			Name: "published-lang",
			Filter: docstore.Filter{
				docstore.Eq(fieldPublished, true),
				docstore.Eq(fieldLanguage, req.Lang),
			},
		},
		Strategy{
			Name:   "published",
			Filter: docstore.Filter{docstore.Eq(fieldPublished, true)},
		},
		Strategy{
			Name:   "titled",
			Filter: docstore.Filter{docstore.NonEmpty(fieldTitle)},
		},
	)
	for i := range specs {
		specs[i].Rank = i + 1
	}
	return specs
}

// PublishedFilter selects posts that are live for readers. Feeds use it.
func PublishedFilter() docstore.Filter {
	return docstore.Filter{docstore.Eq(fieldPublished, true)}
}
