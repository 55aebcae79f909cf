package listing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/frontpage/docstore"
)

const diagnosticSampleSize = 3

// Diagnostics describes why the cascade found nothing. It is attached to the
// envelope only outside production.
type Diagnostics struct {
	Total    int64           `json:"total"`
	Matched  int64           `json:"matched"`
	Strategy string          `json:"strategy"`
	Lang     string          `json:"lang"`
	Location string          `json:"location"`
	Counts   []StrategyCount `json:"strategyCounts"`
	Attempts []Attempt       `json:"attempts"`
	Sample   []SampleDoc     `json:"sample"`
}

// StrategyCount is the number of documents a strategy's filter matches.
type StrategyCount struct {
	Strategy string `json:"strategy"`
	Count    int64  `json:"count"`
	Error    string `json:"error,omitempty"`
}

// SampleDoc summarizes one raw document.
type SampleDoc struct {
	ID     string   `json:"_id"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
}

// collectDiagnostics gathers counts and a small sample in parallel. It never
// fails: errors are logged and the affected entries are left empty.
func collectDiagnostics(ctx context.Context, store docstore.Store, req Request, strategies []Strategy, out Outcome, timeout time.Duration, log echo.Logger) *Diagnostics {
	d := &Diagnostics{
		Total:    out.Total,
		Strategy: out.Strategy,
		Lang:     req.Lang,
		Location: req.Location,
		Counts:   make([]StrategyCount, len(strategies)),
		Attempts: out.Attempts,
		Sample:   []SampleDoc{},
	}
	if d.Attempts == nil {
		d.Attempts = []Attempt{}
	}

	var g errgroup.Group
	if d.Total < 0 {
		g.Go(func() error {
			n, err := within(ctx, timeout, func(ctx context.Context) (int64, error) {
				return store.Count(ctx, nil)
			})
			if err != nil {
				return fmt.Errorf("total count: %w", err)
			}
			d.Total = n
			return nil
		})
	}
	for i, s := range strategies {
		d.Counts[i].Strategy = s.Name
		g.Go(func() error {
			n, err := within(ctx, timeout, func(ctx context.Context) (int64, error) {
				return store.Count(ctx, s.Filter)
			})
			if err != nil {
				d.Counts[i].Error = err.Error()
				return fmt.Errorf("count %s: %w", s.Name, err)
			}
			d.Counts[i].Count = n
			return nil
		})
	}

	var sample []docstore.Document
	if out.Rank == RankSample {
		sample = out.Docs
	} else {
		g.Go(func() error {
			docs, err := within(ctx, timeout, func(ctx context.Context) ([]docstore.Document, error) {
				return store.Find(ctx, docstore.Query{Limit: diagnosticSampleSize, TimeLimit: timeout})
			})
			if err != nil {
				return fmt.Errorf("sample: %w", err)
			}
			sample = docs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warnf("listing: diagnostics incomplete: %v", err)
	}

	for _, c := range d.Counts {
		if c.Count > d.Matched {
			d.Matched = c.Count
		}
	}
	for i, doc := range sample {
		if i == diagnosticSampleSize {
			break
		}
		d.Sample = append(d.Sample, summarize(doc, i))
	}
	return d
}

func summarize(doc docstore.Document, index int) SampleDoc {
	rec, _ := NormalizeOne(doc, index)
	fields := make([]string, 0, len(doc))
	for k := range doc {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	title := coerceString(doc["title"])
	return SampleDoc{ID: rec.ID, Title: title, Fields: fields}
}
