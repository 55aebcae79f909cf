package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eringen/frontpage/docstore"
)

var tracer = otel.Tracer("github.com/eringen/frontpage/listing")

// Attempt records one find call made by the cascade.
type Attempt struct {
	Rank      int    `json:"rank"`
	Strategy  string `json:"strategy"`
	Populated bool   `json:"populated"`
	Results   int    `json:"results"`
	Error     string `json:"error,omitempty"`
}

// Outcome is what the cascade settled on.
type Outcome struct {
	Docs     []docstore.Document
	Rank     int
	Strategy string
	Total    int64 // -1 when the count failed
	Attempts []Attempt
}

// Exhausted reports whether no real strategy produced documents even though
// the store was not known to be empty.
func (o Outcome) Exhausted() bool {
	if o.Rank == RankSample {
		return true
	}
	return o.Rank == RankNone && o.Total != 0
}

type cascade struct {
	store docstore.Store
	cfg   Config
	log   echo.Logger
	stop  func() bool // reports that a response was already sent
}

func (c *cascade) stopped() bool {
	return c.stop != nil && c.stop()
}

// run tries the probe and then each strategy in order, stopping at the first
// non-empty result. Strategies never run concurrently.
func (c *cascade) run(ctx context.Context, strategies []Strategy) Outcome {
	out := Outcome{Rank: RankNone, Total: -1}

	total, err := within(ctx, c.cfg.StrategyTimeout, func(ctx context.Context) (int64, error) {
		return c.store.Count(ctx, nil)
	})
	if err != nil {
		c.log.Warnf("listing: count failed, continuing without total: %v", err)
	} else {
		out.Total = total
		if total == 0 {
			out.Strategy = "empty"
			return out
		}
	}

	if c.cfg.ProbeLatest {
		if docs := c.attempt(ctx, &out, RankLatest, "latest", nil); len(docs) > 0 {
			return c.settle(out, docs, RankLatest, "latest")
		}
	}

	for _, s := range strategies {
		if c.stopped() {
			return out
		}
		if docs := c.attempt(ctx, &out, s.Rank, s.Name, s.Filter); len(docs) > 0 {
			return c.settle(out, docs, s.Rank, s.Name)
		}
	}

	if c.stopped() {
		return out
	}
	sample, err := within(ctx, c.cfg.StrategyTimeout, func(ctx context.Context) ([]docstore.Document, error) {
		return c.store.Find(ctx, docstore.Query{Limit: c.cfg.SampleLimit, TimeLimit: c.cfg.StrategyTimeout})
	})
	out.Attempts = append(out.Attempts, attemptRecord(RankSample, "sample", false, sample, err))
	if err != nil {
		c.log.Warnf("listing: sample query failed: %v", err)
		return out
	}
	if len(sample) == 0 {
		return out
	}
	c.log.Warnf("listing: no strategy matched (total=%d); serving %d unfiltered documents", out.Total, len(sample))
	return c.settle(out, sample, RankSample, "sample")
}

func (c *cascade) settle(out Outcome, docs []docstore.Document, rank int, name string) Outcome {
	out.Docs = docs
	out.Rank = rank
	out.Strategy = name
	cascadeRank.WithLabelValues(name).Inc()
	return out
}

// attempt runs one filter, first with relation population and, if that fails
// for any reason, again without it. Errors and timeouts count as no results.
func (c *cascade) attempt(ctx context.Context, out *Outcome, rank int, name string, f docstore.Filter) []docstore.Document {
	docs, err := c.find(ctx, rank, name, f, true)
	out.Attempts = append(out.Attempts, attemptRecord(rank, name, true, docs, err))
	if err == nil {
		return docs
	}
	c.log.Warnf("listing: strategy %s with population failed, retrying without: %v", name, err)

	docs, err = c.find(ctx, rank, name, f, false)
	out.Attempts = append(out.Attempts, attemptRecord(rank, name, false, docs, err))
	if err != nil {
		c.log.Warnf("listing: strategy %s failed: %v", name, err)
		return nil
	}
	return docs
}

func (c *cascade) find(ctx context.Context, rank int, name string, f docstore.Filter, populate bool) ([]docstore.Document, error) {
	ctx, span := tracer.Start(ctx, "listing.strategy", trace.WithAttributes(
		attribute.String("strategy", name),
		attribute.Int("rank", rank),
		attribute.Bool("populate", populate),
	))
	defer span.End()

	start := time.Now()
	docs, err := within(ctx, c.cfg.StrategyTimeout, func(ctx context.Context) ([]docstore.Document, error) {
		return c.store.Find(ctx, docstore.Query{
			Filter:    f,
			SortDesc:  fieldCreatedAt,
			Limit:     c.cfg.ResultLimit,
			TimeLimit: c.cfg.StrategyTimeout,
			Populate:  populate,
		})
	})
	attemptDuration.WithLabelValues(name, attemptOutcome(docs, err)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(docs)))
	return docs, nil
}

func attemptRecord(rank int, name string, populated bool, docs []docstore.Document, err error) Attempt {
	a := Attempt{Rank: rank, Strategy: name, Populated: populated, Results: len(docs)}
	if err != nil {
		a.Error = err.Error()
		a.Results = 0
	}
	return a
}

func attemptOutcome(docs []docstore.Document, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, docstore.ErrPopulate):
		return "populate_error"
	case err != nil:
		return "error"
	case len(docs) == 0:
		return "empty"
	default:
		return "hit"
	}
}

// within runs fn with a timeout and gives up waiting when it expires, even if
// fn ignores its context; the abandoned call's result is dropped. Panics in fn
// become errors.
func within[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("listing: store panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
