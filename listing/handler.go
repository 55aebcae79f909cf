package listing

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/frontpage/docstore"
)

// Config tunes the pipeline.
type Config struct {
	Budget             time.Duration // hard response deadline (default 15s)
	StrategyTimeout    time.Duration // per store call (default 3s)
	DiagnosticsTimeout time.Duration // per diagnostics call (default 2s)
	ResultLimit        int           // documents fetched per strategy (default 20)
	FrontPageSize      int           // front page and trending size (default 10)
	SampleLimit        int           // raw sample size (default 20)
	ProbeLatest        bool          // run the unfiltered probe before the strategies
	Debug              bool          // attach diagnostics to the envelope
}

func (c *Config) setDefaults() {
	if c.Budget <= 0 {
		c.Budget = 15 * time.Second
	}
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = 3 * time.Second
	}
	if c.DiagnosticsTimeout <= 0 {
		c.DiagnosticsTimeout = 2 * time.Second
	}
	if c.ResultLimit <= 0 {
		c.ResultLimit = 20
	}
	if c.FrontPageSize <= 0 {
		c.FrontPageSize = 10
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = 20
	}
}

// State is a step of the per-request pipeline, used in logs.
type State string

const (
	StateConnecting    State = "CONNECTING"
	StateConnectFailed State = "CONNECT_FAILED"
	StateQuerying      State = "QUERYING"
	StateFound         State = "FOUND"
	StateExhausted     State = "EXHAUSTED"
	StateSampling      State = "SAMPLING"
	StateNormalizing   State = "NORMALIZING"
	StateDeadline      State = "DEADLINE_FIRED"
	StateResponded     State = "RESPONDED"
)

// Handler serves the listing.
type Handler struct {
	conn docstore.Connector
	cfg  Config
}

// NewHandler creates a Handler reading from conn.
func NewHandler(conn docstore.Connector, cfg Config) *Handler {
	cfg.setDefaults()
	return &Handler{conn: conn, cfg: cfg}
}

// Config returns the effective configuration.
func (h *Handler) Config() Config {
	return h.cfg
}

// ParseRequest reads lang and location from the query string.
func ParseRequest(c echo.Context) Request {
	return Request{
		Lang:     c.QueryParam("lang"),
		Location: c.QueryParam("location"),
	}.normalized()
}

// ServeJSON answers GET /api/posts. The status is always 200; failures are
// carried in the envelope.
func (h *Handler) ServeJSON(c echo.Context) error {
	return h.Serve(c, func(env Envelope) error {
		return c.JSON(http.StatusOK, env)
	})
}

// Serve runs the pipeline and hands exactly one envelope to write. It returns
// only after write has been called.
func (h *Handler) Serve(c echo.Context, write WriteFunc) error {
	start := time.Now()
	req := ParseRequest(c)
	log := c.Logger()
	// Store calls outlive the response on purpose; each is bounded by its own timeout.
	ctx := context.WithoutCancel(c.Request().Context())

	arb := newArbiter(write)
	guard := startDeadline(h.cfg.Budget, func() {
		if arb.Send(SourceDeadline, degraded(MsgTimeout)) {
			log.Warnf("listing: %s after %s", StateDeadline, h.cfg.Budget)
		}
	})
	respond := func(src Source, env Envelope) {
		if arb.Send(src, env) {
			guard.Cancel()
			return
		}
		lateCompletions.Inc()
		log.Debugf("listing: %s result discarded, response already sent", src)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("listing: recovered panic: %v", r)
				respond(SourcePanic, degraded(MsgUnexpected))
			}
		}()
		src, env := h.run(ctx, req, log, arb.Sent)
		respond(src, env)
	}()

	<-arb.Done()
	src, err := arb.Result()
	responsesTotal.WithLabelValues(string(src)).Inc()
	responseDuration.Observe(time.Since(start).Seconds())
	log.Debugf("listing: %s via %s in %s", StateResponded, src, time.Since(start))
	return err
}

// run walks the pipeline states and returns the envelope to send.
func (h *Handler) run(ctx context.Context, req Request, log echo.Logger, responded func() bool) (Source, Envelope) {
	log.Debugf("listing: %s", StateConnecting)
	// The guard answers at Budget; this bound only reclaims the worker.
	store, err := within(ctx, h.cfg.Budget+h.cfg.StrategyTimeout, h.conn.Connect)
	if err != nil {
		log.Errorf("listing: %s: %v", StateConnectFailed, err)
		return SourceConnect, degraded(MsgConnectFailed)
	}

	log.Debugf("listing: %s lang=%s location=%s", StateQuerying, req.Lang, req.Location)
	strategies := Strategies(req)
	cas := &cascade{store: store, cfg: h.cfg, log: log, stop: responded}
	out := cas.run(ctx, strategies)

	if out.Rank == RankNone && out.Total == 0 {
		return SourceEmpty, degraded(MsgEmptyStore)
	}

	var diag *Diagnostics
	if out.Exhausted() {
		log.Debugf("listing: %s", StateExhausted)
		if h.cfg.Debug && !responded() {
			diag = collectDiagnostics(ctx, store, req, strategies, out, h.cfg.DiagnosticsTimeout, log)
		}
	}
	if len(out.Docs) == 0 {
		env := degraded(MsgNoMatch)
		env.Debug = diag
		return SourceEmpty, env
	}

	if out.Rank == RankSample {
		log.Debugf("listing: %s", StateSampling)
	} else {
		log.Debugf("listing: %s strategy=%s rank=%d", StateFound, out.Strategy, out.Rank)
	}
	log.Debugf("listing: %s %d documents", StateNormalizing, len(out.Docs))
	front, trending := split(Normalize(out.Docs), h.cfg.FrontPageSize)
	env := Envelope{
		Success:        true,
		Message:        MsgFound,
		FrontPagePosts: front,
		TrendingPosts:  trending,
		Debug:          diag,
	}
	if out.Rank == RankSample {
		env.Message = MsgSample
		return SourceSample, env
	}
	return SourceCascade, env
}
