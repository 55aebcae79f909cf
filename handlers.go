package frontpage

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/frontpage/docstore"
	"github.com/eringen/frontpage/listing"
)

// feedSize is the number of posts in the RSS feed and sitemap.
const feedSize = 50

func (a *App) handleHome(c echo.Context) error {
	return a.Listing.Serve(c, func(env listing.Envelope) error {
		return Render(c, a.Views.Home(env, a.site()))
	})
}

func (a *App) handlePost(c echo.Context) error {
	slug := c.Param("slug")
	records, err := a.publishedPosts(c.Request().Context(), docstore.Eq("slug", slug), 1)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	return Render(c, a.Views.Post(records[0], a.site()))
}

func (a *App) handleSitemap(c echo.Context) error {
	records, err := a.publishedPosts(c.Request().Context(), docstore.Condition{}, feedSize)
	if err != nil {
		return err
	}
	return a.renderSitemap(c, records)
}

func (a *App) handleFeed(c echo.Context) error {
	records, err := a.publishedPosts(c.Request().Context(), docstore.Condition{}, feedSize)
	if err != nil {
		return err
	}
	return a.renderRSS(c, records)
}

// publishedPosts returns published posts newest first, narrowed by extra when
// it names a field.
func (a *App) publishedPosts(ctx context.Context, extra docstore.Condition, limit int) ([]listing.ContentRecord, error) {
	store, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	filter := listing.PublishedFilter()
	if extra.Field != "" {
		filter = append(filter, extra)
	}
	ctx, cancel := context.WithTimeout(ctx, a.Config.StrategyTimeout)
	defer cancel()
	docs, err := store.Find(ctx, docstore.Query{
		Filter:    filter,
		SortDesc:  "createdAt",
		Limit:     limit,
		TimeLimit: a.Config.StrategyTimeout,
		Populate:  true,
	})
	if err != nil {
		return nil, err
	}
	return listing.Normalize(docs), nil
}

func (a *App) handleRobots(c echo.Context) error {
	path := filepath.Join(a.staticDir, "robots.txt")
	if _, err := os.Stat(path); err == nil {
		return c.File(path)
	}
	return c.String(http.StatusOK, "User-agent: *\nAllow: /\nSitemap: "+strings.TrimRight(a.Config.URL, "/")+"/sitemap.xml\n")
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}

	if isAPI(c) {
		msg := http.StatusText(code)
		if ok && code < 500 {
			if m, isStr := he.Message.(string); isStr {
				msg = m
			}
		}
		_ = c.JSON(code, apiResponse{Success: false, Message: msg})
		return
	}
	if code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	if code >= 500 {
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
