// Package views renders the site's HTML pages as templ components.
package views

import (
	"context"
	"encoding/json"
	"io"

	"github.com/a-h/templ"

	"github.com/eringen/frontpage/listing"
)

// htmlWriter writes markup and keeps the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) attr(name, value string) {
	h.raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

func (h *htmlWriter) href(u string) {
	h.attr("href", string(templ.URL(u)))
}

// layout wraps body in the page shell.
func layout(site Site, meta PageMeta, jsonLD string, body func(*htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		title := site.Name
		if meta.Title != "" && meta.Title != site.Name {
			title = meta.Title + " | " + site.Name
		}
		h.raw("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\">")
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw("<title>")
		h.text(title)
		h.raw("</title>")
		if meta.Description != "" {
			h.raw(`<meta name="description"`)
			h.attr("content", meta.Description)
			h.raw(">")
		}
		if meta.URL != "" {
			h.raw(`<link rel="canonical"`)
			h.href(meta.URL)
			h.raw(`><meta property="og:url"`)
			h.attr("content", meta.URL)
			h.raw(">")
		}
		h.raw(`<meta property="og:title"`)
		h.attr("content", title)
		h.raw(`><meta property="og:type"`)
		h.attr("content", meta.OGType)
		h.raw(">")
		if meta.Image != "" {
			h.raw(`<meta property="og:image"`)
			h.attr("content", meta.Image)
			h.raw(">")
		}
		h.raw(`<link rel="alternate" type="application/rss+xml" href="/feed.xml">`)
		h.raw(`<link rel="stylesheet" href="/public/styles.css">`)
		if jsonLD != "" {
			h.raw(`<script type="application/ld+json">` + jsonLD + `</script>`)
		}
		h.raw(`</head><body><header class="masthead"><a href="/">`)
		h.text(site.Name)
		h.raw("</a></header><main>")
		body(h)
		h.raw("</main><footer><a href=\"/feed.xml\">RSS</a></footer></body></html>")
		return h.err
	})
}

// Home renders the front page from a listing envelope. An unsuccessful
// envelope renders the "no content available yet" state.
func Home(env listing.Envelope, site Site) templ.Component {
	meta := PageMeta{Title: site.Name, Description: site.Description, URL: buildURL(site.URL), OGType: "website"}
	return layout(site, meta, WebsiteJsonLD(site), func(h *htmlWriter) {
		if len(env.FrontPagePosts) == 0 {
			h.raw(`<section class="empty"><h1>No content available yet</h1><p>`)
			h.text(env.Message)
			h.raw("</p></section>")
			debugPanel(h, env.Debug)
			return
		}
		if !env.Success || env.Message != listing.MsgFound {
			h.raw(`<p class="notice">`)
			h.text(env.Message)
			h.raw("</p>")
		}

		h.raw(`<section class="front-page">`)
		for i, p := range env.FrontPagePosts {
			card(h, p, i == 0)
		}
		h.raw("</section>")

		if len(env.TrendingPosts) > 0 {
			h.raw(`<aside class="trending"><h2>Trending</h2><ol>`)
			for _, p := range env.TrendingPosts {
				h.raw("<li><a")
				h.href(PostPath(p))
				h.raw(">")
				h.text(p.Title)
				h.raw("</a></li>")
			}
			h.raw("</ol></aside>")
		}
		debugPanel(h, env.Debug)
	})
}

func card(h *htmlWriter, p listing.ContentRecord, lead bool) {
	class := "card"
	if lead {
		class = "card lead"
	}
	h.raw("<article")
	h.attr("class", class)
	h.raw(">")
	if p.BannerImage != "" {
		h.raw("<img")
		h.attr("src", string(templ.URL(p.BannerImage)))
		h.attr("alt", p.Title)
		if lead {
			h.raw(` fetchpriority="high"`)
		} else {
			h.raw(` loading="lazy"`)
		}
		h.raw(">")
	}
	if p.Category != nil {
		h.raw(`<span class="category">`)
		h.text(p.Category.Name)
		h.raw("</span>")
	}
	h.raw("<h2><a")
	h.href(PostPath(p))
	h.raw(">")
	h.text(p.Title)
	h.raw("</a></h2>")
	if p.CreatedAt != "" {
		h.raw("<time")
		h.attr("datetime", p.CreatedAt)
		h.raw(">")
		h.text(HumanDate(p.CreatedAt))
		h.raw("</time>")
	}
	h.raw("</article>")
}

func debugPanel(h *htmlWriter, d *listing.Diagnostics) {
	if d == nil {
		return
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return
	}
	h.raw(`<details class="debug"><summary>Listing diagnostics</summary><pre>`)
	h.text(string(b))
	h.raw("</pre></details>")
}

// Post renders a single post page.
func Post(post listing.ContentRecord, site Site) templ.Component {
	meta := PageMeta{
		Title:  post.Title,
		URL:    buildURL(site.URL, "posts", post.Slug),
		OGType: "article",
	}
	if post.BannerImage != "" {
		meta.Image = string(templ.URL(post.BannerImage))
	}
	if paras := Paragraphs(post.Content); len(paras) > 0 {
		meta.Description = paras[0]
	}
	return layout(site, meta, NewsArticleJsonLD(site, post), func(h *htmlWriter) {
		h.raw(`<article class="post">`)
		if post.Category != nil {
			h.raw(`<span class="category">`)
			h.text(post.Category.Name)
			h.raw("</span>")
		}
		h.raw("<h1>")
		h.text(post.Title)
		h.raw("</h1>")
		if post.CreatedAt != "" {
			h.raw("<time")
			h.attr("datetime", post.CreatedAt)
			h.raw(">")
			h.text(HumanDate(post.CreatedAt))
			h.raw("</time>")
		}
		if post.BannerImage != "" {
			h.raw("<img")
			h.attr("src", string(templ.URL(post.BannerImage)))
			h.attr("alt", post.Title)
			h.raw(` fetchpriority="high">`)
		}
		for _, p := range Paragraphs(post.Content) {
			h.raw("<p>")
			h.text(p)
			h.raw("</p>")
		}
		h.raw("</article>")
	})
}

// NotFound renders the 404 page.
func NotFound() templ.Component {
	return layout(Site{Name: "Not found"}, PageMeta{OGType: "website"}, "", func(h *htmlWriter) {
		h.raw(`<section class="empty"><h1>Page not found</h1><p><a href="/">Back to the front page</a></p></section>`)
	})
}

// ServerError renders the 500 page.
func ServerError() templ.Component {
	return layout(Site{Name: "Error"}, PageMeta{OGType: "website"}, "", func(h *htmlWriter) {
		h.raw(`<section class="empty"><h1>Something went wrong</h1><p>Please try again in a moment.</p></section>`)
	})
}
