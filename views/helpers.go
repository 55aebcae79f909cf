package views

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/eringen/frontpage/listing"
)

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PostPath is the site-relative link to a post.
func PostPath(p listing.ContentRecord) string {
	if p.Slug == "" {
		return "/"
	}
	return "/posts/" + url.PathEscape(p.Slug) + "/"
}

// HumanDate formats an ISO timestamp as "Jan 2, 2006". Unparseable input is
// returned as is.
func HumanDate(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("Jan 2, 2006")
}

// Paragraphs splits plain post content on blank lines.
func Paragraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WebsiteJsonLD produces a Schema.org WebSite JSON-LD block.
func WebsiteJsonLD(site Site) string {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     site.Name,
		"url":      buildURL(site.URL),
	}
	if site.Description != "" {
		data["description"] = site.Description
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// NewsArticleJsonLD produces a Schema.org NewsArticle JSON-LD block for a post.
func NewsArticleJsonLD(site Site, post listing.ContentRecord) string {
	postURL := buildURL(site.URL, "posts", post.Slug)
	data := map[string]interface{}{
		"@context":      "https://schema.org",
		"@type":         "NewsArticle",
		"headline":      post.Title,
		"datePublished": post.CreatedAt,
		"url":           postURL,
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  site.Name,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if post.UpdatedAt != "" {
		data["dateModified"] = post.UpdatedAt
	}
	if post.BannerImage != "" {
		data["image"] = string(templ.URL(post.BannerImage))
	}
	if post.Category != nil {
		data["articleSection"] = post.Category.Name
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
