package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/eringen/frontpage/listing"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

var testSite = Site{Name: "Daily", URL: "https://news.example.com", Description: "All the news"}

func TestHomeEmptyState(t *testing.T) {
	env := listing.Envelope{Message: listing.MsgConnectFailed}
	out := render(t, Home(env, testSite))
	if !strings.Contains(out, "No content available yet") {
		t.Errorf("missing empty state:\n%s", out)
	}
	if !strings.Contains(out, listing.MsgConnectFailed) {
		t.Error("missing envelope message")
	}
}

func TestHomeListsPosts(t *testing.T) {
	env := listing.Envelope{
		Success: true,
		Message: listing.MsgFound,
		FrontPagePosts: []listing.ContentRecord{
			{ID: "1", Title: "Lead <story>", Slug: "lead", CreatedAt: "2024-06-01T12:00:00.000Z",
				Category: &listing.CategoryRef{ID: "c1", Name: "World"}},
			{ID: "2", Title: "Second", Slug: "second"},
		},
		TrendingPosts: []listing.ContentRecord{{ID: "3", Title: "Hot take", Slug: "hot take"}},
	}
	out := render(t, Home(env, testSite))

	for _, want := range []string{
		"Lead &lt;story&gt;",
		`href="/posts/lead/"`,
		"World",
		"Jun 1, 2024",
		`<aside class="trending">`,
		`href="/posts/hot%20take/"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "<story>") {
		t.Error("title was not escaped")
	}
	if strings.Contains(out, `class="notice"`) {
		t.Error("a normal listing should not show a notice")
	}
}

func TestHomeShowsDiagnostics(t *testing.T) {
	env := listing.Envelope{
		Success:        true,
		Message:        listing.MsgSample,
		FrontPagePosts: []listing.ContentRecord{{ID: "1", Title: "Untitled"}},
		Debug:          &listing.Diagnostics{Total: 5, Strategy: "sample"},
	}
	out := render(t, Home(env, testSite))
	if !strings.Contains(out, "Listing diagnostics") || !strings.Contains(out, `&#34;total&#34;: 5`) {
		t.Errorf("diagnostics panel missing:\n%s", out)
	}
	if !strings.Contains(out, `class="notice"`) {
		t.Error("sample listing should show a notice")
	}
}

func TestPostRendersParagraphs(t *testing.T) {
	post := listing.ContentRecord{
		ID:          "1",
		Title:       "Budget passes",
		Slug:        "budget-passes",
		Content:     "First paragraph.\n\nSecond <b>paragraph</b>.",
		BannerImage: "javascript:alert(1)",
	}
	out := render(t, Post(post, testSite))
	if strings.Count(out, "<p>") != 2 {
		t.Errorf("expected two paragraphs:\n%s", out)
	}
	if strings.Contains(out, "<b>") {
		t.Error("content was not escaped")
	}
	if strings.Contains(out, "javascript:") {
		t.Error("unsafe banner URL was not sanitized")
	}
	if !strings.Contains(out, `"@type":"NewsArticle"`) {
		t.Error("missing JSON-LD")
	}
}

func TestHumanDate(t *testing.T) {
	if got := HumanDate("2024-03-01T09:30:00.000Z"); got != "Mar 1, 2024" {
		t.Errorf("HumanDate = %q", got)
	}
	if got := HumanDate("soon"); got != "soon" {
		t.Errorf("HumanDate = %q", got)
	}
}

func TestParagraphs(t *testing.T) {
	got := Paragraphs("a\r\n\r\n\n\nb\n")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Paragraphs = %q", got)
	}
}
