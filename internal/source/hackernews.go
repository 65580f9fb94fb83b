package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

const (
	hnItemURL       = "https://news.ycombinator.com/item?id="
	maxHNTitleBytes = 200
	// DefaultHNMaxPages bounds how many "More" pages of a thread are followed.
	DefaultHNMaxPages = 3
)

// HackerNews scrapes top-level comments of a "Who is hiring" thread.
type HackerNews struct {
	fetcher  *Fetcher
	url      string
	maxPages int
}

// NewHackerNews creates the HN adapter for the given thread URL.
func NewHackerNews(f *Fetcher, threadURL string) *HackerNews {
	return &HackerNews{fetcher: f, url: threadURL, maxPages: DefaultHNMaxPages}
}

// WithMaxPages sets how many thread pages are fetched.
func (h *HackerNews) WithMaxPages(n int) *HackerNews {
	if n > 0 {
		h.maxPages = n
	}
	return h
}

// Name returns job.HackerNews.
func (h *HackerNews) Name() job.Source { return job.HackerNews }

// Fetch downloads the thread and follows "More" links up to the page limit.
func (h *HackerNews) Fetch(ctx context.Context) ([]job.RawPosting, error) {
	var out []job.RawPosting
	next := h.url
	for page := 0; page < h.maxPages && next != ""; page++ {
		body, err := h.fetcher.Get(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("hn page %d: %w", page+1, err)
		}
		postings, more, err := parseHNThread(body)
		if err != nil {
			return nil, fmt.Errorf("hn page %d: %w", page+1, err)
		}
		out = append(out, postings...)
		next = resolveMore(next, more)
	}
	return out, nil
}

// parseHNThread returns the top-level postings and the raw "More" link, if any.
func parseHNThread(body []byte) ([]job.RawPosting, string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	rows := findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Tr && hasClass(n, "athing") && hasClass(n, "comtr")
	})

	out := make([]job.RawPosting, 0, len(rows))
	for _, row := range rows {
		if !isTopLevel(row) {
			continue
		}
		id := attr(row, "id")
		textNode := findFirst(row, func(n *html.Node) bool {
			return n.DataAtom == atom.Div && hasClass(n, "commtext")
		})
		if id == "" || textNode == nil {
			continue
		}
		out = append(out, hnPosting(id, nodeText(textNode), markers(row), postedAt(row)))
	}

	var more string
	if link := findFirst(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.A && hasClass(n, "morelink")
	}); link != nil {
		more = attr(link, "href")
	}
	return out, more, nil
}

// isTopLevel reports whether a comment row has indent 0.
func isTopLevel(row *html.Node) bool {
	ind := findFirst(row, func(n *html.Node) bool {
		return n.DataAtom == atom.Td && hasClass(n, "ind")
	})
	if ind == nil {
		return false
	}
	if v := attr(ind, "indent"); v != "" {
		return v == "0"
	}
	img := findFirst(ind, func(n *html.Node) bool { return n.DataAtom == atom.Img })
	return img != nil && attr(img, "width") == "0"
}

// markers returns the [dead] / [flagged] labels rendered in the comment header.
func markers(row *html.Node) []string {
	head := findFirst(row, func(n *html.Node) bool {
		return n.DataAtom == atom.Span && hasClass(n, "comhead")
	})
	if head == nil {
		return nil
	}
	text := nodeText(head)
	var out []string
	for _, m := range []string{"[dead]", "[flagged]"} {
		if strings.Contains(text, m) {
			out = append(out, m)
		}
	}
	return out
}

func postedAt(row *html.Node) string {
	age := findFirst(row, func(n *html.Node) bool {
		return n.DataAtom == atom.Span && hasClass(n, "age")
	})
	if age == nil {
		return ""
	}
	// title="2025-01-02T16:00:00 1735833600"
	ts, _, _ := strings.Cut(attr(age, "title"), " ")
	return ts
}

// hnPosting maps a comment to a raw record. The first line is conventionally
// "Company | Role | Location | ...".
func hnPosting(id, text string, marks []string, posted string) job.RawPosting {
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)

	raw := job.RawPosting{
		NativeID:    id,
		Title:       excerpt(first, maxHNTitleBytes),
		URL:         hnItemURL + id,
		PostedAt:    posted,
		Description: strings.TrimSpace(rest),
	}

	parts := strings.Split(first, "|")
	if len(parts) > 1 {
		raw.Company = strings.TrimSpace(parts[0])
		for _, p := range parts[1:] {
			p = strings.TrimSpace(p)
			if looksLikeLocation(p) {
				raw.Location = p
				break
			}
		}
	}
	if raw.Description == "" {
		raw.Description = first
	}
	if len(marks) > 0 {
		raw.Description = strings.Join(marks, " ") + "\n" + raw.Description
	}
	return raw
}

func looksLikeLocation(s string) bool {
	l := strings.ToLower(s)
	for _, hint := range []string{"remote", "onsite", "on-site", "hybrid", ", "} {
		if strings.Contains(l, hint) {
			return true
		}
	}
	return false
}

func resolveMore(base, href string) string {
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
