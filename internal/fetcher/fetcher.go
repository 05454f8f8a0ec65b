// Package fetcher downloads feeds and turns their items into articles.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"rss_relay/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result holds the articles of one fetched feed.
type Result struct {
	Title    string
	Articles []model.Article
}

// Fetcher downloads and parses RSS and Atom feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses a feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "RSSRelay/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// FetchArticles downloads a feed and converts every item into an article.
func (f *Fetcher) FetchArticles(ctx context.Context, url string) (*Result, error) {
	feed, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Result{Title: feed.Title, Articles: Articles(feed)}, nil
}

// Articles converts the items of a parsed feed, keeping feed order.
func Articles(feed *gofeed.Feed) []model.Article {
	out := make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		out = append(out, ToArticle(feed.Title, item))
	}
	return out
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ToArticle flattens a feed item into article fields. Extension elements
// become "<namespace>:<name>" fields, and their children are appended with
// a double underscore, so a YouTube media description ends up in
// "media:group__description".
func ToArticle(feedTitle string, item *gofeed.Item) model.Article {
	fields := map[string]string{
		model.FieldFeedTitle:   feedTitle,
		model.FieldTitle:       strings.TrimSpace(item.Title),
		model.FieldDescription: item.Description,
		model.FieldContent:     item.Content,
		model.FieldLink:        item.Link,
		model.FieldGUID:        ItemGUID(item),
		model.FieldCategories:  strings.Join(item.Categories, ", "),
	}

	for ns, elements := range item.Extensions {
		for name, list := range elements {
			flatten(fields, ns+":"+name, list)
		}
	}

	desc := item.Description
	if desc == "" {
		desc = item.Content
	}
	if desc == "" {
		desc = fields[model.FieldMediaDescription]
	}
	fields[model.FieldSummary] = StripHTML(desc)

	if author := itemAuthor(item); author != "" {
		fields[model.FieldAuthor] = author
	}
	if item.PublishedParsed != nil {
		fields[model.FieldPublished] = item.PublishedParsed.UTC().Format(time.RFC3339)
	} else if item.Published != "" {
		fields[model.FieldPublished] = item.Published
	}
	if img := itemImage(item, fields); img != "" {
		fields[model.FieldImage] = img
	}
	return model.NewArticle(fields)
}

func flatten(fields map[string]string, key string, list []ext.Extension) {
	if len(list) == 0 {
		return
	}
	e := list[0]
	if v := strings.TrimSpace(e.Value); v != "" {
		if _, taken := fields[key]; !taken {
			fields[key] = v
		}
	}
	for name, children := range e.Children {
		flatten(fields, key+"__"+name, children)
	}
	if url := e.Attrs["url"]; url != "" {
		if _, taken := fields[key+"__url"]; !taken {
			fields[key+"__url"] = url
		}
	}
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func itemImage(item *gofeed.Item, fields map[string]string) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	for _, key := range []string{"media:thumbnail__url", "media:group__thumbnail__url", "media:content__url"} {
		if v := fields[key]; v != "" {
			return v
		}
	}
	return ""
}

// StripHTML returns the visible text of an HTML fragment with runs of
// whitespace collapsed to single spaces.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
