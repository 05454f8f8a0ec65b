package model

import (
	"maps"
	"slices"
	"strings"
)

// Standard article field names produced by the fetcher.
const (
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldSummary          = "summary"
	FieldContent          = "content"
	FieldLink             = "link"
	FieldGUID             = "guid"
	FieldAuthor           = "author"
	FieldPublished        = "published"
	FieldImage            = "image"
	FieldCategories       = "categories"
	FieldMediaDescription = "media:group__description"
	FieldFeedTitle        = "feed::title"
)

// CustomNamespace prefixes the article fields derived from custom placeholders.
const CustomNamespace = "custom::"

// Article is an immutable set of string fields describing one feed item.
// The zero value is an empty article.
type Article struct {
	fields map[string]string
}

// NewArticle copies fields into a new Article.
func NewArticle(fields map[string]string) Article {
	return Article{fields: maps.Clone(fields)}
}

// Get returns the named field and whether it is present.
func (a Article) Get(name string) (string, bool) {
	v, ok := a.fields[name]
	return v, ok
}

// Value returns the named field, or an empty string when it is absent.
func (a Article) Value(name string) string {
	return a.fields[name]
}

// ID returns the guid of the article, falling back to its link.
func (a Article) ID() string {
	if v := a.fields[FieldGUID]; v != "" {
		return v
	}
	return a.fields[FieldLink]
}

// IsYouTubeVideo reports whether the article comes from a YouTube video feed.
func (a Article) IsYouTubeVideo() bool {
	return strings.HasPrefix(a.fields[FieldGUID], "yt:video")
}

// With returns a copy of the article with extra fields added or replaced.
func (a Article) With(extra map[string]string) Article {
	out := make(map[string]string, len(a.fields)+len(extra))
	maps.Copy(out, a.fields)
	maps.Copy(out, extra)
	return Article{fields: out}
}

// Fields returns a copy of all fields.
func (a Article) Fields() map[string]string {
	return maps.Clone(a.fields)
}

// Names returns the sorted field names.
func (a Article) Names() []string {
	return slices.Sorted(maps.Keys(a.fields))
}
