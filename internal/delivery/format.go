package delivery

import (
	"regexp"
	"strings"

	"rss_relay/internal/model"
)

const maxSummaryLength = 300

var tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_:\-]+)\}`)

// Render builds the message text of an article for a connection. Connections
// with a format template get every {field} token replaced by the article
// field of that name; fields the article lacks render as empty text. Without
// a template, the feed title, article title, summary and link are listed.
// Role mentions are appended for Discord destinations.
func Render(conn model.Connection, a model.Article) string {
	var text string
	if conn.Format != "" {
		text = tokenPattern.ReplaceAllStringFunc(conn.Format, func(tok string) string {
			return a.Value(tok[1 : len(tok)-1])
		})
	} else {
		text = defaultText(a)
	}

	if conn.Destination.Platform == model.PlatformDiscord && len(conn.MentionRoleIDs) > 0 {
		mentions := make([]string, len(conn.MentionRoleIDs))
		for i, id := range conn.MentionRoleIDs {
			mentions[i] = "<@&" + id + ">"
		}
		text = strings.TrimSpace(text) + "\n\n" + strings.Join(mentions, " ")
	}
	return strings.TrimSpace(text)
}

func defaultText(a model.Article) string {
	var b strings.Builder
	if feed := a.Value(model.FieldFeedTitle); feed != "" {
		b.WriteString("[" + feed + "]\n\n")
	}
	b.WriteString(a.Value(model.FieldTitle))

	desc := a.Value(model.FieldSummary)
	if desc == "" {
		desc = a.Value(model.FieldDescription)
	}
	if desc != "" {
		if r := []rune(desc); len(r) > maxSummaryLength {
			desc = string(r[:maxSummaryLength]) + "..."
		}
		b.WriteString("\n\n")
		b.WriteString(desc)
	}
	if link := a.Value(model.FieldLink); link != "" {
		b.WriteString("\n\n")
		b.WriteString(link)
	}
	return b.String()
}
