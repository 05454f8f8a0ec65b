// Package delivery orders rendered articles per destination channel and
// dispatches them through a messaging platform.
package delivery

import (
	"github.com/google/uuid"

	"rss_relay/internal/model"
	"rss_relay/internal/platform"
)

// Task is one article bound to one connection, ready to be sent.
type Task struct {
	ID           string
	AccountID    string
	ConnectionID int64
	ArticleID    string
	Destination  model.Destination
	Content      platform.Content
	// MentionRoleIDs lists the roles that must be mentionable while the task
	// is sent. Tasks with roles wait in the deferred queue of their channel.
	MentionRoleIDs []string
}

// NewTask renders an article for a connection.
func NewTask(accountID string, conn model.Connection, a model.Article) *Task {
	t := &Task{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		ConnectionID: conn.ID,
		ArticleID:    a.ID(),
		Destination:  conn.Destination,
		Content:      platform.Content{Text: Render(conn, a)},
	}
	if conn.Destination.Webhook != nil {
		t.Content.Username = a.Value(model.FieldFeedTitle)
	}
	if conn.NeedsMentionToggle() {
		t.MentionRoleIDs = append([]string(nil), conn.MentionRoleIDs...)
	}
	return t
}

// Deferred reports whether the task needs a role mention toggle.
func (t *Task) Deferred() bool {
	return len(t.MentionRoleIDs) > 0
}
