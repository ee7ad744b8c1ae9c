package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/store"
)

// Notifier fans out event-driven notifications to a user's subscriptions,
// honoring per-type preferences and pruning expired endpoints.
type Notifier struct {
	service *Service
	push    *store.PushStore
	logger  *slog.Logger
}

func NewNotifier(svc *Service, pushStore *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{service: svc, push: pushStore, logger: logger}
}

// NotifyCommentReply tells the parent comment's author that someone replied.
func (n *Notifier) NotifyCommentReply(userID int64, postTitle, postSlug string) {
	n.notify(userID, model.NotifTypeCommentReply, Payload{
		Title: "New reply",
		Body:  fmt.Sprintf("Someone replied to your comment on %q", postTitle),
		URL:   "/p/" + postSlug,
		Tag:   "comment-reply",
	})
}

// NotifyPostPublished tells every opted-in subscriber a new post went live.
// The author does not get a notification for their own post.
func (n *Notifier) NotifyPostPublished(authorID int64, postTitle, postSlug string) {
	if n == nil {
		return
	}
	userIDs, err := n.push.ListOptedInUsers(model.NotifTypePostPublished)
	if err != nil {
		n.logger.Error("list opted-in users", "error", err)
		return
	}

	payload := Payload{
		Title: "New post",
		Body:  postTitle,
		URL:   "/p/" + postSlug,
		Tag:   "post-published",
	}
	for _, userID := range userIDs {
		if userID == authorID {
			continue
		}
		n.notify(userID, model.NotifTypePostPublished, payload)
	}
}

// NotifyModeration tells a user their content was moderated.
func (n *Notifier) NotifyModeration(userID int64, contentKind, action string) {
	n.notify(userID, model.NotifTypeModeration, Payload{
		Title: "Moderation notice",
		Body:  fmt.Sprintf("Your %s was %s by a moderator", contentKind, action),
		URL:   "/account",
		Tag:   "moderation",
	})
}

// notify is safe on a nil Notifier so callers need no guard when push is
// not configured.
func (n *Notifier) notify(userID int64, notifType string, payload Payload) {
	if n == nil {
		return
	}
	enabled, err := n.push.IsPreferenceEnabled(userID, notifType)
	if err != nil {
		n.logger.Error("check push preference", "type", notifType, "error", err)
		return
	}
	if !enabled {
		return
	}

	subs, err := n.push.ListByUser(userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		if err := n.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				n.push.DeleteByEndpoint(sub.Endpoint)
				continue
			}
			n.logger.Error("send push", "type", notifType, "error", err)
		}
	}
}
