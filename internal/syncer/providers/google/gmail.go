package google

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wizardlabs/wizard/internal/syncer"
)

// Gmail fetches messages from the authenticated user's mailbox.
type Gmail struct {
	*client
}

// NewGmail builds the gmail provider.
func NewGmail(cfg syncer.ProviderConfig) (syncer.Provider, error) {
	return &Gmail{client: newClient(cfg.Key, cfg.BaseURL)}, nil
}

// FetchMessages runs a Gmail search and hydrates each hit with its
// metadata. The list endpoint only returns ids, so this costs one extra
// request per message.
func (g *Gmail) FetchMessages(ctx context.Context, query string, limit int) ([]syncer.EmailMessage, error) {
	q := url.Values{
		"q":          {query},
		"maxResults": {strconv.Itoa(limit)},
	}
	doc, err := g.get(ctx, "/gmail/v1/users/me/messages", q.Encode())
	if err != nil {
		return nil, err
	}

	var ids []string
	doc.Get("messages").ForEach(func(_, m gjson.Result) bool {
		ids = append(ids, m.Get("id").String())
		return true
	})

	msgs := make([]syncer.EmailMessage, 0, len(ids))
	for _, id := range ids {
		m, err := g.fetchMessage(ctx, id)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (g *Gmail) fetchMessage(ctx context.Context, id string) (syncer.EmailMessage, error) {
	doc, err := g.get(ctx, "/gmail/v1/users/me/messages/"+id, "format=metadata")
	if err != nil {
		return syncer.EmailMessage{}, err
	}

	msg := syncer.EmailMessage{
		ID:       id,
		Body:     doc.Get("snippet").String(),
		ThreadID: doc.Get("threadId").String(),
	}
	doc.Get("labelIds").ForEach(func(_, l gjson.Result) bool {
		label := l.String()
		if label == "UNREAD" {
			msg.IsUnread = true
		}
		msg.Labels = append(msg.Labels, strings.ToLower(label))
		return true
	})
	doc.Get("payload.headers").ForEach(func(_, h gjson.Result) bool {
		switch h.Get("name").String() {
		case "Subject":
			msg.Subject = h.Get("value").String()
		case "From":
			msg.From = h.Get("value").String()
		case "To":
			msg.To = strings.Split(h.Get("value").String(), ", ")
		}
		return true
	})
	if ms := doc.Get("internalDate").Int(); ms > 0 {
		msg.ReceivedAt = time.UnixMilli(ms)
	}
	return msg, nil
}
