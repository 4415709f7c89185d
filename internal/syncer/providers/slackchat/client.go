// Package slackchat implements the chat sync provider on top of the
// Slack Web API.
package slackchat

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/syncer"
)

// Client wraps the slack-go API client.
type Client struct {
	key     string
	baseURL string

	mu        sync.Mutex
	api       *slack.Client
	userNames map[string]string
	lastFetch time.Time
	lastErr   string
}

// New builds the slack provider. BaseURL overrides the API endpoint for
// tests.
func New(cfg syncer.ProviderConfig) (syncer.Provider, error) {
	return &Client{
		key:       cfg.Key,
		baseURL:   cfg.BaseURL,
		userNames: make(map[string]string),
	}, nil
}

func (c *Client) Key() string { return c.key }

// Authenticate builds the API client from the token. Slack bot tokens do
// not expire, so only presence is checked.
func (c *Client) Authenticate(_ context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return wizard.NewError(wizard.CodeAuthRequired, c.key, "missing slack token")
	}
	opts := []slack.Option{}
	if c.baseURL != "" {
		opts = append(opts, slack.OptionAPIURL(c.baseURL))
	}
	c.mu.Lock()
	c.api = slack.New(token.AccessToken, opts...)
	c.mu.Unlock()
	return nil
}

func (c *Client) SyncStatus() syncer.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := syncer.Status{Provider: c.key, Authenticated: c.api != nil, LastError: c.lastErr}
	if !c.lastFetch.IsZero() {
		t := c.lastFetch
		st.LastFetch = &t
	}
	return st
}

// FetchChannel returns the most recent messages of one channel, newest
// first as Slack delivers them.
func (c *Client) FetchChannel(ctx context.Context, channelID string, limit int) ([]syncer.ChatMessage, error) {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()
	if api == nil {
		return nil, wizard.NewError(wizard.CodeAuthRequired, c.key, "provider not authenticated")
	}

	history, err := api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, c.fail(wizard.Classify(err, c.key))
	}

	channelName := channelID
	if info, err := api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID}); err == nil {
		channelName = info.Name
	}

	msgs := make([]syncer.ChatMessage, 0, len(history.Messages))
	for _, m := range history.Messages {
		cm := syncer.ChatMessage{
			ID:          m.Timestamp,
			ChannelID:   channelID,
			ChannelName: channelName,
			UserID:      m.User,
			UserName:    c.userName(ctx, api, m),
			Text:        m.Text,
			ThreadID:    m.ThreadTimestamp,
			Timestamp:   parseSlackTS(m.Timestamp),
		}
		for _, r := range m.Reactions {
			cm.ReactionCount += r.Count
		}
		for _, f := range m.Files {
			cm.Attachments = append(cm.Attachments, f.Name)
		}
		msgs = append(msgs, cm)
	}

	c.mu.Lock()
	c.lastFetch = time.Now()
	c.lastErr = ""
	c.mu.Unlock()
	return msgs, nil
}

// userName resolves a user id to a display name, caching lookups for the
// life of the client. Bot messages carry the name inline.
func (c *Client) userName(ctx context.Context, api *slack.Client, m slack.Message) string {
	if m.Username != "" {
		return m.Username
	}
	if m.User == "" {
		return "unknown"
	}
	c.mu.Lock()
	name, ok := c.userNames[m.User]
	c.mu.Unlock()
	if ok {
		return name
	}
	u, err := api.GetUserInfoContext(ctx, m.User)
	if err != nil {
		return m.User
	}
	name = u.Profile.DisplayName
	if name == "" {
		name = u.RealName
	}
	c.mu.Lock()
	c.userNames[m.User] = name
	c.mu.Unlock()
	return name
}

func parseSlackTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func (c *Client) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	return err
}
