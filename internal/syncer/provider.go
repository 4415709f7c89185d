// Package syncer pulls records from external providers, debounces and
// batches the work, and delivers canonical task items to the store.
package syncer

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Kind is the provider category.
type Kind string

const (
	KindCalendar Kind = "calendar"
	KindEmail    Kind = "email"
	KindIssue    Kind = "issue"
	KindChat     Kind = "chat"
)

// Status is a provider's self-reported sync state.
type Status struct {
	Provider      string     `json:"provider"`
	Authenticated bool       `json:"authenticated"`
	LastFetch     *time.Time `json:"last_fetch,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Provider is the base contract every external source implements.
type Provider interface {
	Key() string
	Authenticate(ctx context.Context, token *oauth2.Token) error
	SyncStatus() Status
}

// CalendarProvider fetches events inside a date window.
type CalendarProvider interface {
	Provider
	FetchEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error)
}

// EmailProvider fetches messages matching a search query.
type EmailProvider interface {
	Provider
	FetchMessages(ctx context.Context, query string, limit int) ([]EmailMessage, error)
}

// IssueProvider fetches issues matching a tracker-native filter
// (JQL for Jira, a GraphQL filter for Linear).
type IssueProvider interface {
	Provider
	FetchIssues(ctx context.Context, filter string, limit int) ([]Issue, error)
}

// ChatProvider fetches recent messages from one channel.
type ChatProvider interface {
	Provider
	FetchChannel(ctx context.Context, channelID string, limit int) ([]ChatMessage, error)
}

// CalendarEvent is a provider-native calendar record.
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	IsAllDay    bool
	Attendees   []string
}

// EmailMessage is a provider-native email record.
type EmailMessage struct {
	ID          string
	Subject     string
	From        string
	To          []string
	Body        string
	ThreadID    string
	IsUnread    bool
	Labels      []string
	Attachments []string
	ReceivedAt  time.Time
}

// Issue is a provider-native tracker record.
type Issue struct {
	ID           string
	Key          string
	Title        string
	Description  string
	Status       string
	Assignee     string
	URL          string
	CustomFields map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChatMessage is a provider-native chat record.
type ChatMessage struct {
	ID            string
	ChannelID     string
	ChannelName   string
	UserID        string
	UserName      string
	Text          string
	ThreadID      string
	ReactionCount int
	Attachments   []string
	Timestamp     time.Time
}
