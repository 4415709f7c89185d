package google

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wizardlabs/wizard/internal/syncer"
)

// Calendar fetches events from the primary Google calendar.
type Calendar struct {
	*client
}

// NewCalendar builds the google_calendar provider. An empty baseURL hits
// the public Google API.
func NewCalendar(cfg syncer.ProviderConfig) (syncer.Provider, error) {
	return &Calendar{client: newClient(cfg.Key, cfg.BaseURL)}, nil
}

// FetchEvents returns single (expanded) events inside [from, to), ordered
// by start time.
func (c *Calendar) FetchEvents(ctx context.Context, from, to time.Time) ([]syncer.CalendarEvent, error) {
	q := url.Values{
		"timeMin":      {from.Format(time.RFC3339)},
		"timeMax":      {to.Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {strconv.Itoa(250)},
	}
	doc, err := c.get(ctx, "/calendar/v3/calendars/primary/events", q.Encode())
	if err != nil {
		return nil, err
	}

	var events []syncer.CalendarEvent
	doc.Get("items").ForEach(func(_, item gjson.Result) bool {
		ev := syncer.CalendarEvent{
			ID:          item.Get("id").String(),
			Title:       item.Get("summary").String(),
			Description: item.Get("description").String(),
			Location:    item.Get("location").String(),
		}
		// All-day events carry date instead of dateTime.
		if d := item.Get("start.dateTime"); d.Exists() {
			ev.StartTime, _ = time.Parse(time.RFC3339, d.String())
		} else {
			ev.IsAllDay = true
			ev.StartTime, _ = time.Parse("2006-01-02", item.Get("start.date").String())
		}
		if d := item.Get("end.dateTime"); d.Exists() {
			ev.EndTime, _ = time.Parse(time.RFC3339, d.String())
		} else {
			ev.EndTime, _ = time.Parse("2006-01-02", item.Get("end.date").String())
		}
		item.Get("attendees").ForEach(func(_, a gjson.Result) bool {
			ev.Attendees = append(ev.Attendees, a.Get("email").String())
			return true
		})
		events = append(events, ev)
		return true
	})
	return events, nil
}
