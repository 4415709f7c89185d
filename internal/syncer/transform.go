package syncer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	wizard "github.com/wizardlabs/wizard/internal"
)

// issueStatusMap collapses tracker-native statuses into the canonical set.
var issueStatusMap = map[string]wizard.TaskStatus{
	"todo":        wizard.TaskTodo,
	"backlog":     wizard.TaskTodo,
	"open":        wizard.TaskTodo,
	"new":         wizard.TaskTodo,
	"in progress": wizard.TaskInProgress,
	"doing":       wizard.TaskInProgress,
	"done":        wizard.TaskDone,
	"closed":      wizard.TaskDone,
	"resolved":    wizard.TaskDone,
	"blocked":     wizard.TaskBlocked,
	"on hold":     wizard.TaskBlocked,
}

func canonicalStatus(raw string) wizard.TaskStatus {
	if s, ok := issueStatusMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return wizard.TaskTodo
}

// taskID derives a stable task id from the provider key and the record's
// external id. Transforming the same record always yields the same id, so
// re-synced records converge on one task row.
func taskID(provider, externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("wizard://"+provider+"/"+externalID)).String()
}

// truncateRunes caps s at n runes. Counting runes rather than bytes keeps
// a multi-byte character from being split at the cut point.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// TransformCalendarEvent projects a calendar event into a task item.
func TransformCalendarEvent(provider string, ev CalendarEvent) wizard.TaskItem {
	due := ev.EndTime
	return wizard.TaskItem{
		ID:          taskID(provider, ev.ID),
		Type:        wizard.TypeTask,
		Title:       ev.Title,
		Description: fmt.Sprintf("Calendar event from %s\n\n%s", provider, ev.Description),
		Status:      wizard.TaskTodo,
		CreatedAt:   ev.StartTime,
		UpdatedAt:   ev.StartTime,
		DueDate:     &due,
		Tags:        []string{"calendar_sync", provider},
		Metadata: map[string]any{
			"external_id":       ev.ID,
			"external_provider": provider,
			"location":          ev.Location,
			"is_all_day":        ev.IsAllDay,
			"attendees":         ev.Attendees,
			"start_time":        ev.StartTime.Format(time.RFC3339),
			"end_time":          ev.EndTime.Format(time.RFC3339),
		},
	}
}

// TransformEmailMessage projects an email into a task item due one day
// after it arrived.
func TransformEmailMessage(provider string, msg EmailMessage) wizard.TaskItem {
	due := msg.ReceivedAt.Add(24 * time.Hour)
	body := truncateRunes(msg.Body, 1000)
	tags := append([]string{"email_sync", provider}, msg.Labels...)
	return wizard.TaskItem{
		ID:          taskID(provider, msg.ID),
		Type:        wizard.TypeTask,
		Title:       msg.Subject,
		Description: fmt.Sprintf("Email from %s\n\n%s", msg.From, body),
		Status:      wizard.TaskTodo,
		CreatedAt:   msg.ReceivedAt,
		UpdatedAt:   msg.ReceivedAt,
		DueDate:     &due,
		Tags:        tags,
		Metadata: map[string]any{
			"external_id":       msg.ID,
			"external_provider": provider,
			"from":              msg.From,
			"to":                msg.To,
			"thread_id":         msg.ThreadID,
			"is_unread":         msg.IsUnread,
			"attachments":       msg.Attachments,
			"received_at":       msg.ReceivedAt.Format(time.RFC3339),
		},
	}
}

// TransformIssue projects a tracker issue into a task item. The project
// prefix of the key ("WIZ" for "WIZ-42") becomes a tag.
func TransformIssue(provider string, is Issue) wizard.TaskItem {
	tags := []string{provider}
	if prefix, _, ok := strings.Cut(is.Key, "-"); ok && prefix != "" {
		tags = append(tags, prefix)
	}
	updated := is.UpdatedAt
	if updated.IsZero() {
		updated = is.CreatedAt
	}
	return wizard.TaskItem{
		ID:          taskID(provider, is.ID),
		Type:        wizard.TypeIssue,
		Title:       fmt.Sprintf("[%s] %s", is.Key, is.Title),
		Description: is.Description,
		Status:      canonicalStatus(is.Status),
		AssignedTo:  is.Assignee,
		CreatedAt:   is.CreatedAt,
		UpdatedAt:   updated,
		Tags:        tags,
		Metadata: map[string]any{
			"external_id":       is.ID,
			"external_provider": provider,
			"issue_key":         is.Key,
			"issue_status":      is.Status,
			"issue_url":         is.URL,
			"custom_fields":     is.CustomFields,
		},
	}
}

// chatDueHour is the local hour a chat-derived task is due on the day the
// message was posted.
const chatDueHour = 17

// TransformChatMessage projects a chat message into a task item.
func TransformChatMessage(provider string, msg ChatMessage) wizard.TaskItem {
	title := "Chat message"
	if first, _, _ := strings.Cut(strings.TrimSpace(msg.Text), "\n"); first != "" {
		title = truncateRunes(first, 80)
	}

	text := truncateRunes(msg.Text, 500)

	ts := msg.Timestamp.Local()
	due := time.Date(ts.Year(), ts.Month(), ts.Day(), chatDueHour, 0, 0, 0, ts.Location())

	channelKey := msg.ChannelName
	if channelKey == "" {
		channelKey = msg.ChannelID
	}

	return wizard.TaskItem{
		ID:          taskID(provider, msg.ID),
		Type:        wizard.TypeTask,
		Title:       title,
		Description: fmt.Sprintf("Message from %s:\n\n%s", msg.UserName, text),
		Status:      wizard.TaskTodo,
		CreatedAt:   msg.Timestamp,
		UpdatedAt:   msg.Timestamp,
		DueDate:     &due,
		Tags:        []string{"chat_sync", channelKey},
		Metadata: map[string]any{
			"external_id":       msg.ID,
			"external_provider": provider,
			"channel_id":        msg.ChannelID,
			"user_id":           msg.UserID,
			"thread_id":         msg.ThreadID,
			"reaction_count":    msg.ReactionCount,
			"attachments":       msg.Attachments,
		},
	}
}
