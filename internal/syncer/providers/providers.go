// Package providers wires the concrete sync providers into a factory.
package providers

import (
	"github.com/wizardlabs/wizard/internal/syncer"
	"github.com/wizardlabs/wizard/internal/syncer/providers/google"
	"github.com/wizardlabs/wizard/internal/syncer/providers/jira"
	"github.com/wizardlabs/wizard/internal/syncer/providers/linear"
	"github.com/wizardlabs/wizard/internal/syncer/providers/slackchat"
)

// RegisterDefaults registers every built-in provider under its canonical
// key.
func RegisterDefaults(f *syncer.Factory) {
	f.Register("google_calendar", syncer.KindCalendar, google.NewCalendar)
	f.Register("gmail", syncer.KindEmail, google.NewGmail)
	f.Register("jira", syncer.KindIssue, jira.New)
	f.Register("linear", syncer.KindIssue, linear.New)
	f.Register("slack", syncer.KindChat, slackchat.New)
}
