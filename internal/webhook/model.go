// Package webhook notifies external endpoints of resolution events.
package webhook

import (
	"slices"
	"strings"

	"github.com/sydlexius/crawler/internal/event"
)

// Webhook is a configured endpoint.
type Webhook struct {
	Name    string
	URL     string
	Type    string
	Events  []string
	Enabled bool
}

// Webhook types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// Wants reports whether w subscribes to t. An empty event list selects
// everything; a trailing ".*" selects a family such as "source.*".
func (w *Webhook) Wants(t event.Type) bool {
	if !w.Enabled {
		return false
	}
	if len(w.Events) == 0 {
		return true
	}
	return slices.ContainsFunc(w.Events, func(pattern string) bool {
		if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
			return strings.HasPrefix(string(t), prefix+".")
		}
		return pattern == string(t)
	})
}

// AllTypes lists every event a webhook can receive.
func AllTypes() []event.Type {
	return append([]event.Type{event.ResolutionStarted, event.ResolutionCompleted, event.ScanCompleted, event.FileChanged}, event.SourceTypes()...)
}
