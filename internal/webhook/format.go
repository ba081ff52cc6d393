package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sydlexius/crawler/internal/event"
)

// Discord embed colours.
const (
	colourInfo    = 3447003  // blue
	colourSuccess = 3066993  // green
	colourWarning = 15105570 // orange
	colourError   = 15158332 // red
)

// formatPayload returns the request body and content-type for a webhook delivery.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	switch w.Type {
	case TypeDiscord:
		return formatDiscord(e)
	case TypeSlack:
		return formatSlack(e)
	case TypeGotify:
		return formatGotify(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"event":     string(e.Type),
		"timestamp": e.Timestamp,
		"data":      e.Data,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatDiscord(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title(e),
				"description": describe(e),
				"color":       colour(e),
				"timestamp":   e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatSlack(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"text": fmt.Sprintf("*%s*\n%s", title(e), describe(e)),
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatGotify(e event.Event) ([]byte, string) {
	priority := 2
	if e.Type == event.SourceFailed {
		priority = 6
	}
	payload := map[string]any{
		"title":    title(e),
		"message":  describe(e),
		"priority": priority,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func title(e event.Event) string {
	return "Crawler: " + string(e.Type)
}

func colour(e event.Event) int {
	switch e.Type {
	case event.SourceMerged:
		return colourSuccess
	case event.SourceNoMatch:
		return colourWarning
	case event.SourceFailed:
		return colourError
	default:
		return colourInfo
	}
}

// describe renders a one-line human summary of a resolution or scan event.
func describe(e event.Event) string {
	if e.Data == nil {
		return string(e.Type)
	}
	label := e.String("label")
	source := e.String("source")
	switch e.Type {
	case event.SourceMerged:
		how := "by search"
		if exact, _ := e.Data["exact"].(bool); exact {
			how = "by " + e.String("matched_by")
		} else if d, ok := e.Data["distance"].(float64); ok {
			how = fmt.Sprintf("at distance %.3f", d)
		}
		return fmt.Sprintf("%s: merged %s from %s %s", label, e.String("winner"), source, how)
	case event.SourceNoMatch:
		return fmt.Sprintf("%s: no close candidate on %s", label, source)
	case event.SourceSkipped:
		return fmt.Sprintf("%s: %s already resolved", label, source)
	case event.SourceFailed:
		return fmt.Sprintf("%s: %s failed: %s", label, source, e.String("error"))
	case event.ResolutionStarted, event.ResolutionCompleted:
		parts := []string{label}
		if st := e.String("state"); st != "" {
			parts = append(parts, st)
		}
		return strings.Join(parts, ": ")
	case event.ScanCompleted:
		return fmt.Sprintf("scan of %s %s: %v tracks", e.String("root"), e.String("status"), e.Data["tracks"])
	case event.FileChanged:
		return fmt.Sprintf("%s %s", e.String("path"), e.String("op"))
	}
	b, _ := json.Marshal(e.Data)
	return string(b)
}
